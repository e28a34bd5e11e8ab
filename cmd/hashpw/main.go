// Command hashpw prints the bcrypt hash to put in STAFF_PASSWORD_HASH.
//
//	go run ./cmd/hashpw 'correct horse battery staple'
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/workshop-seat-booking/internal/utils"
)

func main() {
	plain := strings.Join(os.Args[1:], " ")
	if plain == "" {
		// Read from stdin so the password stays out of shell history.
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			logrus.WithError(err).Fatal("read password")
		}
		plain = strings.TrimRight(line, "\r\n")
	}
	if plain == "" {
		logrus.Fatal("empty password")
	}
	hash, err := utils.HashPassword(plain, bcrypt.DefaultCost)
	if err != nil {
		logrus.WithError(err).Fatal("hash password")
	}
	fmt.Println(hash)
}

// Package repository is the Reservation Store adapter.  Every mutation is a
// conditional UPDATE whose WHERE clause encodes the state the caller expects;
// the boolean returned by those methods reports whether the precondition held.
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a unique key.  The
// schema uses unique keys to enforce one pending intent per seat and one
// paid reservation per email and phone.
var ErrDuplicate = errors.New("duplicate")

const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// mapErr converts driver errors into the package's sentinel errors.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return fmt.Errorf("%w: %s", ErrDuplicate, me.Message)
	}
	return err
}

// retryableTx reports whether a transaction failed because InnoDB picked it
// as a deadlock victim or gave up waiting for a row lock.
func retryableTx(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == mysqlDeadlock || me.Number == mysqlLockWaitTimeout
}

// affected turns an Exec result into "did the precondition match".  The DSN
// sets clientFoundRows so a matched row counts even when no column changed.
func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

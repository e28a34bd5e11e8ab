package config // package config loads application configuration from environment variables

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Required variables go through must(); the rest
// fall back to defaults that suit a single-room workshop.
type Config struct {
	Env          string // application environment (e.g. "dev", "prod")
	Port         string // HTTP port to listen on
	LogLevel     string // logrus level name
	DBUser       string // database username
	DBPass       string // database password (optional)
	DBHost       string // database host address
	DBPort       string // database port number
	DBName       string // database name
	JWTSecret    string // secret used to sign staff access tokens
	AccessTTLMin int    // access token time-to-live in minutes

	StaffEmail        string // login for the single staff account
	StaffPasswordHash string // bcrypt hash of the staff password

	SeatCount     int           // seats seeded at startup
	HoldTTL       time.Duration // validity window of a seat hold
	SweepInterval time.Duration // how often lapsed holds are tidied; 0 disables
	TicketPrice   int64         // price per seat in VND; 0 trusts the client amount
	PublicBaseURL string        // base for the PayOS return and cancel URLs

	PayOSClientID      string
	PayOSAPIKey        string
	PayOSChecksumKey   string
	PayOSBaseURL       string
	GatewayMaxAttempts int // tries per payment link creation

	RabbitURL string // AMQP url; empty keeps notifications in-process
}

// Load reads configuration values from environment variables and returns a
// Config.  Missing required values cause the program to exit with a fatal
// log message.
func Load() Config {
	return Config{
		Env:          getenv("APP_ENV", "dev"),
		Port:         getenv("APP_PORT", "8080"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		DBUser:       must("DB_USER"),
		DBPass:       os.Getenv("DB_PASS"), // empty allowed
		DBHost:       must("DB_HOST"),
		DBPort:       must("DB_PORT"),
		DBName:       must("DB_NAME"),
		JWTSecret:    must("JWT_SECRET"),
		AccessTTLMin: envInt("ACCESS_TOKEN_TTL_MIN", 60),

		StaffEmail:        must("STAFF_EMAIL"),
		StaffPasswordHash: must("STAFF_PASSWORD_HASH"),

		SeatCount:     envInt("SEAT_COUNT", 60),
		HoldTTL:       envDur("HOLD_TTL", 5*time.Minute),
		SweepInterval: envDur("SWEEP_INTERVAL", 30*time.Second),
		TicketPrice:   int64(envInt("TICKET_PRICE", 0)),
		PublicBaseURL: must("PUBLIC_BASE_URL"),

		PayOSClientID:      must("PAYOS_CLIENT_ID"),
		PayOSAPIKey:        must("PAYOS_API_KEY"),
		PayOSChecksumKey:   must("PAYOS_CHECKSUM_KEY"),
		PayOSBaseURL:       os.Getenv("PAYOS_BASE_URL"),
		GatewayMaxAttempts: envInt("GATEWAY_MAX_ATTEMPTS", 3),

		RabbitURL: getenv("RABBITMQ_URL", os.Getenv("AMQP_URL")),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration for the registration service.
type Server struct {
	Addr        string
	DatabaseURL string

	// SecretKey signs confirmation, cancellation, and edit tokens. Changing it
	// invalidates every link that has ever been sent.
	SecretKey string

	// BaseURL is the externally visible URL prefix used when building
	// confirmation and cancellation links for outbound mail.
	BaseURL string

	// InstitutionalDomain is the mail domain enforced for events that restrict
	// registration to institutional addresses.
	InstitutionalDomain string

	MailSender       string
	MailMaxAttempts  int
	MailInitialDelay time.Duration

	// SMTPAddr is the relay as host:port; when empty, outbound mail is only
	// logged, which is what development setups want.
	SMTPAddr     string
	SMTPUsername string
	SMTPPassword string

	RequestTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:                getenv("MEMBERDB_ADDR", ":8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		SecretKey:           getenv("SECRET_KEY", "dev-secret-key-change-in-production"),
		BaseURL:             getenv("BASE_URL", "http://localhost:8080"),
		InstitutionalDomain: getenv("INSTITUTIONAL_MAIL_DOMAIN", "tu-dortmund.de"),
		MailSender:          getenv("MAIL_SENDER", "noreply@pep-dortmund.org"),
		MailMaxAttempts:     getint("MAIL_MAX_ATTEMPTS", 8),
		MailInitialDelay:    getduration("MAIL_INITIAL_DELAY", time.Second),
		SMTPAddr:            os.Getenv("SMTP_ADDR"),
		SMTPUsername:        os.Getenv("SMTP_USERNAME"),
		SMTPPassword:        os.Getenv("SMTP_PASSWORD"),
		RequestTimeout:      getduration("REQUEST_TIMEOUT", 30*time.Second),
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

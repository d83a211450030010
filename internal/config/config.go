package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultIMAPPort is the implicit-TLS IMAP port used when an account omits one
	DefaultIMAPPort = 993
	// DefaultSMTPPort is the submission port used when an account omits one
	DefaultSMTPPort = 587
)

// Config holds the application configuration
type Config struct {
	AccountsPath string
	LogLevel     string

	// Network settings
	ConnectTimeout        time.Duration
	ReadTimeout           time.Duration
	RequireTLS            bool
	TLSInsecureSkipVerify bool
}

// AccountConfig holds configuration for a single email account
type AccountConfig struct {
	Name     string
	Email    string
	Password string

	IMAPServer string
	IMAPPort   int

	SMTPServer string
	SMTPPort   int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	connectTimeout, err := getEnvDuration("CONNECT_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	readTimeout, err := getEnvDuration("READ_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}

	return &Config{
		AccountsPath:          getEnv("ACCOUNTS_FILE", "accounts.txt"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		ConnectTimeout:        connectTimeout,
		ReadTimeout:           readTimeout,
		RequireTLS:            getEnvBool("REQUIRE_TLS", false),
		TLSInsecureSkipVerify: getEnvBool("TLS_INSECURE_SKIP_VERIFY", false),
	}, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("45s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if secs := getEnvInt(key, -1); secs >= 0 {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AccountsPath) == "" {
		return fmt.Errorf("ACCOUNTS_FILE is required")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("CONNECT_TIMEOUT must be positive")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("READ_TIMEOUT must be positive")
	}
	return nil
}

// WithDefaults fills in the default ports for unset values.
func (a AccountConfig) WithDefaults() AccountConfig {
	if a.IMAPPort == 0 {
		a.IMAPPort = DefaultIMAPPort
	}
	if a.SMTPPort == 0 {
		a.SMTPPort = DefaultSMTPPort
	}
	return a
}

// Validate checks the fields an account needs before it can be stored.
func (a *AccountConfig) Validate() error {
	// The accounts file is line oriented.
	fields := []struct{ key, value string }{
		{"name", a.Name},
		{"email", a.Email},
		{"password", a.Password},
		{"imap_server", a.IMAPServer},
		{"smtp_server", a.SMTPServer},
	}
	for _, f := range fields {
		if strings.ContainsAny(f.value, "\r\n") {
			return fmt.Errorf("account %q: %s must not contain line breaks", a.Name, f.key)
		}
	}

	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("account name is required")
	}
	if strings.TrimSpace(a.Email) == "" {
		return fmt.Errorf("account %s: email is required", a.Name)
	}
	if a.IMAPPort < 1 || a.IMAPPort > 65535 {
		return fmt.Errorf("account %s: invalid IMAP port %d", a.Name, a.IMAPPort)
	}
	if a.SMTPPort < 1 || a.SMTPPort > 65535 {
		return fmt.Errorf("account %s: invalid SMTP port %d", a.Name, a.SMTPPort)
	}
	return nil
}

// IMAPAddress returns host:port for the IMAP server
func (a *AccountConfig) IMAPAddress() string {
	return net.JoinHostPort(a.IMAPServer, strconv.Itoa(a.IMAPPort))
}

// SMTPAddress returns host:port for the SMTP server
func (a *AccountConfig) SMTPAddress() string {
	return net.JoinHostPort(a.SMTPServer, strconv.Itoa(a.SMTPPort))
}

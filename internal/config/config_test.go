package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"ACCOUNTS_FILE", "LOG_LEVEL", "CONNECT_TIMEOUT", "READ_TIMEOUT", "REQUIRE_TLS", "TLS_INSECURE_SKIP_VERIFY"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "accounts.txt", cfg.AccountsPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 60*time.Second, cfg.ReadTimeout)
	assert.False(t, cfg.RequireTLS)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("ACCOUNTS_FILE", "/tmp/mail/accounts.txt")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CONNECT_TIMEOUT", "5")
	t.Setenv("READ_TIMEOUT", "1m30s")
	t.Setenv("REQUIRE_TLS", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/mail/accounts.txt", cfg.AccountsPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 90*time.Second, cfg.ReadTimeout)
	assert.True(t, cfg.RequireTLS)
}

func TestLoadConfigBadDuration(t *testing.T) {
	t.Setenv("READ_TIMEOUT", "soon")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestAccountConfigValidate(t *testing.T) {
	base := AccountConfig{Name: "work", Email: "me@example.com", IMAPPort: 993, SMTPPort: 587}

	tests := []struct {
		name    string
		mutate  func(a *AccountConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(a *AccountConfig) {}},
		{name: "empty name", mutate: func(a *AccountConfig) { a.Name = "  " }, wantErr: true},
		{name: "empty email", mutate: func(a *AccountConfig) { a.Email = "" }, wantErr: true},
		{name: "imap port zero", mutate: func(a *AccountConfig) { a.IMAPPort = 0 }, wantErr: true},
		{name: "smtp port too big", mutate: func(a *AccountConfig) { a.SMTPPort = 70000 }, wantErr: true},
		{name: "newline in name", mutate: func(a *AccountConfig) { a.Name = "work\n[account ghost]" }, wantErr: true},
		{name: "newline in password", mutate: func(a *AccountConfig) { a.Password = "pw\nemail=evil@x.com" }, wantErr: true},
		{name: "carriage return in server", mutate: func(a *AccountConfig) { a.IMAPServer = "imap.example.com\r" }, wantErr: true},
		{name: "line feed in email", mutate: func(a *AccountConfig) { a.Email = "me@example.com\n" }, wantErr: true},
		{name: "bracket and equals are fine", mutate: func(a *AccountConfig) { a.Name = "w]rk"; a.Password = "a=b]" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := base
			tt.mutate(&acc)
			err := acc.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAccountConfigWithDefaults(t *testing.T) {
	acc := AccountConfig{Name: "x"}.WithDefaults()
	assert.Equal(t, DefaultIMAPPort, acc.IMAPPort)
	assert.Equal(t, DefaultSMTPPort, acc.SMTPPort)

	acc = AccountConfig{Name: "x", IMAPPort: 143, SMTPPort: 25}.WithDefaults()
	assert.Equal(t, 143, acc.IMAPPort)
	assert.Equal(t, 25, acc.SMTPPort)
	assert.Equal(t, ":143", acc.IMAPAddress())
}

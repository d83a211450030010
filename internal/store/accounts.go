// Package store persists account configurations in a flat text file.
//
// The file is a sequence of blocks:
//
//	[account work]
//	email=me@example.com
//	password=secret
//	imap_server=imap.example.com
//	imap_port=993
//	smtp_server=smtp.example.com
//	smtp_port=587
package store

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/brandon/mail-client/internal/config"
	"github.com/sirupsen/logrus"
)

const headerPrefix = "account "

// IOError reports a failed read or write of the accounts file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("accounts file %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// AccountStore loads and saves every account at once.
type AccountStore struct {
	path   string
	logger *logrus.Logger
}

// NewAccountStore creates a store backed by the file at path
func NewAccountStore(path string, logger *logrus.Logger) *AccountStore {
	return &AccountStore{path: path, logger: logger}
}

// Path returns the backing file path
func (s *AccountStore) Path() string {
	return s.path
}

// LoadAll reads every account from disk. A missing file yields an empty map.
func (s *AccountStore) LoadAll() (map[string]*config.AccountConfig, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.WithField("path", s.path).Debug("Accounts file not found, starting empty")
			return map[string]*config.AccountConfig{}, nil
		}
		return nil, &IOError{Op: "read", Path: s.path, Err: err}
	}

	accounts := Parse(data)
	s.logger.WithFields(logrus.Fields{
		"path":  s.path,
		"count": len(accounts),
	}).Debug("Loaded accounts")
	return accounts, nil
}

// Parse decodes the accounts file format. Unknown keys and lines outside a
// block are ignored; missing or malformed ports fall back to the defaults.
func Parse(data []byte) map[string]*config.AccountConfig {
	accounts := make(map[string]*config.AccountConfig)
	var current *config.AccountConfig

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			current = nil
			section := strings.TrimSpace(line[1 : len(line)-1])
			if !strings.HasPrefix(section, headerPrefix) {
				continue
			}
			name := strings.TrimSpace(strings.TrimPrefix(section, headerPrefix))
			if name == "" {
				continue
			}
			current = &config.AccountConfig{
				Name:     name,
				IMAPPort: config.DefaultIMAPPort,
				SMTPPort: config.DefaultSMTPPort,
			}
			accounts[name] = current
			continue
		}

		if current == nil {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "email":
			current.Email = value
		case "password":
			current.Password = value
		case "imap_server":
			current.IMAPServer = value
		case "imap_port":
			current.IMAPPort = parsePort(value, config.DefaultIMAPPort)
		case "smtp_server":
			current.SMTPServer = value
		case "smtp_port":
			current.SMTPPort = parsePort(value, config.DefaultSMTPPort)
		}
	}

	return accounts
}

func parsePort(value string, def int) int {
	port, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return port
}

// Format encodes accounts in name order, one block per account.
func Format(accounts map[string]*config.AccountConfig) []byte {
	names := make([]string, 0, len(accounts))
	for name := range accounts {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	for _, name := range names {
		acc := accounts[name]
		fmt.Fprintf(&buf, "[%s%s]\n", headerPrefix, name)
		fmt.Fprintf(&buf, "email=%s\n", acc.Email)
		fmt.Fprintf(&buf, "password=%s\n", acc.Password)
		fmt.Fprintf(&buf, "imap_server=%s\n", acc.IMAPServer)
		fmt.Fprintf(&buf, "imap_port=%d\n", acc.IMAPPort)
		fmt.Fprintf(&buf, "smtp_server=%s\n", acc.SMTPServer)
		fmt.Fprintf(&buf, "smtp_port=%d\n", acc.SMTPPort)
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

// SaveAll replaces the file contents with the given accounts. The previous
// file stays intact if anything fails before the final rename.
func (s *AccountStore) SaveAll(accounts map[string]*config.AccountConfig) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return &IOError{Op: "create directory for", Path: s.path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &IOError{Op: "create temp file for", Path: s.path, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(Format(accounts)); err != nil {
		tmp.Close() //nolint:errcheck
		return &IOError{Op: "write", Path: s.path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return &IOError{Op: "sync", Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &IOError{Op: "close", Path: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return &IOError{Op: "replace", Path: s.path, Err: err}
	}

	s.logger.WithFields(logrus.Fields{
		"path":  s.path,
		"count": len(accounts),
	}).Info("Saved accounts")
	return nil
}

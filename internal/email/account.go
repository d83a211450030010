package email

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-client/internal/cache"
	"github.com/brandon/mail-client/internal/config"
	"github.com/brandon/mail-client/pkg/types"
)

// AccountStore persists the full set of accounts
type AccountStore interface {
	LoadAll() (map[string]*config.AccountConfig, error)
	SaveAll(accounts map[string]*config.AccountConfig) error
}

// MessageView holds the messages shown for the active account
type MessageView interface {
	Replace(msgs []types.Message) error
	Clear() error
	List() ([]types.Message, error)
	Get(serverID uint32) (*types.Message, error)
	Search(opts cache.SearchOptions) ([]types.Message, error)
}

// AccountManager owns the configured accounts, the active account and the
// message view. Every mutation is persisted before it becomes visible.
type AccountManager struct {
	mu       sync.RWMutex
	accounts map[string]*config.AccountConfig
	active   *config.AccountConfig

	store  AccountStore
	view   MessageView
	logger *logrus.Logger
}

// NewAccountManager loads all accounts and activates the first one by name
func NewAccountManager(store AccountStore, view MessageView, logger *logrus.Logger) (*AccountManager, error) {
	accounts, err := store.LoadAll()
	if err != nil {
		return nil, &StoreIOError{Err: err}
	}

	m := &AccountManager{
		accounts: accounts,
		store:    store,
		view:     view,
		logger:   logger,
	}

	if names := m.sortedNames(); len(names) > 0 {
		m.active = m.accounts[names[0]]
	}

	logger.WithFields(logrus.Fields{
		"count":  len(accounts),
		"active": m.activeName(),
	}).Info("Accounts loaded")
	return m, nil
}

func (m *AccountManager) sortedNames() []string {
	names := make([]string, 0, len(m.accounts))
	for name := range m.accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *AccountManager) activeName() string {
	if m.active == nil {
		return ""
	}
	return m.active.Name
}

func (m *AccountManager) persist() error {
	if err := m.store.SaveAll(m.accounts); err != nil {
		m.logger.WithError(err).Error("Failed to save accounts")
		return &StoreIOError{Err: err}
	}
	return nil
}

func (m *AccountManager) clearView() {
	if err := m.view.Clear(); err != nil {
		m.logger.WithError(err).Warn("Failed to clear message view")
	}
}

func normalize(acc config.AccountConfig) (config.AccountConfig, error) {
	acc.Name = strings.TrimSpace(acc.Name)
	acc.Email = strings.TrimSpace(acc.Email)
	acc.IMAPServer = strings.TrimSpace(acc.IMAPServer)
	acc.SMTPServer = strings.TrimSpace(acc.SMTPServer)
	acc = acc.WithDefaults()
	if err := acc.Validate(); err != nil {
		return acc, &ValidationError{Field: "account", Message: err.Error()}
	}
	return acc, nil
}

// ListAccounts returns every account sorted by name
func (m *AccountManager) ListAccounts() []types.AccountSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := m.sortedNames()
	out := make([]types.AccountSummary, 0, len(names))
	for _, name := range names {
		acc := m.accounts[name]
		out = append(out, types.AccountSummary{
			Name:       acc.Name,
			Email:      acc.Email,
			IMAPServer: acc.IMAPServer,
			IMAPPort:   acc.IMAPPort,
			SMTPServer: acc.SMTPServer,
			SMTPPort:   acc.SMTPPort,
			Active:     acc == m.active,
		})
	}
	return out
}

// ActiveAccount returns a copy of the active account
func (m *AccountManager) ActiveAccount() (config.AccountConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.active == nil {
		return config.AccountConfig{}, false
	}
	return *m.active, true
}

// AddAccount stores a new account. It becomes active when none is.
func (m *AccountManager) AddAccount(acc config.AccountConfig) error {
	acc, err := normalize(acc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[acc.Name]; exists {
		return &ValidationError{Field: "name", Message: fmt.Sprintf("account %q already exists", acc.Name)}
	}

	stored := &acc
	m.accounts[acc.Name] = stored
	if err := m.persist(); err != nil {
		delete(m.accounts, acc.Name)
		return err
	}

	if m.active == nil {
		m.active = stored
		m.clearView()
	}

	m.logger.WithField("account", acc.Name).Info("Account added")
	return nil
}

// DeleteAccount removes an account. Deleting the active account leaves no
// account active and empties the view.
func (m *AccountManager) DeleteAccount(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}

	delete(m.accounts, name)
	if err := m.persist(); err != nil {
		m.accounts[name] = acc
		return err
	}

	if m.active == acc {
		m.active = nil
		m.clearView()
	}

	m.logger.WithField("account", name).Info("Account deleted")
	return nil
}

// SwitchActive makes name the active account and empties the view
func (m *AccountManager) SwitchActive(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}

	m.active = acc
	m.clearView()

	m.logger.WithField("account", name).Info("Switched active account")
	return nil
}

// RenameActive changes the name of the active account
func (m *AccountManager) RenameActive(newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return ErrNoActiveAccount
	}

	updated := *m.active
	updated.Name = newName
	updated, err := normalize(updated)
	if err != nil {
		return err
	}
	return m.updateActiveLocked(updated)
}

// UpdateActive replaces the active account's settings. A name that belongs to
// another account rejects the whole update.
func (m *AccountManager) UpdateActive(updated config.AccountConfig) error {
	updated, err := normalize(updated)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return ErrNoActiveAccount
	}
	return m.updateActiveLocked(updated)
}

// updateActiveLocked must be called with m.mu held for writing and a non-nil
// active account.
func (m *AccountManager) updateActiveLocked(updated config.AccountConfig) error {
	prev := *m.active
	if updated == prev {
		return nil
	}

	renamed := updated.Name != prev.Name
	if renamed {
		if _, exists := m.accounts[updated.Name]; exists {
			return &ValidationError{Field: "name", Message: fmt.Sprintf("account %q already exists", updated.Name)}
		}
	}

	*m.active = updated
	if renamed {
		delete(m.accounts, prev.Name)
		m.accounts[updated.Name] = m.active
	}

	if err := m.persist(); err != nil {
		if renamed {
			delete(m.accounts, updated.Name)
			m.accounts[prev.Name] = m.active
		}
		*m.active = prev
		return err
	}

	m.logger.WithFields(logrus.Fields{
		"account":  updated.Name,
		"previous": prev.Name,
	}).Info("Account updated")
	return nil
}

// Messages returns the current message view
func (m *AccountManager) Messages() ([]types.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view.List()
}

// Message returns one message from the current view
func (m *AccountManager) Message(serverID uint32) (*types.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view.Get(serverID)
}

// SearchMessages filters the current view
func (m *AccountManager) SearchMessages(opts cache.SearchOptions) ([]types.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view.Search(opts)
}

// activeSnapshot returns the active account's identity and a copy of its settings.
func (m *AccountManager) activeSnapshot() (*config.AccountConfig, config.AccountConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.active == nil {
		return nil, config.AccountConfig{}, false
	}
	return m.active, *m.active, true
}

// publish replaces the view with msgs if ref is still the active account.
func (m *AccountManager) publish(ref *config.AccountConfig, msgs []types.Message) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != ref {
		return false, nil
	}
	if err := m.view.Replace(msgs); err != nil {
		return true, fmt.Errorf("failed to update message view: %w", err)
	}
	return true, nil
}

package email

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/mail-client/internal/cache"
	"github.com/brandon/mail-client/internal/config"
	"github.com/brandon/mail-client/internal/store"
	"github.com/brandon/mail-client/pkg/types"
)

// memoryStore keeps saved accounts in memory and can be told to fail.
type memoryStore struct {
	saved   map[string]config.AccountConfig
	saves   int
	failErr error
}

func newMemoryStore(accounts ...config.AccountConfig) *memoryStore {
	s := &memoryStore{saved: map[string]config.AccountConfig{}}
	for _, a := range accounts {
		s.saved[a.Name] = a
	}
	return s
}

func (s *memoryStore) LoadAll() (map[string]*config.AccountConfig, error) {
	if s.failErr != nil {
		return nil, s.failErr
	}
	out := make(map[string]*config.AccountConfig, len(s.saved))
	for name, a := range s.saved {
		a := a
		out[name] = &a
	}
	return out, nil
}

func (s *memoryStore) SaveAll(accounts map[string]*config.AccountConfig) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.saves++
	s.saved = map[string]config.AccountConfig{}
	for name, a := range accounts {
		s.saved[name] = *a
	}
	return nil
}

func account(name string) config.AccountConfig {
	return config.AccountConfig{
		Name:       name,
		Email:      name + "@example.com",
		Password:   "pw",
		IMAPServer: "imap.example.com",
		IMAPPort:   993,
		SMTPServer: "smtp.example.com",
		SMTPPort:   587,
	}
}

func newTestView(t *testing.T) *cache.View {
	t.Helper()
	c, err := cache.NewCache(testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return cache.NewView(c, testLogger())
}

func newTestAccountManager(t *testing.T, st AccountStore) (*AccountManager, *cache.View) {
	t.Helper()
	view := newTestView(t)
	m, err := NewAccountManager(st, view, testLogger())
	require.NoError(t, err)
	return m, view
}

func names(summaries []types.AccountSummary) []string {
	out := []string{}
	for _, s := range summaries {
		out = append(out, s.Name)
	}
	return out
}

func TestNewAccountManagerActivatesFirstByName(t *testing.T) {
	m, _ := newTestAccountManager(t, newMemoryStore(account("work"), account("home"), account("side")))

	active, ok := m.ActiveAccount()
	require.True(t, ok)
	assert.Equal(t, "home", active.Name)

	list := m.ListAccounts()
	assert.Equal(t, []string{"home", "side", "work"}, names(list))
	assert.True(t, list[0].Active)
	assert.False(t, list[1].Active)
}

func TestNewAccountManagerEmpty(t *testing.T) {
	m, _ := newTestAccountManager(t, newMemoryStore())

	_, ok := m.ActiveAccount()
	assert.False(t, ok)
	assert.Empty(t, m.ListAccounts())
}

func TestNewAccountManagerLoadFailure(t *testing.T) {
	st := newMemoryStore()
	st.failErr = errors.New("disk on fire")

	_, err := NewAccountManager(st, newTestView(t), testLogger())
	var ioErr *StoreIOError
	require.True(t, errors.As(err, &ioErr), "got %T: %v", err, err)
}

func TestAddAccount(t *testing.T) {
	st := newMemoryStore()
	m, _ := newTestAccountManager(t, st)

	require.NoError(t, m.AddAccount(account("home")))
	active, ok := m.ActiveAccount()
	require.True(t, ok)
	assert.Equal(t, "home", active.Name)
	assert.Contains(t, st.saved, "home")

	require.NoError(t, m.AddAccount(account("work")))
	active, _ = m.ActiveAccount()
	assert.Equal(t, "home", active.Name, "adding must not steal the active account")
	assert.Len(t, st.saved, 2)
}

func TestAddAccountAppliesDefaultPorts(t *testing.T) {
	st := newMemoryStore()
	m, _ := newTestAccountManager(t, st)

	acc := account("home")
	acc.IMAPPort = 0
	acc.SMTPPort = 0
	require.NoError(t, m.AddAccount(acc))

	assert.Equal(t, config.DefaultIMAPPort, st.saved["home"].IMAPPort)
	assert.Equal(t, config.DefaultSMTPPort, st.saved["home"].SMTPPort)
}

func TestAddAccountRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.AccountConfig)
	}{
		{name: "empty name", mutate: func(a *config.AccountConfig) { a.Name = "  " }},
		{name: "empty email", mutate: func(a *config.AccountConfig) { a.Email = "" }},
		{name: "port out of range", mutate: func(a *config.AccountConfig) { a.SMTPPort = 70000 }},
		{name: "duplicate", mutate: func(a *config.AccountConfig) { a.Name = "home" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newMemoryStore(account("home"))
			m, _ := newTestAccountManager(t, st)

			acc := account("other")
			tt.mutate(&acc)

			err := m.AddAccount(acc)
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "got %T: %v", err, err)
			assert.Zero(t, st.saves)
			assert.Len(t, m.ListAccounts(), 1)
		})
	}
}

func TestAddAccountPersistFailureRollsBack(t *testing.T) {
	st := newMemoryStore()
	m, _ := newTestAccountManager(t, st)
	st.failErr = errors.New("read-only filesystem")

	err := m.AddAccount(account("home"))
	var ioErr *StoreIOError
	require.True(t, errors.As(err, &ioErr))
	assert.Empty(t, m.ListAccounts())
	_, ok := m.ActiveAccount()
	assert.False(t, ok)
}

func TestDeleteActiveAccount(t *testing.T) {
	st := newMemoryStore(account("home"), account("work"))
	m, view := newTestAccountManager(t, st)
	require.NoError(t, view.Replace([]types.Message{{ServerID: 1, Subject: "hi"}}))

	require.NoError(t, m.DeleteAccount("home"))

	_, ok := m.ActiveAccount()
	assert.False(t, ok)
	msgs, err := m.Messages()
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, []string{"work"}, names(m.ListAccounts()))
	assert.NotContains(t, st.saved, "home")
}

func TestDeleteOtherAccountKeepsView(t *testing.T) {
	st := newMemoryStore(account("home"), account("work"))
	m, view := newTestAccountManager(t, st)
	require.NoError(t, view.Replace([]types.Message{{ServerID: 1, Subject: "hi"}}))

	require.NoError(t, m.DeleteAccount("work"))

	active, ok := m.ActiveAccount()
	require.True(t, ok)
	assert.Equal(t, "home", active.Name)
	msgs, err := m.Messages()
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestDeleteUnknownAccount(t *testing.T) {
	m, _ := newTestAccountManager(t, newMemoryStore(account("home")))

	err := m.DeleteAccount("nope")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.Len(t, m.ListAccounts(), 1)
}

func TestSwitchActiveClearsView(t *testing.T) {
	m, view := newTestAccountManager(t, newMemoryStore(account("home"), account("work")))
	require.NoError(t, view.Replace([]types.Message{{ServerID: 1}}))

	require.NoError(t, m.SwitchActive("work"))

	active, _ := m.ActiveAccount()
	assert.Equal(t, "work", active.Name)
	msgs, err := m.Messages()
	require.NoError(t, err)
	assert.Empty(t, msgs)

	assert.ErrorIs(t, m.SwitchActive("nope"), ErrAccountNotFound)
	active, _ = m.ActiveAccount()
	assert.Equal(t, "work", active.Name)
}

func TestRenameActive(t *testing.T) {
	st := newMemoryStore(account("home"), account("work"))
	m, _ := newTestAccountManager(t, st)

	require.NoError(t, m.RenameActive("personal"))

	active, _ := m.ActiveAccount()
	assert.Equal(t, "personal", active.Name)
	assert.Equal(t, "home@example.com", active.Email)
	assert.Equal(t, []string{"personal", "work"}, names(m.ListAccounts()))
	assert.Contains(t, st.saved, "personal")
	assert.NotContains(t, st.saved, "home")
}

func TestRenameActiveUnchangedIsNoop(t *testing.T) {
	st := newMemoryStore(account("home"))
	m, _ := newTestAccountManager(t, st)

	require.NoError(t, m.RenameActive("home"))
	assert.Zero(t, st.saves)
}

func TestRenameActiveCollision(t *testing.T) {
	st := newMemoryStore(account("home"), account("work"))
	m, _ := newTestAccountManager(t, st)
	before := m.ListAccounts()

	err := m.RenameActive("work")
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr), "got %T: %v", err, err)

	assert.Equal(t, before, m.ListAccounts())
	assert.Equal(t, account("work"), st.saved["work"])
	assert.Zero(t, st.saves)
}

func TestRenameWithoutActiveAccount(t *testing.T) {
	m, _ := newTestAccountManager(t, newMemoryStore())
	assert.ErrorIs(t, m.RenameActive("x"), ErrNoActiveAccount)
}

func TestRenameActiveRejectsInvalidName(t *testing.T) {
	st := newMemoryStore(account("home"))
	m, _ := newTestAccountManager(t, st)

	for _, name := range []string{"  ", "new\nname"} {
		err := m.RenameActive(name)
		var vErr *ValidationError
		assert.True(t, errors.As(err, &vErr), "name %q: got %T: %v", name, err, err)
	}

	active, _ := m.ActiveAccount()
	assert.Equal(t, account("home"), active)
	assert.Zero(t, st.saves)
}

func TestRenameActiveConcurrentWithSwitch(t *testing.T) {
	view := newTestView(t)

	for i := 0; i < 50; i++ {
		st := newMemoryStore(account("home"), account("work"))
		m, err := NewAccountManager(st, view, testLogger())
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.SwitchActive("work"))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, m.RenameActive("personal"))
		}()
		wg.Wait()

		// Whichever account got renamed keeps its own settings.
		emails := map[string]string{}
		for _, acc := range m.ListAccounts() {
			emails[acc.Name] = acc.Email
		}
		require.Len(t, emails, 2)
		if _, ok := emails["home"]; ok {
			assert.Equal(t, map[string]string{"home": "home@example.com", "personal": "work@example.com"}, emails)
		} else {
			assert.Equal(t, map[string]string{"personal": "home@example.com", "work": "work@example.com"}, emails)
		}
	}
}

func TestUpdateActive(t *testing.T) {
	st := newMemoryStore(account("home"))
	m, _ := newTestAccountManager(t, st)

	updated := account("home")
	updated.IMAPServer = "mail.example.net"
	updated.SMTPPort = 465
	require.NoError(t, m.UpdateActive(updated))

	active, _ := m.ActiveAccount()
	assert.Equal(t, "mail.example.net", active.IMAPServer)
	assert.Equal(t, 465, st.saved["home"].SMTPPort)
}

func TestUpdateActivePersistFailureRollsBack(t *testing.T) {
	st := newMemoryStore(account("home"))
	m, _ := newTestAccountManager(t, st)
	st.failErr = errors.New("read-only filesystem")

	updated := account("renamed")
	updated.IMAPServer = "mail.example.net"

	err := m.UpdateActive(updated)
	var ioErr *StoreIOError
	require.True(t, errors.As(err, &ioErr))

	active, _ := m.ActiveAccount()
	assert.Equal(t, account("home"), active)
	assert.Equal(t, []string{"home"}, names(m.ListAccounts()))
}

func TestPublishDropsStaleResults(t *testing.T) {
	m, _ := newTestAccountManager(t, newMemoryStore(account("home"), account("work")))

	ref, _, ok := m.activeSnapshot()
	require.True(t, ok)
	require.NoError(t, m.SwitchActive("work"))

	applied, err := m.publish(ref, []types.Message{{ServerID: 1}})
	require.NoError(t, err)
	assert.False(t, applied)

	msgs, err := m.Messages()
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestAccountManagerWithFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.txt")
	st := store.NewAccountStore(path, testLogger())

	m, _ := newTestAccountManager(t, st)
	require.NoError(t, m.AddAccount(account("home")))
	require.NoError(t, m.AddAccount(account("work")))
	require.NoError(t, m.RenameActive("personal"))

	reloaded, _ := newTestAccountManager(t, store.NewAccountStore(path, testLogger()))
	assert.Equal(t, []string{"personal", "work"}, names(reloaded.ListAccounts()))
	active, _ := reloaded.ActiveAccount()
	assert.Equal(t, "home@example.com", active.Email)
}

func TestAddAccountRejectsLineBreaks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.txt")
	m, _ := newTestAccountManager(t, store.NewAccountStore(path, testLogger()))

	acc := account("work")
	acc.Password = "pw\n[account ghost]\nemail=evil@x.com"

	err := m.AddAccount(acc)
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr), "got %T: %v", err, err)
	assert.Empty(t, m.ListAccounts())

	require.NoError(t, m.AddAccount(account("work")))
	updated := account("work")
	updated.SMTPServer = "smtp.example.com\r\n[account ghost]"
	require.True(t, errors.As(m.UpdateActive(updated), &vErr))

	reloaded, _ := newTestAccountManager(t, store.NewAccountStore(path, testLogger()))
	assert.Equal(t, []string{"work"}, names(reloaded.ListAccounts()))
	active, _ := reloaded.ActiveAccount()
	assert.Equal(t, account("work"), active)
}

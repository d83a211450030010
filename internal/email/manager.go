package email

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-client/internal/config"
	"github.com/brandon/mail-client/pkg/types"
)

// ErrAccountSwitched is returned by a refresh whose account stopped being
// active before the results arrived. The results are discarded.
var ErrAccountSwitched = errors.New("active account changed during refresh")

// InboxFetcher retrieves the most recent inbox messages
type InboxFetcher interface {
	FetchRecent(ctx context.Context) ([]types.Message, error)
}

// MessageSender submits one outgoing message
type MessageSender interface {
	Send(ctx context.Context, msg *types.OutgoingMessage) error
}

// InboxResult is delivered by RefreshInboxAsync
type InboxResult struct {
	Messages []types.Message
	Err      error
}

// Manager runs mailbox operations for the active account
type Manager struct {
	accounts *AccountManager
	opts     TransportOptions
	logger   *logrus.Logger

	newFetcher func(config.AccountConfig) InboxFetcher
	newSender  func(config.AccountConfig) MessageSender

	mu       sync.Mutex
	inFlight map[*config.AccountConfig]bool
}

// NewManager creates a new email manager
func NewManager(cfg *config.Config, accounts *AccountManager, logger *logrus.Logger) *Manager {
	m := &Manager{
		accounts: accounts,
		opts:     OptionsFromConfig(cfg),
		logger:   logger,
		inFlight: make(map[*config.AccountConfig]bool),
	}
	m.newFetcher = func(acc config.AccountConfig) InboxFetcher {
		return NewMailboxSession(acc, m.opts, m.logger)
	}
	m.newSender = func(acc config.AccountConfig) MessageSender {
		return NewDispatcher(acc, m.opts, m.logger)
	}
	return m
}

// Accounts returns the account manager backing m
func (m *Manager) Accounts() *AccountManager {
	return m.accounts
}

func (m *Manager) acquire(ref *config.AccountConfig) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight[ref] {
		return false
	}
	m.inFlight[ref] = true
	return true
}

func (m *Manager) release(ref *config.AccountConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, ref)
}

// RefreshInbox fetches the newest inbox messages for the active account and
// publishes them to the message view.
func (m *Manager) RefreshInbox(ctx context.Context) ([]types.Message, error) {
	ref, acc, ok := m.accounts.activeSnapshot()
	if !ok {
		return nil, ErrNoActiveAccount
	}

	if !m.acquire(ref) {
		return nil, ErrOperationInProgress
	}
	defer m.release(ref)

	log := m.logger.WithFields(logrus.Fields{
		"account": acc.Name,
		"server":  acc.IMAPServer,
	})
	log.Info("Refreshing inbox")

	msgs, err := m.newFetcher(acc).FetchRecent(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to refresh inbox")
		return nil, fmt.Errorf("failed to refresh inbox for %s: %w", acc.Name, err)
	}

	applied, err := m.accounts.publish(ref, msgs)
	if err != nil {
		return nil, err
	}
	if !applied {
		log.Info("Discarding inbox results for inactive account")
		return nil, ErrAccountSwitched
	}

	log.WithField("count", len(msgs)).Info("Inbox refreshed")
	return msgs, nil
}

// RefreshInboxAsync runs RefreshInbox on its own goroutine. The channel
// receives exactly one result and is then closed.
func (m *Manager) RefreshInboxAsync(ctx context.Context) <-chan InboxResult {
	ch := make(chan InboxResult, 1)
	go func() {
		defer close(ch)
		msgs, err := m.RefreshInbox(ctx)
		ch <- InboxResult{Messages: msgs, Err: err}
	}()
	return ch
}

// ComposeAndSend sends a plain-text message from the active account. to is a
// comma-separated recipient list.
func (m *Manager) ComposeAndSend(ctx context.Context, to, subject, body string) error {
	ref, acc, ok := m.accounts.activeSnapshot()
	if !ok {
		return ErrNoActiveAccount
	}

	recipients, err := ParseRecipients(to)
	if err != nil {
		return err
	}

	if !m.acquire(ref) {
		return ErrOperationInProgress
	}
	defer m.release(ref)

	msg := &types.OutgoingMessage{
		From:    acc.Email,
		To:      recipients,
		Subject: subject,
		Body:    body,
	}

	log := m.logger.WithFields(logrus.Fields{
		"account": acc.Name,
		"server":  acc.SMTPServer,
		"count":   len(recipients),
	})

	if err := m.newSender(acc).Send(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to send email")
		return fmt.Errorf("failed to send email: %w", err)
	}

	log.Info("Email sent")
	return nil
}

// ComposeAndSendAsync runs ComposeAndSend on its own goroutine
func (m *Manager) ComposeAndSendAsync(ctx context.Context, to, subject, body string) <-chan error {
	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		ch <- m.ComposeAndSend(ctx, to, subject, body)
	}()
	return ch
}

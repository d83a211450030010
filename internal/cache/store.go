package cache

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-client/pkg/types"
)

// ErrNotFound is returned when no message with the requested server ID is in view
var ErrNotFound = errors.New("message not in view")

// View is the list of messages currently shown for the active account
type View struct {
	cache  *Cache
	logger *logrus.Logger
}

// NewView creates a new view over the cache
func NewView(cache *Cache, logger *logrus.Logger) *View {
	return &View{
		cache:  cache,
		logger: logger,
	}
}

// Replace swaps the whole view for msgs, keeping their order.
func (v *View) Replace(msgs []types.Message) error {
	tx, err := v.cache.DB().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec("DELETE FROM messages"); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO messages (position, server_id, subject, from_addr, to_addr, body)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, msg := range msgs {
		if _, err := stmt.Exec(i, msg.ServerID, msg.Subject, msg.From, msg.To, msg.Body); err != nil {
			return fmt.Errorf("failed to insert message %d: %w", msg.ServerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit messages: %w", err)
	}

	v.logger.WithField("count", len(msgs)).Debug("Replaced mailbox view")
	return nil
}

// Clear empties the view
func (v *View) Clear() error {
	if _, err := v.cache.DB().Exec("DELETE FROM messages"); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	return nil
}

// List returns every message in display order
func (v *View) List() ([]types.Message, error) {
	rows, err := v.cache.DB().Query(`
		SELECT server_id, subject, from_addr, to_addr, body
		FROM messages
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// Get returns the message with the given server ID
func (v *View) Get(serverID uint32) (*types.Message, error) {
	var msg types.Message
	err := v.cache.DB().QueryRow(`
		SELECT server_id, subject, from_addr, to_addr, body
		FROM messages
		WHERE server_id = ?
	`, serverID).Scan(&msg.ServerID, &msg.Subject, &msg.From, &msg.To, &msg.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &msg, nil
}

// Count returns the number of messages in view
func (v *View) Count() (int, error) {
	var n int
	if err := v.cache.DB().QueryRow("SELECT COUNT(*) FROM messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func scanMessages(rows *sql.Rows) ([]types.Message, error) {
	msgs := []types.Message{}
	for rows.Next() {
		var msg types.Message
		if err := rows.Scan(&msg.ServerID, &msg.Subject, &msg.From, &msg.To, &msg.Body); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return msgs, nil
}

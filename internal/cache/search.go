package cache

import (
	"fmt"
	"strings"

	"github.com/brandon/mail-client/pkg/types"
)

// SearchOptions contains search parameters. Set fields are combined with AND.
type SearchOptions struct {
	// Text matches subject, sender, recipient or body
	Text      *string
	Sender    *string
	Recipient *string
	Subject   *string
	Body      *string
	Limit     int
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	return "%" + strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s) + "%"
}

// Search finds messages in the current view, in display order
func (v *View) Search(opts SearchOptions) ([]types.Message, error) {
	var conditions []string
	var args []interface{}

	if opts.Text != nil {
		term := escapeLike(*opts.Text)
		conditions = append(conditions, `(subject LIKE ? ESCAPE '\' OR from_addr LIKE ? ESCAPE '\' OR to_addr LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\')`)
		args = append(args, term, term, term, term)
	}

	if opts.Sender != nil {
		conditions = append(conditions, `from_addr LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(*opts.Sender))
	}

	if opts.Recipient != nil {
		conditions = append(conditions, `to_addr LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(*opts.Recipient))
	}

	if opts.Subject != nil {
		conditions = append(conditions, `subject LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(*opts.Subject))
	}

	if opts.Body != nil {
		conditions = append(conditions, `body LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(*opts.Body))
	}

	query := "SELECT server_id, subject, from_addr, to_addr, body FROM messages"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY position"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := v.cache.DB().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	v.logger.WithField("count", len(msgs)).Debug("Searched mailbox view")
	return msgs, nil
}

package tools

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-client/internal/cache"
	"github.com/brandon/mail-client/internal/email"
	"github.com/brandon/mail-client/pkg/types"
)

const snippetLength = 120

func summarize(msgs []types.Message) []map[string]interface{} {
	list := make([]map[string]interface{}, len(msgs))
	for i, msg := range msgs {
		snippet := []rune(msg.Body)
		if len(snippet) > snippetLength {
			snippet = snippet[:snippetLength]
		}
		list[i] = map[string]interface{}{
			"server_id": msg.ServerID,
			"subject":   msg.Subject,
			"from":      msg.From,
			"to":        msg.To,
			"snippet":   string(snippet),
		}
	}
	return list
}

// RefreshInboxTool fetches the newest messages for the active account
type RefreshInboxTool struct {
	manager *email.Manager
	logger  *logrus.Logger
}

// NewRefreshInboxTool creates a new refresh inbox tool
func NewRefreshInboxTool(manager *email.Manager, logger *logrus.Logger) *RefreshInboxTool {
	return &RefreshInboxTool{manager: manager, logger: logger}
}

// Name returns the tool name
func (t *RefreshInboxTool) Name() string {
	return "refresh_inbox"
}

// Description returns the tool description
func (t *RefreshInboxTool) Description() string {
	return "Fetch the 20 most recent INBOX messages of the active account, newest first"
}

// InputSchema returns the JSON schema for tool inputs
func (t *RefreshInboxTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// Execute executes the tool
func (t *RefreshInboxTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	res := <-t.manager.RefreshInboxAsync(ctx)
	if res.Err != nil {
		return nil, res.Err
	}

	return map[string]interface{}{
		"count":    len(res.Messages),
		"messages": summarize(res.Messages),
	}, nil
}

// GetMessageTool returns one message from the current list
type GetMessageTool struct {
	manager *email.Manager
	logger  *logrus.Logger
}

// NewGetMessageTool creates a new get message tool
func NewGetMessageTool(manager *email.Manager, logger *logrus.Logger) *GetMessageTool {
	return &GetMessageTool{manager: manager, logger: logger}
}

// Name returns the tool name
func (t *GetMessageTool) Name() string {
	return "get_message"
}

// Description returns the tool description
func (t *GetMessageTool) Description() string {
	return "Show a message from the last inbox refresh, including its plain-text body"
}

// InputSchema returns the JSON schema for tool inputs
func (t *GetMessageTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"server_id": intProp("Server ID from refresh_inbox or search_inbox"),
		},
		"required": []string{"server_id"},
	}
}

// Execute executes the tool
func (t *GetMessageTool) Execute(_ context.Context, params map[string]interface{}) (interface{}, error) {
	id, ok, err := intParam(params, "server_id")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("server_id is required")
	}
	if id <= 0 || int64(id) > math.MaxUint32 {
		return nil, fmt.Errorf("invalid server_id: %d is out of range", id)
	}

	msg, err := t.manager.Accounts().Message(uint32(id))
	if errors.Is(err, cache.ErrNotFound) {
		return nil, fmt.Errorf("message %d is not in the current list", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return msg, nil
}

// SearchInboxTool filters the current message list
type SearchInboxTool struct {
	manager *email.Manager
	logger  *logrus.Logger
}

// NewSearchInboxTool creates a new search inbox tool
func NewSearchInboxTool(manager *email.Manager, logger *logrus.Logger) *SearchInboxTool {
	return &SearchInboxTool{manager: manager, logger: logger}
}

// Name returns the tool name
func (t *SearchInboxTool) Name() string {
	return "search_inbox"
}

// Description returns the tool description
func (t *SearchInboxTool) Description() string {
	return "Search the messages from the last inbox refresh (substring match, case-insensitive for ASCII)"
}

// InputSchema returns the JSON schema for tool inputs
func (t *SearchInboxTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query":     stringProp("Optional: Match subject, sender, recipient or body"),
			"sender":    stringProp("Optional: Filter by sender"),
			"recipient": stringProp("Optional: Filter by recipient"),
			"subject":   stringProp("Optional: Filter by subject"),
			"body":      stringProp("Optional: Filter by body"),
			"limit":     intProp("Optional: Result limit"),
		},
	}
}

// Execute executes the tool
func (t *SearchInboxTool) Execute(_ context.Context, params map[string]interface{}) (interface{}, error) {
	opts := cache.SearchOptions{}

	if query, ok := stringParam(params, "query"); ok && query != "" {
		opts.Text = &query
	}
	if sender, ok := stringParam(params, "sender"); ok && sender != "" {
		opts.Sender = &sender
	}
	if recipient, ok := stringParam(params, "recipient"); ok && recipient != "" {
		opts.Recipient = &recipient
	}
	if subject, ok := stringParam(params, "subject"); ok && subject != "" {
		opts.Subject = &subject
	}
	if body, ok := stringParam(params, "body"); ok && body != "" {
		opts.Body = &body
	}

	limit, _, err := intParam(params, "limit")
	if err != nil {
		return nil, err
	}
	opts.Limit = limit

	results, err := t.manager.Accounts().SearchMessages(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}

	return summarize(results), nil
}

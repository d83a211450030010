package tools

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-client/internal/email"
)

// SendEmailTool sends a plain-text email from the active account
type SendEmailTool struct {
	manager *email.Manager
	logger  *logrus.Logger
}

// NewSendEmailTool creates a new send email tool
func NewSendEmailTool(manager *email.Manager, logger *logrus.Logger) *SendEmailTool {
	return &SendEmailTool{manager: manager, logger: logger}
}

// Name returns the tool name
func (t *SendEmailTool) Name() string {
	return "send_email"
}

// Description returns the tool description
func (t *SendEmailTool) Description() string {
	return "Send a plain-text email from the active account"
}

// InputSchema returns the JSON schema for tool inputs
func (t *SendEmailTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"to": map[string]interface{}{
				"type":        "string",
				"description": "Recipient email address(es) (comma-separated)",
			},
			"subject": map[string]interface{}{
				"type":        "string",
				"description": "Email subject",
			},
			"body": map[string]interface{}{
				"type":        "string",
				"description": "Plain text body",
			},
		},
		"required": []string{"to"},
	}
}

// Execute executes the tool
func (t *SendEmailTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	to, err := requiredString(params, "to")
	if err != nil {
		return nil, err
	}

	subject, _ := stringParam(params, "subject")
	body, _ := stringParam(params, "body")

	if err := <-t.manager.ComposeAndSendAsync(ctx, to, subject, body); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Email sent to %s", to),
	}, nil
}

package tools

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-client/internal/config"
	"github.com/brandon/mail-client/internal/email"
)

func accountProperties(nameDescription string) map[string]interface{} {
	return map[string]interface{}{
		"name":        stringProp(nameDescription),
		"email":       stringProp("Email address, also used as the login"),
		"password":    stringProp("Password for IMAP and SMTP"),
		"imap_server": stringProp("IMAP host"),
		"imap_port":   intProp("IMAP port (default: 993)"),
		"smtp_server": stringProp("SMTP host"),
		"smtp_port":   intProp("SMTP port (default: 587)"),
	}
}

// applyAccountParams overlays the account fields present in params onto acc.
func applyAccountParams(acc config.AccountConfig, params map[string]interface{}) (config.AccountConfig, error) {
	if v, ok := stringParam(params, "name"); ok {
		acc.Name = v
	}
	if v, ok := stringParam(params, "email"); ok {
		acc.Email = v
	}
	if v, ok := stringParam(params, "password"); ok {
		acc.Password = v
	}
	if v, ok := stringParam(params, "imap_server"); ok {
		acc.IMAPServer = v
	}
	if v, ok := stringParam(params, "smtp_server"); ok {
		acc.SMTPServer = v
	}

	port, ok, err := intParam(params, "imap_port")
	if err != nil {
		return acc, err
	}
	if ok {
		acc.IMAPPort = port
	}

	port, ok, err = intParam(params, "smtp_port")
	if err != nil {
		return acc, err
	}
	if ok {
		acc.SMTPPort = port
	}

	return acc, nil
}

// ListAccountsTool lists configured accounts
type ListAccountsTool struct {
	manager *email.Manager
	logger  *logrus.Logger
}

// NewListAccountsTool creates a new list accounts tool
func NewListAccountsTool(manager *email.Manager, logger *logrus.Logger) *ListAccountsTool {
	return &ListAccountsTool{manager: manager, logger: logger}
}

// Name returns the tool name
func (t *ListAccountsTool) Name() string {
	return "list_accounts"
}

// Description returns the tool description
func (t *ListAccountsTool) Description() string {
	return "List configured email accounts and show which one is active"
}

// InputSchema returns the JSON schema for tool inputs
func (t *ListAccountsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// Execute executes the tool
func (t *ListAccountsTool) Execute(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	return t.manager.Accounts().ListAccounts(), nil
}

// AddAccountTool adds a new account
type AddAccountTool struct {
	manager *email.Manager
	logger  *logrus.Logger
}

// NewAddAccountTool creates a new add account tool
func NewAddAccountTool(manager *email.Manager, logger *logrus.Logger) *AddAccountTool {
	return &AddAccountTool{manager: manager, logger: logger}
}

// Name returns the tool name
func (t *AddAccountTool) Name() string {
	return "add_account"
}

// Description returns the tool description
func (t *AddAccountTool) Description() string {
	return "Add an email account. The first account added becomes active."
}

// InputSchema returns the JSON schema for tool inputs
func (t *AddAccountTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": accountProperties("Unique account name"),
		"required":   []string{"name", "email"},
	}
}

// Execute executes the tool
func (t *AddAccountTool) Execute(_ context.Context, params map[string]interface{}) (interface{}, error) {
	acc, err := applyAccountParams(config.AccountConfig{}, params)
	if err != nil {
		return nil, err
	}

	if err := t.manager.Accounts().AddAccount(acc); err != nil {
		return nil, fmt.Errorf("failed to add account: %w", err)
	}

	return map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Account %s added", acc.Name),
	}, nil
}

// DeleteAccountTool removes an account
type DeleteAccountTool struct {
	manager *email.Manager
	logger  *logrus.Logger
}

// NewDeleteAccountTool creates a new delete account tool
func NewDeleteAccountTool(manager *email.Manager, logger *logrus.Logger) *DeleteAccountTool {
	return &DeleteAccountTool{manager: manager, logger: logger}
}

// Name returns the tool name
func (t *DeleteAccountTool) Name() string {
	return "delete_account"
}

// Description returns the tool description
func (t *DeleteAccountTool) Description() string {
	return "Delete an email account by name"
}

// InputSchema returns the JSON schema for tool inputs
func (t *DeleteAccountTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": stringProp("Account to delete"),
		},
		"required": []string{"name"},
	}
}

// Execute executes the tool
func (t *DeleteAccountTool) Execute(_ context.Context, params map[string]interface{}) (interface{}, error) {
	name, err := requiredString(params, "name")
	if err != nil {
		return nil, err
	}

	if err := t.manager.Accounts().DeleteAccount(name); err != nil {
		return nil, fmt.Errorf("failed to delete account: %w", err)
	}

	return map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Account %s deleted", name),
	}, nil
}

// SwitchAccountTool changes the active account
type SwitchAccountTool struct {
	manager *email.Manager
	logger  *logrus.Logger
}

// NewSwitchAccountTool creates a new switch account tool
func NewSwitchAccountTool(manager *email.Manager, logger *logrus.Logger) *SwitchAccountTool {
	return &SwitchAccountTool{manager: manager, logger: logger}
}

// Name returns the tool name
func (t *SwitchAccountTool) Name() string {
	return "switch_account"
}

// Description returns the tool description
func (t *SwitchAccountTool) Description() string {
	return "Make another account active. The message list is emptied until the next refresh."
}

// InputSchema returns the JSON schema for tool inputs
func (t *SwitchAccountTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": stringProp("Account to activate"),
		},
		"required": []string{"name"},
	}
}

// Execute executes the tool
func (t *SwitchAccountTool) Execute(_ context.Context, params map[string]interface{}) (interface{}, error) {
	name, err := requiredString(params, "name")
	if err != nil {
		return nil, err
	}

	if err := t.manager.Accounts().SwitchActive(name); err != nil {
		return nil, fmt.Errorf("failed to switch account: %w", err)
	}

	return map[string]interface{}{
		"success": true,
		"active":  name,
	}, nil
}

// UpdateAccountTool edits or renames the active account
type UpdateAccountTool struct {
	manager *email.Manager
	logger  *logrus.Logger
}

// NewUpdateAccountTool creates a new update account tool
func NewUpdateAccountTool(manager *email.Manager, logger *logrus.Logger) *UpdateAccountTool {
	return &UpdateAccountTool{manager: manager, logger: logger}
}

// Name returns the tool name
func (t *UpdateAccountTool) Name() string {
	return "update_account"
}

// Description returns the tool description
func (t *UpdateAccountTool) Description() string {
	return "Edit the active account. Omitted fields keep their current value; a new name renames the account."
}

// InputSchema returns the JSON schema for tool inputs
func (t *UpdateAccountTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": accountProperties("New account name"),
	}
}

// Execute executes the tool
func (t *UpdateAccountTool) Execute(_ context.Context, params map[string]interface{}) (interface{}, error) {
	accounts := t.manager.Accounts()

	current, ok := accounts.ActiveAccount()
	if !ok {
		return nil, email.ErrNoActiveAccount
	}

	updated, err := applyAccountParams(current, params)
	if err != nil {
		return nil, err
	}

	if err := accounts.UpdateActive(updated); err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}

	active, _ := accounts.ActiveAccount()
	return map[string]interface{}{
		"success": true,
		"active":  active.Name,
	}, nil
}

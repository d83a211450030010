package types

// Message is one fetched INBOX message as shown to the user
type Message struct {
	// ServerID is the IMAP sequence number; only meaningful for the session that fetched it
	ServerID uint32 `json:"server_id"`
	Subject  string `json:"subject"`
	From     string `json:"from"`
	To       string `json:"to"`
	Body     string `json:"body"`
}

// OutgoingMessage is a message composed for sending
type OutgoingMessage struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// AccountSummary describes a configured account without its password
type AccountSummary struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	IMAPServer string `json:"imap_server"`
	IMAPPort   int    `json:"imap_port"`
	SMTPServer string `json:"smtp_server"`
	SMTPPort   int    `json:"smtp_port"`
	Active     bool   `json:"active"`
}

package email

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-client/internal/config"
	"github.com/brandon/mail-client/pkg/types"
)

const (
	// RecentLimit is the number of newest INBOX messages fetched per refresh
	RecentLimit = 20

	imapsPort = 993
	inboxName = "INBOX"
)

// MailboxSession performs one INBOX refresh over a fresh IMAP connection.
type MailboxSession struct {
	account config.AccountConfig
	opts    TransportOptions
	logger  *logrus.Logger

	fetchMessage func(c *imapConn, id uint32) (types.Message, error)
}

// NewMailboxSession creates a session for the account (does not connect immediately)
func NewMailboxSession(account config.AccountConfig, opts TransportOptions, logger *logrus.Logger) *MailboxSession {
	s := &MailboxSession{
		account: account,
		opts:    opts,
		logger:  logger,
	}
	s.fetchMessage = s.fetchOne
	return s
}

// imapConn bundles the client with the socket that tracks deadline expiry.
type imapConn struct {
	*client.Client
	raw *timeoutConn
}

// connect dials the server, upgrades with STARTTLS where possible and returns
// an unauthenticated client.
func (s *MailboxSession) connect(ctx context.Context) (*imapConn, error) {
	addr := s.account.IMAPAddress()
	implicitTLS := s.account.IMAPPort == imapsPort

	raw, conn, err := dial(ctx, "IMAP", addr, s.account.IMAPServer, implicitTLS, s.opts)
	if err != nil {
		return nil, err
	}

	if s.opts.ReadTimeout > 0 {
		conn.SetDeadline(time.Now().Add(s.opts.ReadTimeout)) //nolint:errcheck
	}
	c, err := client.New(conn)
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, s.transportError(raw, "greeting", err, func(err error) error {
			return &ConnectionError{Protocol: "IMAP", Addr: addr, Err: err}
		})
	}
	c.ErrorLog = s.logger
	c.Timeout = s.opts.ReadTimeout

	ic := &imapConn{Client: c, raw: raw}
	if implicitTLS {
		return ic, nil
	}

	if err := s.startTLS(ic); err != nil {
		c.Terminate() //nolint:errcheck
		return nil, err
	}
	return ic, nil
}

// startTLS upgrades the connection when the server offers STARTTLS. Without
// it the session stays in plaintext unless RequireTLS is set.
func (s *MailboxSession) startTLS(c *imapConn) error {
	log := s.logger.WithFields(logrus.Fields{
		"account": s.account.Name,
		"server":  s.account.IMAPServer,
	})

	supported, err := c.SupportStartTLS()
	if err != nil {
		return s.transportError(c.raw, "capability", err, func(err error) error {
			return &ProtocolError{Protocol: "IMAP", Op: "capability", Err: err}
		})
	}

	if supported {
		err = c.StartTLS(s.opts.tlsConfig(s.account.IMAPServer))
		if err == nil {
			return nil
		}
		if c.raw.TimedOut() {
			return &TimeoutError{Protocol: "IMAP", Op: "starttls", Err: err}
		}
		if s.opts.RequireTLS {
			return &ConnectionError{Protocol: "IMAP", Addr: s.account.IMAPAddress(), Err: fmt.Errorf("%w: %v", ErrTLSRequired, err)}
		}
		// A refused STARTTLS leaves the session usable, a broken handshake does not.
		if probeErr := c.Noop(); probeErr != nil {
			return &ConnectionError{Protocol: "IMAP", Addr: s.account.IMAPAddress(), Err: err}
		}
		log.WithError(err).Warn("STARTTLS failed, continuing without encryption")
		return nil
	}

	if s.opts.RequireTLS {
		return &ConnectionError{Protocol: "IMAP", Addr: s.account.IMAPAddress(), Err: ErrTLSRequired}
	}
	log.Warn("Server does not offer STARTTLS, continuing without encryption")
	return nil
}

// FetchRecent logs in, selects INBOX and returns up to RecentLimit of the
// newest messages, newest first. Messages that cannot be read are skipped.
func (s *MailboxSession) FetchRecent(ctx context.Context) ([]types.Message, error) {
	log := s.logger.WithFields(logrus.Fields{
		"account": s.account.Name,
		"server":  s.account.IMAPServer,
	})

	c, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer s.disconnect(c)

	if err := c.Login(s.account.Email, s.account.Password); err != nil {
		log.WithError(err).Error("Failed to login to IMAP server")
		return nil, s.transportError(c.raw, "login", err, func(err error) error {
			return &AuthenticationError{Protocol: "IMAP", Server: s.account.IMAPServer, Err: err}
		})
	}

	if _, err := c.Select(inboxName, false); err != nil {
		return nil, s.commandError(c, "select", err)
	}

	ids, err := c.Search(imap.NewSearchCriteria())
	if err != nil {
		return nil, s.commandError(c, "search", err)
	}

	messages := make([]types.Message, 0, min(len(ids), RecentLimit))
	if len(ids) == 0 {
		log.Info("INBOX is empty")
		return messages, nil
	}

	if len(ids) > RecentLimit {
		ids = ids[len(ids)-RecentLimit:]
	}

	for i := len(ids) - 1; i >= 0; i-- {
		id := ids[i]
		msg, err := s.fetchMessage(c, id)
		if err != nil {
			var protoErr *ProtocolError
			var timeoutErr *TimeoutError
			if errors.As(err, &protoErr) || errors.As(err, &timeoutErr) {
				return nil, err
			}
			log.WithError(err).WithField("id", id).Warn("Skipping unreadable message")
			continue
		}
		messages = append(messages, msg)
	}

	log.WithField("count", len(messages)).Info("Fetched INBOX")
	return messages, nil
}

// fetchOne retrieves a single message by sequence number. Command failures
// come back as ProtocolError; anything else means the message itself is bad.
func (s *MailboxSession) fetchOne(c *imapConn, id uint32) (types.Message, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(id)

	items := []imap.FetchItem{imap.FetchRFC822}
	fetched := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	go func() {
		done <- c.Fetch(seqset, items, fetched)
	}()

	var raw []byte
	var got bool
	for msg := range fetched {
		got = true
		raw = s.readBody(msg)
	}

	if err := <-done; err != nil {
		return types.Message{}, s.commandError(c, "fetch", err)
	}
	if !got {
		return types.Message{}, fmt.Errorf("message %d not returned by server", id)
	}

	return ParseMessage(id, raw)
}

// readBody finds the RFC822 literal in a FETCH response.
func (s *MailboxSession) readBody(msg *imap.Message) []byte {
	if msg == nil || msg.Body == nil {
		return nil
	}

	literal := msg.GetBody(&imap.BodySectionName{})
	if literal == nil {
		for _, l := range msg.Body {
			if l != nil {
				literal = l
				break
			}
		}
	}
	if literal == nil {
		return nil
	}

	body, err := io.ReadAll(literal)
	if err != nil {
		s.logger.WithError(err).Error("Error reading literal")
		return nil
	}
	return body
}

func (s *MailboxSession) commandError(c *imapConn, op string, err error) error {
	return s.transportError(c.raw, op, err, func(err error) error {
		return &ProtocolError{Protocol: "IMAP", Op: op, Err: err}
	})
}

func (s *MailboxSession) transportError(raw *timeoutConn, op string, err error, fallback func(error) error) error {
	if raw != nil && raw.TimedOut() {
		return &TimeoutError{Protocol: "IMAP", Op: op, Err: err}
	}
	return classifyNetError("IMAP", op, err, fallback)
}

// disconnect closes the mailbox, logs out and drops the socket.
func (s *MailboxSession) disconnect(c *imapConn) {
	if c.State() == imap.SelectedState {
		if err := c.Close(); err != nil {
			s.logger.WithError(err).Debug("IMAP CLOSE failed")
		}
	}
	if err := c.Logout(); err != nil {
		s.logger.WithError(err).Debug("IMAP LOGOUT failed")
	}
	c.Terminate() //nolint:errcheck
}

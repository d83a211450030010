package email

import (
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mail-client/internal/config"
	"github.com/brandon/mail-client/pkg/types"
)

const smtpsPort = 465

// Dispatcher submits one message over a fresh SMTP connection.
type Dispatcher struct {
	account config.AccountConfig
	opts    TransportOptions
	logger  *logrus.Logger
}

// NewDispatcher creates a new dispatcher for the account
func NewDispatcher(account config.AccountConfig, opts TransportOptions, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		account: account,
		opts:    opts,
		logger:  logger,
	}
}

type smtpConn struct {
	*smtp.Client
	raw *timeoutConn
}

func (d *Dispatcher) connect(ctx context.Context) (*smtpConn, error) {
	addr := d.account.SMTPAddress()
	implicitTLS := d.account.SMTPPort == smtpsPort

	raw, conn, err := dial(ctx, "SMTP", addr, d.account.SMTPServer, implicitTLS, d.opts)
	if err != nil {
		return nil, err
	}

	if d.opts.ReadTimeout > 0 {
		conn.SetDeadline(time.Now().Add(d.opts.ReadTimeout)) //nolint:errcheck
	}
	c, err := smtp.NewClient(conn, d.account.SMTPServer)
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, d.transportError(raw, "greeting", err, func(err error) error {
			return &ConnectionError{Protocol: "SMTP", Addr: addr, Err: err}
		})
	}
	if d.opts.ReadTimeout > 0 {
		c.CommandTimeout = d.opts.ReadTimeout
		c.SubmissionTimeout = d.opts.ReadTimeout
	}

	sc := &smtpConn{Client: c, raw: raw}
	if implicitTLS {
		return sc, nil
	}

	if err := d.startTLS(sc); err != nil {
		c.Close() //nolint:errcheck
		return nil, err
	}
	return sc, nil
}

// startTLS mirrors the IMAP policy: upgrade when offered, otherwise continue
// in plaintext unless RequireTLS is set.
func (d *Dispatcher) startTLS(c *smtpConn) error {
	log := d.logger.WithFields(logrus.Fields{
		"account": d.account.Name,
		"server":  d.account.SMTPServer,
	})

	if ok, _ := c.Extension("STARTTLS"); ok {
		err := c.StartTLS(d.opts.tlsConfig(d.account.SMTPServer))
		if err == nil {
			return nil
		}
		if c.raw.TimedOut() {
			return &TimeoutError{Protocol: "SMTP", Op: "starttls", Err: err}
		}
		if d.opts.RequireTLS {
			return &ConnectionError{Protocol: "SMTP", Addr: d.account.SMTPAddress(), Err: fmt.Errorf("%w: %v", ErrTLSRequired, err)}
		}
		// A refused STARTTLS leaves the session usable, a broken handshake does not.
		if probeErr := c.Noop(); probeErr != nil {
			return &ConnectionError{Protocol: "SMTP", Addr: d.account.SMTPAddress(), Err: err}
		}
		log.WithError(err).Warn("STARTTLS failed, continuing without encryption")
		return nil
	}

	if d.opts.RequireTLS {
		return &ConnectionError{Protocol: "SMTP", Addr: d.account.SMTPAddress(), Err: ErrTLSRequired}
	}
	log.Warn("Server does not offer STARTTLS, continuing without encryption")
	return nil
}

// Send delivers msg to every recipient the server accepts. Refused recipients
// are reported through a PartialDeliveryError; when all are refused no DATA is sent.
func (d *Dispatcher) Send(ctx context.Context, msg *types.OutgoingMessage) error {
	log := d.logger.WithFields(logrus.Fields{
		"account":    d.account.Name,
		"server":     d.account.SMTPServer,
		"recipients": len(msg.To),
	})

	if len(msg.To) == 0 {
		return &ValidationError{Field: "recipients", Message: "at least one recipient is required"}
	}

	c, err := d.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close() //nolint:errcheck

	if err := c.Auth(sasl.NewPlainClient("", d.account.Email, d.account.Password)); err != nil {
		log.WithError(err).Error("Failed to authenticate to SMTP server")
		return d.transportError(c.raw, "auth", err, func(err error) error {
			return &AuthenticationError{Protocol: "SMTP", Server: d.account.SMTPServer, Err: err}
		})
	}

	if err := c.Mail(msg.From, nil); err != nil {
		return d.commandError(c, "mail", err)
	}

	var accepted []string
	rejected := make(map[string]error)
	for _, rcpt := range msg.To {
		if err := c.Rcpt(rcpt); err != nil {
			if c.raw.TimedOut() || isNetTimeout(err) {
				return &TimeoutError{Protocol: "SMTP", Op: "rcpt", Err: err}
			}
			log.WithError(err).WithField("recipient", rcpt).Warn("Recipient rejected")
			rejected[rcpt] = err
			continue
		}
		accepted = append(accepted, rcpt)
	}

	if len(accepted) == 0 {
		if err := c.Reset(); err != nil {
			log.WithError(err).Debug("SMTP RSET failed")
		}
		c.Quit() //nolint:errcheck
		return &PartialDeliveryError{Rejected: rejected}
	}

	w, err := c.Data()
	if err != nil {
		return d.commandError(c, "data", err)
	}
	if _, err := w.Write(Encode(msg)); err != nil {
		w.Close() //nolint:errcheck
		return d.commandError(c, "data", err)
	}
	if err := w.Close(); err != nil {
		return d.commandError(c, "data", err)
	}

	if err := c.Quit(); err != nil {
		log.WithError(err).Debug("SMTP QUIT failed")
	}

	if len(rejected) > 0 {
		return &PartialDeliveryError{Accepted: accepted, Rejected: rejected}
	}

	log.Info("Message sent")
	return nil
}

func (d *Dispatcher) commandError(c *smtpConn, op string, err error) error {
	return d.transportError(c.raw, op, err, func(err error) error {
		return &ProtocolError{Protocol: "SMTP", Op: op, Err: err}
	})
}

func (d *Dispatcher) transportError(raw *timeoutConn, op string, err error, fallback func(error) error) error {
	if raw != nil && raw.TimedOut() {
		return &TimeoutError{Protocol: "SMTP", Op: op, Err: err}
	}
	return classifyNetError("SMTP", op, err, fallback)
}

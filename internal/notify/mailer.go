package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/goodtune/socialtracker/internal/apperr"
	"github.com/goodtune/socialtracker/internal/config"
)

// Connection security modes for the SMTP relay.
const (
	SecurityAuto     = "auto"
	SecurityNone     = "none"
	SecurityStartTLS = "starttls"
	SecurityTLS      = "tls"
)

// Mailer delivers a plain-text email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	addr      string
	from      string
	username  string
	password  string
	security  string
	tlsConfig *tls.Config
	now       func() time.Time
}

// NewSMTPMailer creates a mailer from the email configuration
func NewSMTPMailer(cfg config.EmailConfig) *SMTPMailer {
	security := cfg.Security
	if security == "" || security == SecurityAuto {
		// Credentials never cross the wire in clear text.
		security = SecurityNone
		if cfg.Username != "" {
			security = SecurityStartTLS
		}
	}

	return &SMTPMailer{
		addr:      net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from:      cfg.From,
		username:  cfg.Username,
		password:  cfg.Password,
		security:  security,
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
		now:       time.Now,
	}
}

// Send delivers the message. The whole exchange, dial included, ends when
// ctx is done.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := m.send(ctx, to, m.compose(to, subject, body)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return apperr.Upstream("smtp", ctxErr)
		}
		return apperr.Upstream("smtp", err)
	}
	return nil
}

func (m *SMTPMailer) send(ctx context.Context, to string, msg []byte) error {
	conn, err := m.dial(ctx)
	if err != nil {
		return fmt.Errorf("establish connection to server: %w", err)
	}

	// The client resets socket deadlines on every command, so a finished
	// context closes the connection instead.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var c *smtp.Client
	if m.security == SecurityStartTLS {
		c, err = smtp.NewClientStartTLS(conn, m.tlsConfig)
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("starttls: %w", err)
		}
	} else {
		c = smtp.NewClient(conn)
	}

	if err := m.transmit(c, to, msg); err != nil {
		_ = c.Close()
		return err
	}
	if err := c.Quit(); err != nil {
		_ = c.Close()
	}
	return nil
}

func (m *SMTPMailer) dial(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	if m.security == SecurityTLS {
		td := tls.Dialer{NetDialer: &d, Config: m.tlsConfig}
		return td.DialContext(ctx, "tcp", m.addr)
	}
	return d.DialContext(ctx, "tcp", m.addr)
}

func (m *SMTPMailer) transmit(c *smtp.Client, to string, msg []byte) error {
	if m.username != "" {
		if err := c.Auth(sasl.NewPlainClient("", m.username, m.password)); err != nil {
			return fmt.Errorf("plain auth: %w", err)
		}
	}
	if err := c.SendMail(m.from, []string{to}, bytes.NewReader(msg)); err != nil {
		return fmt.Errorf("message transmission: %w", err)
	}
	return nil
}

func (m *SMTPMailer) compose(to, subject, body string) []byte {
	var msg bytes.Buffer
	_, _ = fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	_, _ = fmt.Fprintf(&msg, "To: %s\r\n", to)
	_, _ = fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	_, _ = fmt.Fprintf(&msg, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	_, _ = fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	msg.WriteString("\r\n")
	return msg.Bytes()
}

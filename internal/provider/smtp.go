package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/dailydose/internal/domain"
)

// ErrSMTPAuthUnavailable reports credentials configured for a server that
// does not offer AUTH.
var ErrSMTPAuthUnavailable = errors.New("smtp server does not offer AUTH")

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// ImplicitTLS opens the connection with TLS (SMTPS, usually port 465)
	// instead of upgrading with STARTTLS.
	ImplicitTLS bool
	From        string
	FromName    string
}

// SMTPMailer delivers email over SMTP. Without implicit TLS it upgrades with
// STARTTLS when the server offers it.
type SMTPMailer struct {
	cfg       SMTPConfig
	from      mail.Address
	tlsConfig *tls.Config
	dial      func(ctx context.Context, network, addr string) (net.Conn, error)
	now       func() time.Time
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid smtp port %d", cfg.Port)
	}
	from, err := mail.ParseAddress(strings.TrimSpace(cfg.From))
	if err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if name := strings.TrimSpace(cfg.FromName); name != "" {
		from.Name = name
	}

	dialer := &net.Dialer{}
	return &SMTPMailer{
		cfg:       cfg,
		from:      *from,
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
		dial:      dialer.DialContext,
		now:       time.Now,
	}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, email domain.Email) (*SendResponse, error) {
	if m == nil || m.dial == nil {
		return nil, fmt.Errorf("mailer is not initialized")
	}
	if err := email.Validate(); err != nil {
		return nil, &ProviderError{Message: "invalid email", Cause: err}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	localPart := email.IdempotencyKey
	if localPart == "" {
		localPart = uuid.NewString()
	}
	messageID := fmt.Sprintf("<%s@%s>", localPart, m.cfg.Host)
	msg := m.buildMessage(email, messageID)

	if err := m.deliver(ctx, email.To, msg); err != nil {
		return nil, classifySMTPError(ctx, err)
	}

	return &SendResponse{MessageID: messageID}, nil
}

func (m *SMTPMailer) deliver(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	conn, err := m.dial(ctx, "tcp", addr)
	if err != nil {
		return &ProviderError{
			Message:   fmt.Sprintf("smtp dial %s failed", addr),
			Transient: true,
			Cause:     err,
		}
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	// Unblock any pending read or write as soon as ctx is done.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if m.cfg.ImplicitTLS {
		tlsConn := tls.Client(conn, m.tlsConfig.Clone())
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return fmt.Errorf("smtp tls handshake: %w", err)
		}
		conn = tlsConn
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer client.Close()

	if !m.cfg.ImplicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(m.tlsConfig.Clone()); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}

	if m.cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); !ok {
			return &ProviderError{Message: "smtp auth", Cause: ErrSMTPAuthUnavailable}
		}
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(m.from.Address); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp end of data: %w", err)
	}

	return client.Quit()
}

func (m *SMTPMailer) buildMessage(email domain.Email, messageID string) []byte {
	var buf bytes.Buffer
	to := mail.Address{Address: email.To}

	headers := [][2]string{
		{"From", m.from.String()},
		{"To", to.String()},
		{"Subject", mime.QEncoding.Encode("utf-8", email.Subject)},
		{"Date", m.now().Format(time.RFC1123Z)},
		{"Message-ID", messageID},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/plain; charset=UTF-8"},
		{"Content-Transfer-Encoding", "8bit"},
	}
	for _, h := range headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", h[0], h[1])
	}
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(strings.ReplaceAll(email.Body, "\r\n", "\n"), "\n", "\r\n"))
	buf.WriteString("\r\n")

	return buf.Bytes()
}

func classifySMTPError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &ProviderError{
			Message:   "smtp send interrupted",
			Transient: !errors.Is(ctxErr, context.Canceled),
			Cause:     errors.Join(ctxErr, err),
		}
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return err
	}

	return &ProviderError{
		Message:   "smtp send failed",
		Transient: IsTransient(err),
		Cause:     err,
	}
}

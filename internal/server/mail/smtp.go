package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"

	"github.com/dmitrijs2005/contactkeeper/internal/common"
	"github.com/dmitrijs2005/contactkeeper/internal/logging"
	"github.com/dmitrijs2005/contactkeeper/internal/server/config"
)

// SMTPSender delivers mail through an SMTP relay, upgrading to TLS when the
// server offers STARTTLS.
type SMTPSender struct {
	*renderer
	host       string
	addr       string
	auth       smtp.Auth
	redirectTo string
	logger     logging.Logger
	tlsConfig  *tls.Config
}

func NewSMTPSender(cfg *config.Config, logger logging.Logger) (*SMTPSender, error) {
	r, err := newRenderer(cfg.MailFrom)
	if err != nil {
		return nil, err
	}

	var auth smtp.Auth
	if cfg.MailUsername != "" {
		auth = smtp.PlainAuth("", cfg.MailUsername, cfg.MailPassword, cfg.MailHost)
	}

	return &SMTPSender{
		renderer:   r,
		host:       cfg.MailHost,
		addr:       net.JoinHostPort(cfg.MailHost, strconv.Itoa(cfg.MailPort)),
		auth:       auth,
		redirectTo: cfg.MailRedirectTo,
		logger:     logger,
		tlsConfig:  &tls.Config{ServerName: cfg.MailHost, MinVersion: tls.VersionTLS12},
	}, nil
}

func (s *SMTPSender) Send(ctx context.Context, to, tmpl string, params map[string]string) error {
	if s.redirectTo != "" {
		s.logger.Info(ctx, "mail test mode, redirecting", "template", tmpl, "to", s.redirectTo)
		to = s.redirectTo
	}

	msg, err := s.message(to, tmpl, params)
	if err != nil {
		return err
	}

	if err := s.deliver(ctx, to, msg); err != nil {
		return classify(fmt.Errorf("send %s mail: %w", tmpl, err))
	}
	s.logger.Info(ctx, "mail sent", "template", tmpl)
	return nil
}

func (s *SMTPSender) deliver(ctx context.Context, to string, msg []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(s.tlsConfig); err != nil {
			return err
		}
	}
	if s.auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(s.auth); err != nil {
				return err
			}
		}
	}

	if err := c.Mail(s.from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// classify marks 4xx replies as transient. Network failures are already
// recognised by common.IsTransient; 5xx replies are permanent.
func classify(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 400 && tpErr.Code < 500 {
		return common.MarkTransient(err)
	}
	return err
}

// Package mail renders and delivers the account e-mails (verification and
// password reset).
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"mime"
	"strings"
	"time"
)

const (
	TemplateVerifyEmail   = "verify_email"
	TemplateResetPassword = "reset_password"
)

//go:embed templates/*.html
var templateFS embed.FS

var subjects = map[string]string{
	TemplateVerifyEmail:   "Confirm your email",
	TemplateResetPassword: "Reset your password",
}

// Sender delivers one templated message. Implementations return errors
// marked with common.MarkTransient when a retry could succeed.
type Sender interface {
	Send(ctx context.Context, to, tmpl string, params map[string]string) error
}

type renderer struct {
	tmpl *template.Template
	from string
	now  func() time.Time
}

func newRenderer(from string) (*renderer, error) {
	t, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &renderer{tmpl: t, from: from, now: time.Now}, nil
}

// message builds a complete RFC 5322 message for tmpl.
func (r *renderer) message(to, tmpl string, params map[string]string) ([]byte, error) {
	subject, ok := subjects[tmpl]
	if !ok {
		return nil, fmt.Errorf("unknown mail template %q", tmpl)
	}

	var body bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&body, tmpl+".html", params); err != nil {
		return nil, fmt.Errorf("render %s: %w", tmpl, err)
	}

	var msg bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&msg, "%s: %s\r\n", k, v) }
	header("From", r.from)
	header("To", to)
	header("Subject", mime.QEncoding.Encode("utf-8", subject))
	header("Date", r.now().UTC().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="UTF-8"`)
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(body.String(), "\n", "\r\n"))
	return msg.Bytes(), nil
}

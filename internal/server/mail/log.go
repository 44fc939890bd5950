package mail

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/contactkeeper/internal/logging"
)

// LogSender is used when no SMTP host is configured. It writes the rendered
// message to w so a developer can follow the links, and logs the event
// without the message body.
type LogSender struct {
	*renderer
	mu     sync.Mutex
	w      io.Writer
	logger logging.Logger
}

func NewLogSender(from string, w io.Writer, logger logging.Logger) (*LogSender, error) {
	r, err := newRenderer(from)
	if err != nil {
		return nil, err
	}
	return &LogSender{renderer: r, w: w, logger: logger}, nil
}

func (s *LogSender) Send(ctx context.Context, to, tmpl string, params map[string]string) error {
	msg, err := s.message(to, tmpl, params)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "----- mail to %s -----\n%s\n", to, msg); err != nil {
		return err
	}
	s.logger.Info(ctx, "mail not sent, no smtp host configured", "template", tmpl)
	return nil
}

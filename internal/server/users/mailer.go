package users

import (
	"context"

	"github.com/dmitrijs2005/peerlearn/internal/logging"
)

// Mailer delivers verification codes.
type Mailer interface {
	SendVerificationCode(ctx context.Context, email, code string) error
}

// LogMailer writes codes to the log instead of sending mail.
type LogMailer struct {
	log logging.Logger
}

func NewLogMailer(log logging.Logger) *LogMailer {
	return &LogMailer{log: log.With("component", "mailer")}
}

func (m *LogMailer) SendVerificationCode(ctx context.Context, email, code string) error {
	m.log.Info(ctx, "verification code issued", "email", email, "code", code)
	return nil
}

package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// MailerFunc adapts a function into a Mailer
type MailerFunc func(ctx context.Context, msg MailMessage) error

// Send satisfies the Mailer interface
func (f MailerFunc) Send(ctx context.Context, msg MailMessage) error {
	if f == nil {
		return nil
	}
	return f(ctx, msg)
}

// logMailer prints outgoing notifications; the default until the host
// wires a real delivery backend.
type logMailer struct {
	logger Logger
}

// NewLogMailer returns a Mailer that only logs
func NewLogMailer(logger Logger) Mailer {
	if logger == nil {
		logger = defLogger{}
	}
	return &logMailer{logger: logger}
}

func (m *logMailer) Send(_ context.Context, msg MailMessage) error {
	m.logger.Info("mail to=%s subject=%q link=%s", msg.To, msg.Subject, msg.Link)
	return nil
}

// deliver wraps a send so downstream rejections surface as FailedDependency
func deliver(ctx context.Context, mailer Mailer, msg MailMessage) error {
	if mailer == nil {
		mailer = NewLogMailer(nil)
	}

	if err := mailer.Send(ctx, msg); err != nil {
		return goerrors.Wrap(err, ErrMailDelivery.Category, ErrMailDelivery.Message).
			WithTextCode(ErrMailDelivery.TextCode).
			WithCode(HTTPStatus(ErrMailDelivery))
	}

	return nil
}

package service

import (
	"context"
	"log/slog"
	"time"
)

const (
	NotifyVerifyEmail    = "verify_email"
	NotifyVerifyPhone    = "verify_phone"
	NotifyForgotPassword = "forgot_password"

	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Notification carries a raw one-time token to the delivery boundary. The raw
// token exists only here and in the recipient's inbox; everything stored is a
// peppered hash.
type Notification struct {
	Purpose   string
	Channel   string
	Recipient string
	Token     string
	ExpiresAt time.Time
}

type Notifier interface {
	Send(ctx context.Context, tenantRef string, n Notification) error
}

// LogNotifier writes notifications to the log instead of delivering them.
// Development stand-in for a mail/SMS provider integration. The raw token is
// only written when includeTokens is set; production keeps it out of the log
// stream even if this notifier ends up deployed there.
type LogNotifier struct {
	logger        *slog.Logger
	includeTokens bool
}

func NewLogNotifier(logger *slog.Logger, includeTokens bool) *LogNotifier {
	return &LogNotifier{logger: logger, includeTokens: includeTokens}
}

func (n *LogNotifier) Send(ctx context.Context, tenantRef string, notification Notification) error {
	attrs := []slog.Attr{
		slog.String("tenant", tenantRef),
		slog.String("purpose", notification.Purpose),
		slog.String("channel", notification.Channel),
		slog.String("recipient", notification.Recipient),
		slog.Time("expires_at", notification.ExpiresAt),
	}
	if n.includeTokens {
		attrs = append(attrs, slog.String("token", notification.Token))
	}
	n.logger.LogAttrs(ctx, slog.LevelInfo, "notification", attrs...)
	return nil
}

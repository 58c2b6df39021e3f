package service

import (
	"context"
	"log/slog"
)

// Sender delivers a verification code over the named channel. Delivery is
// an external collaborator; this service only hands it the code.
type Sender interface {
	Send(ctx context.Context, workspaceID, channel, contact, code string) error
}

// LogSender logs codes instead of delivering them. Development only.
type LogSender struct {
	Logger *slog.Logger
}

// Send logs the code at debug level.
func (s LogSender) Send(ctx context.Context, workspaceID, channel, contact, code string) error {
	s.Logger.DebugContext(ctx, "verification code issued",
		"workspace_id", workspaceID,
		"channel", channel,
		"contact", contact,
		"code", code,
	)
	return nil
}

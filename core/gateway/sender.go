package gateway

import (
	"context"

	"github.com/rs/zerolog"
	"go.dedis.ch/custody/core/access"
)

// LogSender is a sender that records the transfers in a log. It is the sender
// of a ledger whose payouts are settled out of band.
//
// - implements gateway.Sender
type LogSender struct {
	logger zerolog.Logger
}

// NewLogSender returns a sender writing to the logger.
func NewLogSender(logger zerolog.Logger) LogSender {
	return LogSender{
		logger: logger.With().Str("component", "sender").Logger(),
	}
}

// Send implements gateway.Sender. It never fails unless the context is done.
func (s LogSender) Send(ctx context.Context, to access.Principal, amount uint64) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	s.logger.Info().Str("to", to.String()).Uint64("amount", amount).Msg("transfer")

	return nil
}

package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mantisec/pkgwatch/monitor/dedup"
)

// Outcome is the terminal result of attempting one channel for one verdict.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeSkipped   Outcome = "skipped-already-reported"
	OutcomeFailed    Outcome = "failed-permanently"
)

// Channel is the shared dispatch contract for the closed set of output
// channels. Implementations live in the notify package.
type Channel interface {
	Name() string
	Send(ctx context.Context, v *Verdict) error
}

// Dispatcher renders and delivers a verdict across the configured channels.
// Channels are attempted independently: a failure in one never blocks the
// other. Chat is the required channel; email is best-effort with bounded
// retries.
type Dispatcher struct {
	Logger *slog.Logger
	Dedup  dedup.Tracker

	// Chat is required when configured; Email may be nil.
	Chat  Channel
	Email Channel

	// bounded retry budget for the best-effort email channel
	MailMaxAttempts int
	MailRetryBase   time.Duration
}

// DispatchResult reports the per-channel outcomes and whether the verdict
// reached a terminal outcome on the required channel (or, with no chat
// channel configured, on at least one channel).
type DispatchResult struct {
	Outcomes map[string]Outcome
	// Delivered is true when at least one channel actually sent a report.
	Delivered bool
	// Resolved is true when the required channel reached a terminal
	// outcome, successful or not. The engine uses this for checkpoint
	// accounting.
	Resolved bool
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Dispatch delivers one flagged verdict. Re-dispatch of an already-reported
// verdict is skipped on every channel and sends nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, v *Verdict) (*DispatchResult, error) {
	logger := d.logger().With("release", v.Key())
	res := &DispatchResult{Outcomes: make(map[string]Outcome)}

	key := dedup.Key(v.Name, v.Version, v.Flagged)
	seen, err := d.Dedup.HasReported(ctx, key)
	if err != nil {
		return nil, err
	}
	if seen {
		if d.Chat != nil {
			res.Outcomes[d.Chat.Name()] = OutcomeSkipped
		}
		if d.Email != nil {
			res.Outcomes[d.Email.Name()] = OutcomeSkipped
		}
		res.Resolved = true
		logger.Info("report already sent, skipping dispatch")
		return res, nil
	}

	if d.Chat != nil {
		if err := d.Chat.Send(ctx, v); err != nil {
			logger.Error("chat dispatch failed", "err", err)
			res.Outcomes[d.Chat.Name()] = OutcomeFailed
		} else {
			res.Outcomes[d.Chat.Name()] = OutcomeDelivered
			res.Delivered = true
		}
	}

	if d.Email != nil {
		attempts := d.MailMaxAttempts
		if attempts <= 0 {
			attempts = 3
		}
		base := d.MailRetryBase
		if base <= 0 {
			base = 500 * time.Millisecond
		}
		var cfgErr error
		err := retry(ctx, attempts, base, func() error {
			sendErr := d.Email.Send(ctx, v)
			if errors.Is(sendErr, ErrChannelMisconfigured) {
				// permanent, retrying cannot help
				cfgErr = sendErr
				return nil
			}
			return sendErr
		})
		if cfgErr != nil {
			err = cfgErr
		}
		if err != nil {
			// best-effort channel: log for operators, do not block
			logger.Error("email dispatch failed permanently", "err", err, "attempts", attempts)
			res.Outcomes[d.Email.Name()] = OutcomeFailed
		} else {
			res.Outcomes[d.Email.Name()] = OutcomeDelivered
			res.Delivered = true
		}
	}

	if d.Chat != nil {
		res.Resolved = res.Outcomes[d.Chat.Name()] == OutcomeDelivered
	} else {
		res.Resolved = res.Delivered
	}

	// mark only once the required channel has delivered: marking on an
	// email-only success would make the next cycle's dedup pre-check
	// swallow the chat report for good
	if res.Resolved && res.Delivered {
		if err := d.Dedup.MarkReported(ctx, key); err != nil {
			return nil, err
		}
	}
	return res, nil
}

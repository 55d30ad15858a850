// Package notify delivers verdict reports to the output channels. The
// channel set is closed and small (chat webhook, email); each channel is
// attempted and retried independently by the dispatcher.
package notify

import (
	"context"

	"github.com/mantisec/pkgwatch/monitor"
)

type Channel interface {
	Name() string
	Send(ctx context.Context, v *monitor.Verdict) error
}

package monitor

import "errors"

// Failure classes for the external collaborators. The engine classifies
// wrapped errors with errors.Is; none of these is ever fatal to the process.
var (
	// ErrSourceUnavailable wraps transport or decode failures talking to
	// the package index. Retryable at the cycle level with backoff.
	ErrSourceUnavailable = errors.New("package feed unavailable")

	// Scan failures are retryable per release with bounded attempts;
	// exhausting them leaves the release for the next cycle without
	// advancing the checkpoint past it.
	ErrScanTimeout         = errors.New("scan timed out")
	ErrScanService         = errors.New("scan service error")
	ErrArtifactUnavailable = errors.New("artifact unavailable")

	// ErrChannelMisconfigured marks a permanent delivery-channel
	// configuration problem, such as an unparseable mail address.
	// Dispatch fails the channel immediately instead of retrying.
	ErrChannelMisconfigured = errors.New("channel misconfigured")
)

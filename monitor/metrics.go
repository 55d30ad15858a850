package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("pkgwatch")

var releasesFetched = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pkgwatch_releases_fetched",
	Help: "Number of releases fetched from the package feed",
})

var releasesScanned = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pkgwatch_releases_scanned",
	Help: "Number of releases successfully scanned",
})

var releasesFlagged = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pkgwatch_releases_flagged",
	Help: "Number of releases flagged by the evaluator",
})

var scansFailed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pkgwatch_scans_failed",
	Help: "Number of releases whose scan failed after bounded retries",
})

var reportsSent = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pkgwatch_reports_sent",
	Help: "Number of flagged-release reports delivered on at least one channel",
})

var reportsSkipped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pkgwatch_reports_skipped",
	Help: "Number of dispatches skipped because the release was already reported",
})

var reportsFailed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pkgwatch_reports_failed",
	Help: "Number of dispatches that failed on every channel",
})

var sourceErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pkgwatch_source_errors",
	Help: "Number of polling cycles aborted because the feed was unavailable",
})

var checkpointUnix = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "pkgwatch_checkpoint_unix",
	Help: "Current checkpoint position as a unix timestamp",
})

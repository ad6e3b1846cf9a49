// Package metrics records session engine metrics in Prometheus.
package metrics

import "time"

// Collector defines the metrics the session engine records.
type Collector interface {
	RecordAnswer(accepted bool, reason string)
	RecordReconcilePass(result string)
	RecordDriftCorrected()
	RecordTimerExpired()
	RecordBroadcast(eventType string, delivered bool)
	RecordCommand(command, outcome string, duration time.Duration)
	SetActiveSessions(n int)
}

// Reconciliation pass results.
const (
	ReconcileOK    = "ok"
	ReconcileDrift = "drift"
	ReconcileError = "error"
	ReconcileStale = "stale"
)

// NoOp is a Collector for when metrics aren't needed
type NoOp struct{}

func (NoOp) RecordAnswer(bool, string)                   {}
func (NoOp) RecordReconcilePass(string)                  {}
func (NoOp) RecordDriftCorrected()                       {}
func (NoOp) RecordTimerExpired()                         {}
func (NoOp) RecordBroadcast(string, bool)                {}
func (NoOp) RecordCommand(string, string, time.Duration) {}
func (NoOp) SetActiveSessions(int)                       {}

// OrNoOp returns c, or NoOp when c is nil.
func OrNoOp(c Collector) Collector {
	if c == nil {
		return NoOp{}
	}
	return c
}

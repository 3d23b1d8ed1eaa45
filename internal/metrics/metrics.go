// Package metrics provides the MetricsRecorder interface and a noop implementation.
package metrics

import "time"

// MetricsRecorder is the interface for recording operational metrics.
type MetricsRecorder interface {
	// RecordEvent counts one dispatch of a player event.
	RecordEvent(event string)
	// RecordStorageWrite counts one cookie persist for namespace.
	RecordStorageWrite(namespace string, ok bool)
	// RecordSave counts one save-state request; policy is "blocking" or "async".
	RecordSave(policy string, ok bool)
	RecordHit(tier string)
	RecordMiss(tier string)
	RecordLatency(tier, op string, d time.Duration)
	RecordError(tier, op string)
	RecordDirtyCount(count int64)
}

// Noop is a MetricsRecorder that discards all data.
type Noop struct{}

func (Noop) RecordEvent(event string)                       {}
func (Noop) RecordStorageWrite(namespace string, ok bool)   {}
func (Noop) RecordSave(policy string, ok bool)              {}
func (Noop) RecordHit(tier string)                          {}
func (Noop) RecordMiss(tier string)                         {}
func (Noop) RecordLatency(tier, op string, d time.Duration) {}
func (Noop) RecordError(tier, op string)                    {}
func (Noop) RecordDirtyCount(count int64)                   {}

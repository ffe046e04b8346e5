package common

import "time"

// Record is one log entry handed to a sink: the record text plus the source
// path and read timestamp.
type Record struct {
	Path string
	Text string
	Time time.Time
}

// Sink specifies the minimal interface for a record-forwarding backend.
type Sink interface {
	Enqueue(rec Record)
	Stop() error
}

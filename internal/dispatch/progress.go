// Package dispatch runs scrape requests: it fans venues and sources out
// to the extractors, feeds candidates to the merge engine in per-venue
// order, and reports progress over a single-consumer stream.
package dispatch

import (
	"context"

	"github.com/citylore/server/internal/domain/events"
)

// RecordKind tags progress stream records.
type RecordKind string

const (
	KindProgress RecordKind = "progress"
	KindEvent    RecordKind = "event"
	KindError    RecordKind = "error"
	KindComplete RecordKind = "complete"
)

// Record is one tagged entry on the progress stream. Only the fields for
// its kind are set.
type Record struct {
	Kind RecordKind

	// progress
	Percentage int
	Message    string
	VenueName  string
	SourceName string

	// event
	Event *events.Event

	// complete
	TotalEvents int
	Outcome     events.Outcome
	ErrorCount  int
}

// Stream is the single-producer, single-consumer progress channel.
// Delivery is ordered and best effort: records buffered when the
// consumer goes away are discarded, never replayed.
type Stream struct {
	records chan Record
}

// streamBuffer absorbs short consumer stalls; a full buffer makes sends
// block so the producer back-pressures instead of dropping.
const streamBuffer = 64

func NewStream() *Stream {
	return &Stream{records: make(chan Record, streamBuffer)}
}

// Records is the consumer side.
func (s *Stream) Records() <-chan Record {
	return s.records
}

// Send delivers one record, blocking until the consumer takes it or ctx
// is cancelled. A cancelled ctx (consumer disconnect) returns false.
func (s *Stream) Send(ctx context.Context, rec Record) bool {
	select {
	case s.records <- rec:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close ends the stream; the consumer's range loop terminates.
func (s *Stream) Close() {
	close(s.records)
}

func (s *Stream) progress(ctx context.Context, pct int, msg, venueName, sourceName string) bool {
	return s.Send(ctx, Record{
		Kind:       KindProgress,
		Percentage: pct,
		Message:    msg,
		VenueName:  venueName,
		SourceName: sourceName,
	})
}

func (s *Stream) event(ctx context.Context, ev *events.Event) bool {
	return s.Send(ctx, Record{Kind: KindEvent, Event: ev})
}

func (s *Stream) error(ctx context.Context, msg string) bool {
	return s.Send(ctx, Record{Kind: KindError, Message: msg})
}

func (s *Stream) complete(ctx context.Context, total int, outcome events.Outcome, errCount int, msg string) bool {
	return s.Send(ctx, Record{
		Kind:        KindComplete,
		TotalEvents: total,
		Outcome:     outcome,
		ErrorCount:  errCount,
		Message:     msg,
	})
}

package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/3leaps/rqlens/pkg/rq"
)

// Writer emits typed JSONL records. Implementations are safe for concurrent
// use and write each record as one complete line.
type Writer interface {
	WriteQueue(ctx context.Context, q *rq.QueueStats) error
	WriteJob(ctx context.Context, job *rq.JobSummary) error
	WriteJobDetail(ctx context.Context, job *rq.JobDetail) error
	WritePage(ctx context.Context, page *PageRecord) error
	WriteWorker(ctx context.Context, w *rq.WorkerStatus) error
	WriteDeleted(ctx context.Context, d *DeletedRecord) error
	WriteError(ctx context.Context, e *ErrorRecord) error
	WriteSummary(ctx context.Context, s *SummaryRecord) error
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON.
type JSONLWriter struct {
	w      io.Writer
	runID  string
	source string
	mu     sync.Mutex
	closed bool

	records atomic.Int64
	errors  atomic.Int64
}

// NewJSONLWriter creates a writer stamping every record with runID and
// source.
func NewJSONLWriter(w io.Writer, runID, source string) *JSONLWriter {
	return &JSONLWriter{w: w, runID: runID, source: source}
}

func (jw *JSONLWriter) WriteQueue(ctx context.Context, q *rq.QueueStats) error {
	return jw.writeRecord(ctx, TypeQueue, q)
}

func (jw *JSONLWriter) WriteJob(ctx context.Context, job *rq.JobSummary) error {
	return jw.writeRecord(ctx, TypeJob, job)
}

func (jw *JSONLWriter) WriteJobDetail(ctx context.Context, job *rq.JobDetail) error {
	return jw.writeRecord(ctx, TypeJobDetail, job)
}

func (jw *JSONLWriter) WritePage(ctx context.Context, page *PageRecord) error {
	return jw.writeRecord(ctx, TypePage, page)
}

func (jw *JSONLWriter) WriteWorker(ctx context.Context, w *rq.WorkerStatus) error {
	return jw.writeRecord(ctx, TypeWorker, w)
}

func (jw *JSONLWriter) WriteDeleted(ctx context.Context, d *DeletedRecord) error {
	return jw.writeRecord(ctx, TypeDeleted, d)
}

func (jw *JSONLWriter) WriteError(ctx context.Context, e *ErrorRecord) error {
	jw.errors.Add(1)
	return jw.writeRecord(ctx, TypeError, e)
}

func (jw *JSONLWriter) WriteSummary(ctx context.Context, s *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, s)
}

// Summary builds the closing record from the counts written so far.
func (jw *JSONLWriter) Summary(command string, started time.Time) *SummaryRecord {
	d := time.Since(started)
	return &SummaryRecord{
		Command:       command,
		Records:       jw.records.Load(),
		Errors:        jw.errors.Load(),
		Duration:      d,
		DurationHuman: d.Round(time.Millisecond).String(),
	}
}

// Close marks the writer closed. The underlying io.Writer is left open.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	jw.closed = true
	return nil
}

func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	line, err := json.Marshal(Record{
		Type:   recordType,
		TS:     time.Now().UTC(),
		RunID:  jw.runID,
		Source: jw.source,
		Data:   payload,
	})
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	if err := writeAll(jw.w, append(line, '\n')); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	if recordType != TypeSummary {
		jw.records.Add(1)
	}
	return nil
}

// writeAll loops over short writes so a line is never truncated.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

var _ Writer = (*JSONLWriter)(nil)

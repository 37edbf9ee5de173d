/*
Package csvlog provides an append-only CSV file implementation of enrollment.Store.

FILE LAYOUT:
  The registry layout used by the front desk spreadsheet, plus three
  bookkeeping columns:

    name,surname,father_name,phone,email,course_id,course_name,time_keys,
    status,receipt_id,timestamp,event_id,commit_id,commit_size

  The header row is written when the file is created. Rows are only ever
  appended. Files written before the bookkeeping columns existed are read
  with one commit per row; on open their header is widened to the full
  layout so that new commits carry commit_id and commit_size.

ATOMIC COMMITS:
  AppendBatch encodes the whole commit into one buffer and writes it with a
  single write followed by fsync. A crash can still leave a prefix of the
  commit on disk, so:
  - on open, a trailing partial line (no final newline) is cut off
  - on scan, a commit whose row count is short of commit_size is skipped
    and logged as ErrTornCommit

USAGE:
  log, err := csvlog.New("students_registry.csv", csvlog.WithLogger(logger))
  ledger := enrollment.NewLedger(log)
*/
package csvlog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/enrollment-engine/enrollment"
)

// Header is the column layout of the registry file.
var Header = []string{
	"name", "surname", "father_name", "phone", "email",
	"course_id", "course_name", "time_keys", "status", "receipt_id", "timestamp",
	"event_id", "commit_id", "commit_size",
}

// TimestampLayout is how event timestamps are written.
const TimestampLayout = "2006-01-02 15:04:05"

// Log is a CSV-file backed enrollment.Store.
type Log struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// Option configures a Log.
type Option func(*Log)

// WithLogger sets the logger used for recovery messages.
func WithLogger(l *zap.Logger) Option {
	return func(lg *Log) {
		if l != nil {
			lg.logger = l
		}
	}
}

// New opens the registry file at path, creating it with a header row when
// missing or empty, and repairs a trailing partial line.
func New(path string, opts ...Option) (*Log, error) {
	l := &Log{path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, enrollment.NewStorageError("create directory", err)
		}
	}
	if err := l.prepare(); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the registry file path.
func (l *Log) Path() string { return l.path }

func (l *Log) prepare() error {
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return enrollment.NewStorageError("open registry", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return enrollment.NewStorageError("stat registry", err)
	}
	if info.Size() == 0 {
		return writeHeader(f)
	}
	if err := l.repairTail(f, info.Size()); err != nil {
		return err
	}
	return l.upgradeHeader()
}

// upgradeHeader rewrites a registry header that lacks the bookkeeping
// columns. Rows already in the file keep their short layout and read back
// as single-row commits.
func (l *Log) upgradeHeader() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return enrollment.NewStorageError("read registry", err)
	}
	end := bytes.IndexByte(data, '\n')
	if end < 0 {
		return nil
	}
	header, err := csv.NewReader(bytes.NewReader(data[:end+1])).Read()
	if err != nil {
		return enrollment.NewStorageError("read header", err)
	}
	if len(header) >= len(Header) {
		return nil
	}
	for i, name := range header {
		if name != Header[i] {
			return enrollment.NewStorageError("read header",
				fmt.Errorf("unsupported column %q at position %d", name, i+1))
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(Header)
	w.Flush()
	buf.Write(data[end+1:])

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return enrollment.NewStorageError("write header", err)
	}
	if err := syncFile(tmp); err != nil {
		os.Remove(tmp)
		return enrollment.NewStorageError("sync header", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return enrollment.NewStorageError("replace registry", err)
	}
	l.logger.Info("widened registry header",
		zap.String("path", l.path),
		zap.Int("columns", len(Header)))
	return nil
}

func syncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

func writeHeader(f *os.File) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(Header)
	w.Flush()
	if _, err := f.WriteAt(buf.Bytes(), 0); err != nil {
		return enrollment.NewStorageError("write header", err)
	}
	return f.Sync()
}

// repairTail truncates the file after its last newline.
func (l *Log) repairTail(f *os.File, size int64) error {
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return enrollment.NewStorageError("read registry tail", err)
	}
	if last[0] == '\n' {
		return nil
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return enrollment.NewStorageError("read registry", err)
	}
	keep := int64(bytes.LastIndexByte(data, '\n') + 1)
	l.logger.Warn("dropping partial trailing row",
		zap.String("path", l.path),
		zap.Int64("bytes", size-keep))
	if err := f.Truncate(keep); err != nil {
		return enrollment.NewStorageError("truncate registry", err)
	}
	if keep == 0 {
		return writeHeader(f)
	}
	return f.Sync()
}

// =============================================================================
// EVENT STORE (enrollment.Store interface)
// =============================================================================

// Append adds one event.
func (l *Log) Append(ctx context.Context, ev enrollment.Event) error {
	return l.AppendBatch(ctx, []enrollment.Event{ev})
}

// AppendBatch writes all rows of a commit with one write call and syncs.
func (l *Log) AppendBatch(ctx context.Context, evs []enrollment.Event) error {
	if len(evs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return enrollment.NewStorageError("append", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, ev := range evs {
		if err := w.Write(toRecord(ev)); err != nil {
			return enrollment.NewStorageError("encode row", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return enrollment.NewStorageError("encode rows", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return enrollment.NewStorageError("open registry", err)
	}
	defer f.Close()

	if _, err := f.Write(buf.Bytes()); err != nil {
		return enrollment.NewStorageError("write rows", err)
	}
	if err := f.Sync(); err != nil {
		return enrollment.NewStorageError("sync registry", err)
	}
	return nil
}

// Scan streams every event of every complete commit in file order.
// A missing file reads as an empty ledger.
func (l *Log) Scan(ctx context.Context) iter.Seq2[enrollment.Event, error] {
	return func(yield func(enrollment.Event, error) bool) {
		f, err := os.Open(l.path)
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		if err != nil {
			yield(enrollment.Event{}, enrollment.NewStorageError("open registry", err))
			return
		}
		defer f.Close()

		r := csv.NewReader(bufio.NewReader(f))
		r.FieldsPerRecord = -1

		header, err := r.Read()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			yield(enrollment.Event{}, enrollment.NewStorageError("read header", err))
			return
		}
		cols := indexColumns(header)

		var pending []enrollment.Event
		flushTorn := func() {
			if len(pending) == 0 {
				return
			}
			l.logger.Warn("skipping incomplete commit",
				zap.String("path", l.path),
				zap.String("commit_id", pending[0].CommitID),
				zap.Int("rows", len(pending)),
				zap.Int("expected", pending[0].CommitSize),
				zap.Error(enrollment.ErrTornCommit))
			pending = nil
		}

		for line := 2; ; line++ {
			if err := ctx.Err(); err != nil {
				yield(enrollment.Event{}, enrollment.NewStorageError("scan", err))
				return
			}
			rec, err := r.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield(enrollment.Event{}, enrollment.NewStorageError("read row", err))
				return
			}
			ev, err := cols.event(rec)
			if err != nil {
				yield(enrollment.Event{}, enrollment.NewStorageError(fmt.Sprintf("parse row %d", line), err))
				return
			}

			if len(pending) > 0 && pending[0].CommitID != ev.CommitID {
				flushTorn()
			}
			pending = append(pending, ev)
			if len(pending) < ev.CommitSize {
				continue
			}
			for _, done := range pending {
				if !yield(done, nil) {
					return
				}
			}
			pending = nil
		}
		flushTorn()
	}
}

// =============================================================================
// ROW MAPPING
// =============================================================================

func toRecord(ev enrollment.Event) []string {
	commitSize := ev.CommitSize
	if commitSize <= 0 {
		commitSize = 1
	}
	return []string{
		ev.Student.Name,
		ev.Student.Surname,
		ev.Student.FatherName,
		ev.Contact.Phone,
		ev.Contact.Email,
		ev.CourseID,
		ev.CourseName,
		ev.TimeKeys.String(),
		string(ev.Status),
		ev.ReceiptID,
		ev.Timestamp.UTC().Format(TimestampLayout),
		ev.ID,
		ev.CommitID,
		strconv.Itoa(commitSize),
	}
}

type columns map[string]int

func indexColumns(header []string) columns {
	cols := make(columns, len(header))
	for i, name := range header {
		cols[name] = i
	}
	return cols
}

func (c columns) get(rec []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func (c columns) event(rec []string) (enrollment.Event, error) {
	ev := enrollment.Event{
		Student: enrollment.StudentKey{
			Name:       c.get(rec, "name"),
			Surname:    c.get(rec, "surname"),
			FatherName: c.get(rec, "father_name"),
		},
		Contact:    enrollment.Contact{Phone: c.get(rec, "phone"), Email: c.get(rec, "email")},
		CourseID:   c.get(rec, "course_id"),
		CourseName: c.get(rec, "course_name"),
		TimeKeys:   enrollment.ParseTimeKeys(c.get(rec, "time_keys")),
		Status:     enrollment.Status(c.get(rec, "status")),
		ReceiptID:  c.get(rec, "receipt_id"),
		ID:         c.get(rec, "event_id"),
		CommitID:   c.get(rec, "commit_id"),
		CommitSize: 1,
	}
	if !ev.Status.Valid() {
		return enrollment.Event{}, fmt.Errorf("unknown status %q", ev.Status)
	}
	if raw := c.get(rec, "timestamp"); raw != "" {
		ts, err := parseTimestamp(raw)
		if err != nil {
			return enrollment.Event{}, err
		}
		ev.Timestamp = ts
	}
	if ev.CommitID != "" {
		n, err := strconv.Atoi(c.get(rec, "commit_size"))
		if err != nil || n < 1 {
			return enrollment.Event{}, fmt.Errorf("invalid commit_size %q", c.get(rec, "commit_size"))
		}
		ev.CommitSize = n
	}
	return ev, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	if ts, err := time.Parse(TimestampLayout, raw); err == nil {
		return ts, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
	}
	return ts, nil
}

var _ enrollment.Store = (*Log)(nil)

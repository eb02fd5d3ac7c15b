// Package csvstore keeps records in a flat CSV file.
//
// Every mutation rewrites the whole file through a temporary file and a
// rename, so readers never observe a half-written table. The last assigned
// id is kept in a sidecar file next to the table so ids are never reused.
//
// A Table serializes its own operations. Separate processes that open the
// same file are not coordinated and may lose each other's updates.
package csvstore

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// IDField is the name of the first column of every table.
const IDField = "id"

var (
	// ErrInvalidTable is returned when a table is declared with a bad name or field list.
	ErrInvalidTable = errors.New("invalid table definition")

	// ErrCorruptTable is returned when the file on disk does not match the declared layout.
	ErrCorruptTable = errors.New("corrupt table")
)

// Row maps field names to values. In Update, a missing key leaves the field
// untouched and an empty string clears it.
type Row map[string]string

// ID returns the row id, or 0 when the row has none.
func (r Row) ID() int64 {
	id, err := strconv.ParseInt(r[IDField], 10, 64)
	if err != nil {
		return 0
	}

	return id
}

type record struct {
	id     int64
	values []string
}

// Table is a single CSV file with an integer id column followed by fields.
type Table struct {
	mu      sync.Mutex
	path    string
	seqPath string
	fields  []string
}

// TablePath returns the file a table named name keeps in dir.
func TablePath(dir, name string) string {
	if dir == "" {
		dir = "."
	}

	return filepath.Join(dir, name+".csv")
}

// NewTable opens <dir>/<name>.csv, creating the directory and a header-only
// file when missing.
func NewTable(dir, name string, fields []string) (*Table, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("%w: table name %q", ErrInvalidTable, name)
	}

	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields", ErrInvalidTable)
	}

	seen := map[string]bool{IDField: true}
	for _, f := range fields {
		if f == "" || seen[f] {
			return nil, fmt.Errorf("%w: field %q", ErrInvalidTable, f)
		}

		seen[f] = true
	}

	if dir == "" {
		dir = "."
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating table directory: %w", err)
	}

	t := &Table{
		path:    TablePath(dir, name),
		seqPath: filepath.Join(dir, name+".seq"),
		fields:  slices.Clone(fields),
	}

	info, err := os.Stat(t.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("checking table file: %w", err)
	}

	if err != nil || info.Size() == 0 {
		if err := t.rewrite(nil); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// Path returns the location of the table file.
func (t *Table) Path() string {
	return t.path
}

// Fields returns the declared data fields, excluding the id column.
func (t *Table) Fields() []string {
	return slices.Clone(t.fields)
}

// Create appends row and returns its new id. Keys that are not declared
// fields are ignored; missing fields are stored empty.
func (t *Table) Create(row Row) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.load()
	if err != nil {
		return 0, err
	}

	next, err := t.nextID(records)
	if err != nil {
		return 0, err
	}

	if err := t.writeSeq(next); err != nil {
		return 0, err
	}

	values := make([]string, len(t.fields))
	for i, f := range t.fields {
		values[i] = row[f]
	}

	if err := t.append(record{id: next, values: values}); err != nil {
		return 0, err
	}

	return next, nil
}

// Read returns the first row whose id matches.
func (t *Table) Read(id int64) (Row, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.load()
	if err != nil {
		return nil, false, err
	}

	for _, r := range records {
		if r.id == id {
			return t.toRow(r), true, nil
		}
	}

	return nil, false, nil
}

// ReadAll returns every row in file order.
func (t *Table) ReadAll() ([]Row, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.load()
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, t.toRow(r))
	}

	return rows, nil
}

// Update overwrites the fields present in mods on the row with the given id.
// The id column is never overwritten. Nothing is written when no row matches
// or when every value in mods equals the stored one.
func (t *Table) Update(id int64, mods Row) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.load()
	if err != nil {
		return false, err
	}

	idx := slices.IndexFunc(records, func(r record) bool { return r.id == id })
	if idx < 0 {
		return false, nil
	}

	changed := false

	for i, f := range t.fields {
		if v, ok := mods[f]; ok && records[idx].values[i] != v {
			records[idx].values[i] = v
			changed = true
		}
	}

	if !changed {
		return true, nil
	}

	return true, t.rewrite(records)
}

// Delete removes the row with the given id. Nothing is written when no row matches.
func (t *Table) Delete(id int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.load()
	if err != nil {
		return false, err
	}

	before := len(records)

	kept := slices.DeleteFunc(records, func(r record) bool { return r.id == id })
	if len(kept) == before {
		return false, nil
	}

	return true, t.rewrite(kept)
}

// DeleteAll leaves only the header. The id high-water mark is kept.
func (t *Table) DeleteAll() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.load()
	if err != nil {
		return err
	}

	if last := maxID(records); last > 0 {
		seq, err := t.readSeq()
		if err != nil {
			return err
		}

		if last > seq {
			if err := t.writeSeq(last); err != nil {
				return err
			}
		}
	}

	return t.rewrite(nil)
}

// Count returns the number of data rows.
func (t *Table) Count() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.load()
	if err != nil {
		return 0, err
	}

	return len(records), nil
}

// Stat reports whether the table file is readable.
func (t *Table) Stat() error {
	f, err := os.Open(t.path)
	if err != nil {
		return err
	}

	return f.Close()
}

func (t *Table) header() []string {
	return append([]string{IDField}, t.fields...)
}

func (t *Table) toRow(r record) Row {
	row := make(Row, len(t.fields)+1)
	row[IDField] = strconv.FormatInt(r.id, 10)

	for i, f := range t.fields {
		row[f] = r.values[i]
	}

	return row
}

func (t *Table) load() ([]record, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return nil, fmt.Errorf("opening table: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(&quotedCRLF{r: bufio.NewReader(f)})
	reader.FieldsPerRecord = len(t.fields) + 1

	head, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w: reading header of %s: %w", ErrCorruptTable, t.path, err)
	}

	if !slices.Equal(head, t.header()) {
		return nil, fmt.Errorf("%w: %s has header %v, want %v", ErrCorruptTable, t.path, head, t.header())
	}

	var records []record

	for {
		values, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCorruptTable, t.path, err)
		}

		id, err := strconv.ParseInt(values[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: bad id %q", ErrCorruptTable, t.path, values[0])
		}

		records = append(records, record{id: id, values: values[1:]})
	}

	return records, nil
}

func (t *Table) append(r record) error {
	f, err := os.OpenFile(t.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening table for append: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(append([]string{strconv.FormatInt(r.id, 10)}, r.values...)); err != nil {
		f.Close()
		return fmt.Errorf("appending row: %w", err)
	}

	w.Flush()

	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("appending row: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing table: %w", err)
	}

	return f.Close()
}

// rewrite replaces the table file with header plus records.
func (t *Table) rewrite(records []record) error {
	tmp, err := os.CreateTemp(filepath.Dir(t.path), filepath.Base(t.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp table: %w", err)
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	w := csv.NewWriter(tmp)
	if err := w.Write(t.header()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp table header: %w", err)
	}

	for _, r := range records {
		if err := w.Write(append([]string{strconv.FormatInt(r.id, 10)}, r.values...)); err != nil {
			tmp.Close()
			return fmt.Errorf("writing row %d: %w", r.id, err)
		}
	}

	w.Flush()

	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp table: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp table: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp table: %w", err)
	}

	if err := os.Rename(tmpName, t.path); err != nil {
		return fmt.Errorf("replacing table: %w", err)
	}

	return nil
}

func (t *Table) nextID(records []record) (int64, error) {
	seq, err := t.readSeq()
	if err != nil {
		return 0, err
	}

	return max(seq, maxID(records)) + 1, nil
}

// readSeq returns the persisted high-water mark. A missing or unreadable
// value counts as zero so the row ids take over.
func (t *Table) readSeq() (int64, error) {
	data, err := os.ReadFile(t.seqPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("reading id sequence: %w", err)
	}

	seq, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || seq < 0 {
		return 0, nil
	}

	return seq, nil
}

func (t *Table) writeSeq(seq int64) error {
	if err := os.WriteFile(t.seqPath, []byte(strconv.FormatInt(seq, 10)+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing id sequence: %w", err)
	}

	return nil
}

func maxID(records []record) int64 {
	var m int64
	for _, r := range records {
		m = max(m, r.id)
	}

	return m
}

// quotedCRLF doubles the CR of every CRLF inside a quoted field. csv.Reader
// folds a line-ending CRLF into LF, so the doubled pair reads back as the
// original CRLF while record terminators outside quotes are left alone.
type quotedCRLF struct {
	r       *bufio.Reader
	quoted  bool
	pending bool
}

func (q *quotedCRLF) Read(p []byte) (int, error) {
	n := 0

	for n < len(p) {
		if q.pending {
			p[n] = '\r'
			n++
			q.pending = false

			continue
		}

		b, err := q.r.ReadByte()
		if err != nil {
			if n > 0 {
				return n, nil
			}

			return 0, err
		}

		switch {
		case b == '"':
			q.quoted = !q.quoted
		case b == '\r' && q.quoted:
			next, err := q.r.Peek(1)
			q.pending = err == nil && next[0] == '\n'
		}

		p[n] = b
		n++
	}

	return n, nil
}

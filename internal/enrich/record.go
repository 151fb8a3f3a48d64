package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"courier/internal/latch"
)

// Field names an enrichment field.
type Field string

const (
	FieldIP      Field = "ip"
	FieldCountry Field = "country"
	FieldRegion  Field = "region"
	FieldCity    Field = "city"
	FieldISP     Field = "isp"
)

// Fields is the fixed render order.
var Fields = []Field{FieldIP, FieldCountry, FieldRegion, FieldCity, FieldISP}

var fieldLabels = map[Field]string{
	FieldIP:      "IP",
	FieldCountry: "Country",
	FieldRegion:  "Region",
	FieldCity:    "City",
	FieldISP:     "ISP",
}

func (f Field) Label() string {
	if l, ok := fieldLabels[f]; ok {
		return l
	}
	return string(f)
}

// ParseField maps a config key to a Field.
func ParseField(s string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := fieldLabels[f]; !ok {
		return "", fmt.Errorf("unknown enrichment field %q", s)
	}
	return f, nil
}

type FieldState int

const (
	Pending FieldState = iota
	Resolved
	// Unknown: a source answered but did not report this field.
	Unknown
	// Failed: every source failed.
	Failed
	// TimedOut: the reader's budget elapsed while the field was pending.
	TimedOut
)

func (s FieldState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Unknown:
		return "unknown"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("field_state(%d)", int(s))
	}
}

// Terminal reports whether a producer can no longer change the state.
func (s FieldState) Terminal() bool { return s != Pending }

// FieldValue is what a producer writes into a field.
type FieldValue struct {
	State FieldState
	Value string
}

// Sentinels is the text rendered for fields without a value.
type Sentinels struct {
	Unknown  string
	Failed   string
	TimedOut string
}

func DefaultSentinels() Sentinels {
	return Sentinels{Unknown: "Unknown", Failed: "Collection Failed", TimedOut: "Timed Out"}
}

// WithDefaults fills empty sentinels.
func (s Sentinels) WithDefaults() Sentinels {
	d := DefaultSentinels()
	if s.Unknown == "" {
		s.Unknown = d.Unknown
	}
	if s.Failed == "" {
		s.Failed = d.Failed
	}
	if s.TimedOut == "" {
		s.TimedOut = d.TimedOut
	}
	return s
}

// Text renders one field value.
func (s Sentinels) Text(v FieldValue) string {
	switch v.State {
	case Resolved:
		return v.Value
	case Unknown:
		return s.Unknown
	case Failed:
		return s.Failed
	default:
		return s.TimedOut
	}
}

// Record holds one latch per field. Each field has a single writer (the
// producer that owns it); any number of readers may await it.
type Record struct {
	fields map[Field]*latch.Latch[FieldValue]
}

func NewRecord() *Record {
	r := &Record{fields: make(map[Field]*latch.Latch[FieldValue], len(Fields))}
	for _, f := range Fields {
		r.fields[f] = latch.New[FieldValue]()
	}
	return r
}

// Set resolves a field. Writes after the first are ignored; it reports
// whether this write took effect.
func (r *Record) Set(f Field, v FieldValue) bool {
	l, ok := r.fields[f]
	if !ok || !v.State.Terminal() {
		return false
	}
	return l.Resolve(v)
}

// Closed reports whether every field reached a terminal state.
func (r *Record) Closed() bool {
	for _, f := range Fields {
		if _, ok := r.fields[f].Peek(); !ok {
			return false
		}
	}
	return true
}

// Await waits for all fields with one shared budget and returns a snapshot.
// Fields still pending at the deadline appear as TimedOut in the snapshot;
// the record itself is untouched, so a later reader may still see them
// resolve.
func (r *Record) Await(ctx context.Context, budget time.Duration) Snapshot {
	if ctx == nil {
		ctx = context.Background()
	}
	deadline := time.Now().Add(budget)
	snap := Snapshot{values: make(map[Field]FieldValue, len(Fields))}
	for _, f := range Fields {
		v, err := r.fields[f].AwaitUntil(ctx, deadline)
		if err != nil {
			v = FieldValue{State: TimedOut}
		}
		snap.values[f] = v
	}
	return snap
}

// Snapshot is a read-only view of a Record at one point in time.
type Snapshot struct {
	values map[Field]FieldValue
}

// NewSnapshot builds a snapshot from explicit values; missing fields are
// TimedOut.
func NewSnapshot(values map[Field]FieldValue) Snapshot {
	snap := Snapshot{values: make(map[Field]FieldValue, len(Fields))}
	for _, f := range Fields {
		v, ok := values[f]
		if !ok || !v.State.Terminal() {
			v = FieldValue{State: TimedOut}
		}
		snap.values[f] = v
	}
	return snap
}

func (s Snapshot) Get(f Field) FieldValue { return s.values[f] }

// Count returns how many fields are in state st.
func (s Snapshot) Count(st FieldState) int {
	n := 0
	for _, v := range s.values {
		if v.State == st {
			n++
		}
	}
	return n
}

// Lines renders "Label: value" in the fixed field order.
func (s Snapshot) Lines(sentinels Sentinels) []string {
	sentinels = sentinels.WithDefaults()
	out := make([]string, 0, len(Fields))
	for _, f := range Fields {
		out = append(out, f.Label()+": "+sentinels.Text(s.values[f]))
	}
	return out
}

package delivery

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateKey = errors.New("delivery: duplicate key")
	ErrEmptyKey     = errors.New("delivery: empty key")
)

// Pair is one caller-supplied key/value line.
type Pair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Field is shorthand for Pair{k, v}.
func Field(k, v string) Pair { return Pair{Key: k, Value: v} }

// Request is an ordered set of unique key/value pairs with optional prefix
// and suffix text. It is immutable: accessors return copies.
type Request struct {
	prefix string
	suffix string
	pairs  []Pair
}

func NewRequest(prefix, suffix string, pairs ...Pair) (Request, error) {
	r := Request{prefix: prefix, suffix: suffix, pairs: make([]Pair, 0, len(pairs))}
	seen := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		k := strings.TrimSpace(p.Key)
		if k == "" {
			return Request{}, ErrEmptyKey
		}
		if _, dup := seen[k]; dup {
			return Request{}, fmt.Errorf("%w: %q", ErrDuplicateKey, k)
		}
		seen[k] = struct{}{}
		r.pairs = append(r.pairs, Pair{Key: k, Value: p.Value})
	}
	return r, nil
}

// MustRequest is NewRequest that panics on error. For literals in tests and
// static setup.
func MustRequest(prefix, suffix string, pairs ...Pair) Request {
	r, err := NewRequest(prefix, suffix, pairs...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r Request) Prefix() string { return r.prefix }
func (r Request) Suffix() string { return r.suffix }
func (r Request) Len() int       { return len(r.pairs) }

func (r Request) Pairs() []Pair {
	out := make([]Pair, len(r.pairs))
	copy(out, r.pairs)
	return out
}

func (r Request) Get(k string) (string, bool) {
	for _, p := range r.pairs {
		if p.Key == k {
			return p.Value, true
		}
	}
	return "", false
}

// UnmarshalJSON accepts
//
//	{"prefix": "...", "suffix": "...", "fields": {"name": "Ann", "plan": "pro"}}
//
// keeping the order of "fields" as written. "fields" may also be a list of
// {"key", "value"} objects. Non-string values are rendered as their JSON text.
func (r *Request) UnmarshalJSON(b []byte) error {
	var raw struct {
		Prefix string          `json:"prefix"`
		Suffix string          `json:"suffix"`
		Fields json.RawMessage `json:"fields"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	pairs, err := decodePairs(raw.Fields)
	if err != nil {
		return err
	}
	req, err := NewRequest(raw.Prefix, raw.Suffix, pairs...)
	if err != nil {
		return err
	}
	*r = req
	return nil
}

func (r Request) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Prefix string `json:"prefix,omitempty"`
		Suffix string `json:"suffix,omitempty"`
		Fields []Pair `json:"fields"`
	}{r.prefix, r.suffix, r.Pairs()})
}

func decodePairs(raw json.RawMessage) ([]Pair, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var list []Pair
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("fields: %w", err)
		}
		return list, nil
	}

	// Objects are walked token by token; a map would lose the order.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("fields: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("fields: expected object or list")
	}
	var out []Pair
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("fields: %w", err)
		}
		key, _ := tok.(string)
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("fields.%s: %w", key, err)
		}
		out = append(out, Pair{Key: key, Value: valueText(v)})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("fields: %w", err)
	}
	return out, nil
}

func valueText(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return ""
	}
	return string(bytes.TrimSpace(v))
}

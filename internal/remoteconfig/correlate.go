package remoteconfig

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var ErrCorrelation = errors.New("jsonp: response does not match request handle")

// Correlator hands out request handles for JSONP-style retrieval and tracks
// which ones are still open.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]struct{}
}

func NewCorrelator() *Correlator {
	return &Correlator{pending: map[string]struct{}{}}
}

// Handle is one request's correlation id. Release must be called exactly
// once; extra calls are no-ops.
type Handle struct {
	id   string
	c    *Correlator
	once sync.Once
}

// Acquire registers a fresh handle. The id is a valid JS identifier so it can
// be used as a callback name.
func (c *Correlator) Acquire() *Handle {
	id := "cb_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	c.mu.Lock()
	c.pending[id] = struct{}{}
	c.mu.Unlock()
	return &Handle{id: id, c: c}
}

// Pending returns the number of unreleased handles.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) open(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

func (h *Handle) ID() string { return h.id }

func (h *Handle) Release() {
	h.once.Do(func() {
		h.c.mu.Lock()
		delete(h.c.pending, h.id)
		h.c.mu.Unlock()
	})
}

// Unwrap strips `<id>(` ... `)` (with optional trailing `;`) from body and
// returns the JSON payload. It fails if the handle was already released or the
// wrapper names a different callback.
func (h *Handle) Unwrap(body []byte) ([]byte, error) {
	if !h.c.open(h.id) {
		return nil, fmt.Errorf("%w: handle %s released", ErrCorrelation, h.id)
	}
	b := bytes.TrimSpace(body)
	// Some servers prefix JSONP with a comment to defeat content sniffing.
	if bytes.HasPrefix(b, []byte("/**/")) {
		b = bytes.TrimSpace(b[4:])
	}
	b = bytes.TrimSuffix(b, []byte(";"))
	b = bytes.TrimSpace(b)

	prefix := []byte(h.id + "(")
	if !bytes.HasPrefix(b, prefix) || !bytes.HasSuffix(b, []byte(")")) {
		return nil, ErrCorrelation
	}
	return bytes.TrimSpace(b[len(prefix) : len(b)-1]), nil
}

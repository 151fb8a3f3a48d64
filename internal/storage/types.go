package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage. If Driver is empty or "none", storage is
// disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// DeliveryEntry records one delivery outcome. Payload text and credentials
// are never stored.
type DeliveryEntry struct {
	ID           string    `json:"id"`
	At           time.Time `json:"at"`
	OK           bool      `json:"ok"`
	Transport    string    `json:"transport,omitempty"`
	Attempts     int       `json:"attempts"`
	Failed       []string  `json:"failed,omitempty"`
	Error        string    `json:"error,omitempty"`
	TookMS       int64     `json:"took_ms"`
	PayloadBytes int       `json:"payload_bytes"`
}

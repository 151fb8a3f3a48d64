package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ErrTransportFailure matches every *SendError.
var ErrTransportFailure = errors.New("transport failure")

// Capability ranks how much a transport can observe about its own outcome.
type Capability int

const (
	// Dispatched transports only know the request left the process.
	Dispatched Capability = iota + 1
	// Acknowledged transports observe the server's result code.
	Acknowledged
)

func (c Capability) String() string {
	switch c {
	case Dispatched:
		return "dispatched"
	case Acknowledged:
		return "acknowledged"
	default:
		return fmt.Sprintf("capability(%d)", int(c))
	}
}

// Message is one outgoing payload.
type Message struct {
	Text        string
	Destination string
	Credential  string
	// ParseMode is passed through to the messaging service (HTML, Markdown...).
	ParseMode string
}

// Transport delivers a finished payload.
type Transport interface {
	Name() string
	Capability() Capability
	Send(ctx context.Context, msg Message) error
}

// Order returns transports sorted by capability, highest first. Transports of
// equal capability keep their relative order.
func Order(ts []Transport) []Transport {
	out := make([]Transport, 0, len(ts))
	for _, t := range ts {
		if t != nil {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Capability() > out[j].Capability() })
	return out
}

// SendError describes a rejected or failed send.
type SendError struct {
	Transport   string
	StatusCode  int
	Description string
	Err         error
}

func (e *SendError) Error() string {
	var b strings.Builder
	b.WriteString(e.Transport)
	b.WriteString(": send failed")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Description != "" {
		b.WriteString(": ")
		b.WriteString(e.Description)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *SendError) Unwrap() error { return e.Err }

func (e *SendError) Is(target error) bool { return target == ErrTransportFailure }

func validate(name string, msg Message) error {
	if strings.TrimSpace(msg.Credential) == "" {
		return &SendError{Transport: name, Description: "credential is empty"}
	}
	if strings.TrimSpace(msg.Destination) == "" {
		return &SendError{Transport: name, Description: "destination is empty"}
	}
	return nil
}

// methodURL builds <base>/bot<credential>/<method>.
func methodURL(base, credential, method string) string {
	return strings.TrimRight(base, "/") + "/bot" + credential + "/" + method
}

// scrub removes the credential from error text; net/http errors embed the URL.
func scrub(err error, credential string) error {
	if err == nil || credential == "" {
		return err
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
	}
	if s := err.Error(); strings.Contains(s, credential) {
		return errors.New(strings.ReplaceAll(s, credential, "<redacted>"))
	}
	return err
}

const DefaultAPIURL = "https://api.telegram.org"

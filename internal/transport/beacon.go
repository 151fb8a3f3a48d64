package transport

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	logx "courier/pkg/logx"
)

type BeaconConfig struct {
	APIURL  string
	Timeout time.Duration
	Client  *http.Client
}

// Beacon fires a GET request and does not wait for it. Send succeeds as soon
// as the request is handed off, so a Beacon success may hide a delivery that
// later failed; the outcome is only logged.
type Beacon struct {
	cfg BeaconConfig
	log logx.Logger
	wg  sync.WaitGroup
}

func NewBeacon(cfg BeaconConfig, log logx.Logger) *Beacon {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Beacon{cfg: cfg, log: log.With(logx.String("comp", "transport.beacon"))}
}

func (b *Beacon) Name() string           { return "beacon" }
func (b *Beacon) Capability() Capability { return Dispatched }

func (b *Beacon) Send(ctx context.Context, msg Message) error {
	if err := validate(b.Name(), msg); err != nil {
		return err
	}
	q := url.Values{}
	q.Set("chat_id", strings.TrimSpace(msg.Destination))
	q.Set("text", msg.Text)
	if msg.ParseMode != "" {
		q.Set("parse_mode", msg.ParseMode)
	}
	u := methodURL(b.cfg.APIURL, msg.Credential, "sendMessage") + "?" + q.Encode()

	// The request outlives Send; it keeps only its own timeout.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.Timeout)
	req, err := http.NewRequestWithContext(rctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		cancel()
		return &SendError{Transport: b.Name(), Err: scrub(err, msg.Credential)}
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer cancel()
		resp, err := b.cfg.Client.Do(req)
		if err != nil {
			b.log.Warn("beacon request failed", logx.Err(scrub(err, msg.Credential)))
			return
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			b.log.Warn("beacon rejected", logx.Int("status", resp.StatusCode))
			return
		}
		b.log.Debug("beacon delivered")
	}()
	return nil
}

// Wait blocks until in-flight beacons finish or ctx ends.
func (b *Beacon) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

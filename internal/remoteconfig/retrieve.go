package remoteconfig

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"courier/internal/config"
	"courier/internal/fallback"
)

// maxBody caps how much of a config response is read.
const maxBody = 1 << 20

// Retriever fetches the config from one endpoint within timeout.
type Retriever func(ctx context.Context, endpoint string, timeout time.Duration) (Config, error)

// Source is one configured retrieval mechanism.
type Source struct {
	Name     string
	Kind     string // "json", "jsonp" or "file"
	Endpoint string
}

// Fetcher holds what the HTTP retrievers share.
type Fetcher struct {
	Client     *http.Client
	Correlator *Correlator
}

func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{Client: client, Correlator: NewCorrelator()}
}

// Retriever returns the retrieval function for a source kind.
func (f *Fetcher) Retriever(kind string) (Retriever, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "json":
		return f.FetchJSON, nil
	case "jsonp":
		return f.FetchJSONP, nil
	case "file":
		return ReadFile, nil
	default:
		return nil, fmt.Errorf("unknown remote config source kind %q", kind)
	}
}

// Strategies turns sources into fallback strategies in the given order.
// The per-attempt budget is applied by the chain; timeout is also handed to
// each retriever so it can bound its own I/O.
func (f *Fetcher) Strategies(sources []Source, timeout time.Duration) ([]fallback.Strategy[Config], error) {
	out := make([]fallback.Strategy[Config], 0, len(sources))
	for i, src := range sources {
		r, err := f.Retriever(src.Kind)
		if err != nil {
			return nil, err
		}
		name := src.Name
		if name == "" {
			name = fmt.Sprintf("%s.%d", src.Kind, i)
		}
		endpoint := src.Endpoint
		out = append(out, fallback.Strategy[Config]{
			Name: name,
			Run: func(ctx context.Context) (Config, error) {
				return r(ctx, endpoint, timeout)
			},
		})
	}
	return out, nil
}

// FetchJSON GETs the endpoint and decodes a JSON body.
func (f *Fetcher) FetchJSON(ctx context.Context, endpoint string, timeout time.Duration) (Config, error) {
	body, err := f.get(ctx, endpoint, timeout)
	if err != nil {
		return Config{}, err
	}
	return decode(body)
}

// FetchJSONP GETs endpoint?callback=<handle> and expects `<handle>({...});`.
// The handle is scoped to this call and released however the call ends, so
// a late response for an abandoned call can never be matched to a new one.
func (f *Fetcher) FetchJSONP(ctx context.Context, endpoint string, timeout time.Duration) (Config, error) {
	h := f.Correlator.Acquire()
	defer h.Release()

	u, err := url.Parse(endpoint)
	if err != nil {
		return Config{}, fmt.Errorf("jsonp endpoint: %w", err)
	}
	q := u.Query()
	q.Set("callback", h.ID())
	u.RawQuery = q.Encode()

	body, err := f.get(ctx, u.String(), timeout)
	if err != nil {
		return Config{}, err
	}
	inner, err := h.Unwrap(body)
	if err != nil {
		return Config{}, err
	}
	return decode(inner)
}

func (f *Fetcher) get(ctx context.Context, endpoint string, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, application/javascript")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: status %d", redact(endpoint), resp.StatusCode)
	}
	return bytes.TrimSpace(body), nil
}

// ReadFile loads the config from a local JSON or YAML file.
func ReadFile(ctx context.Context, path string, _ time.Duration) (Config, error) {
	if err := ctx.Err(); err != nil {
		return Config{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	jb, _, err := config.CoerceToJSON(path, b)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return decode(jb)
}

// redact drops the query string, which may carry tokens.
func redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	return u.String()
}

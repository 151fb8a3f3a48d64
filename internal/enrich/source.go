package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"courier/internal/fallback"
)

var (
	ErrNoFields     = errors.New("lookup returned none of the mapped fields")
	ErrLookupFailed = errors.New("lookup service reported failure")
)

// Source is one JSON lookup service. Fields maps enrichment fields to dotted
// paths in the response document.
type Source struct {
	Name   string
	URL    string
	Fields map[Field]string
}

// Values is a partial record reported by one source. Missing or empty
// entries mean the source did not report the field.
type Values map[Field]string

// Lookup performs one source query.
func Lookup(ctx context.Context, client *http.Client, src Source, timeout time.Duration) (Values, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256<<10))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s: status %d", src.Name, resp.StatusCode)
	}

	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", src.Name, err)
	}
	// ipwho.is style {"success": false} and ipapi.co style {"error": true}.
	if v, ok := doc["success"].(bool); ok && !v {
		return nil, fmt.Errorf("%w: %s: %v", ErrLookupFailed, src.Name, doc["message"])
	}
	if v, ok := doc["error"].(bool); ok && v {
		return nil, fmt.Errorf("%w: %s: %v", ErrLookupFailed, src.Name, doc["reason"])
	}

	out := make(Values, len(src.Fields))
	for f, path := range src.Fields {
		if s, ok := lookupPath(doc, path); ok && s != "" {
			out[f] = s
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", src.Name, ErrNoFields)
	}
	return out, nil
}

func lookupPath(doc map[string]any, path string) (string, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		cur, ok = m[part]
		if !ok {
			return "", false
		}
	}
	switch v := cur.(type) {
	case string:
		return strings.TrimSpace(v), true
	case json.Number:
		return v.String(), true
	case bool:
		return fmt.Sprint(v), true
	default:
		return "", false
	}
}

// Strategies turns sources into fallback strategies in order.
func Strategies(client *http.Client, sources []Source, timeout time.Duration) []fallback.Strategy[Values] {
	out := make([]fallback.Strategy[Values], 0, len(sources))
	for i, src := range sources {
		src := src
		if src.Name == "" {
			src.Name = fmt.Sprintf("lookup.%d", i)
		}
		out = append(out, fallback.Strategy[Values]{
			Name: src.Name,
			Run: func(ctx context.Context) (Values, error) {
				return Lookup(ctx, client, src, timeout)
			},
		})
	}
	return out
}

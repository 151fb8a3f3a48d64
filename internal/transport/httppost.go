package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "courier/pkg/logx"
)

type HTTPConfig struct {
	APIURL  string
	Timeout time.Duration
	Client  *http.Client
}

// HTTPPost calls the sendMessage method with a plain JSON POST and checks
// both the status code and the API's "ok" flag.
type HTTPPost struct {
	cfg HTTPConfig
	log logx.Logger
}

func NewHTTPPost(cfg HTTPConfig, log logx.Logger) *HTTPPost {
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
	return &HTTPPost{cfg: cfg, log: log.With(logx.String("comp", "transport.http"))}
}

func (h *HTTPPost) Name() string           { return "http" }
func (h *HTTPPost) Capability() Capability { return Acknowledged }

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

func (h *HTTPPost) Send(ctx context.Context, msg Message) error {
	if err := validate(h.Name(), msg); err != nil {
		return err
	}
	body, err := json.Marshal(map[string]any{
		"chat_id":                  strings.TrimSpace(msg.Destination),
		"text":                     msg.Text,
		"parse_mode":               msg.ParseMode,
		"disable_web_page_preview": true,
	})
	if err != nil {
		return &SendError{Transport: h.Name(), Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, methodURL(h.cfg.APIURL, msg.Credential, "sendMessage"), bytes.NewReader(body))
	if err != nil {
		return &SendError{Transport: h.Name(), Err: scrub(err, msg.Credential)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.cfg.Client.Do(req)
	if err != nil {
		return &SendError{Transport: h.Name(), Err: scrub(err, msg.Credential)}
	}
	defer resp.Body.Close()

	var r apiResponse
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil {
		if uerr := json.Unmarshal(raw, &r); uerr != nil {
			err = fmt.Errorf("decode response: %w", uerr)
		}
	} else {
		err = fmt.Errorf("read response: %w", err)
	}
	if err != nil || resp.StatusCode < 200 || resp.StatusCode > 299 || !r.OK {
		return &SendError{Transport: h.Name(), StatusCode: resp.StatusCode, Description: r.Description, Err: scrub(err, msg.Credential)}
	}
	return nil
}

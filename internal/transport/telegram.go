package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	logx "courier/pkg/logx"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
)

type TelegramConfig struct {
	APIURL     string
	Timeout    time.Duration
	RatePerSec int
	Client     *http.Client
}

// Telegram sends through a telebot client. Bots run in offline mode: no
// getMe handshake and no polling, only outbound API calls.
type Telegram struct {
	cfg     TelegramConfig
	log     logx.Logger
	limiter *rate.Limiter

	mu   sync.Mutex
	bots map[string]*tele.Bot
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) *Telegram {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Telegram{
		cfg: cfg,
		log: log.With(logx.String("comp", "transport.telegram")),
		// Token bucket: burst = rate per sec.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		bots:    map[string]*tele.Bot{},
	}
}

func (t *Telegram) Name() string           { return "telegram" }
func (t *Telegram) Capability() Capability { return Acknowledged }

func (t *Telegram) bot(credential string) (*tele.Bot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.bots[credential]; ok {
		return b, nil
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     t.cfg.APIURL,
		Token:   credential,
		Client:  t.cfg.Client,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	t.bots[credential] = b
	return b, nil
}

// recipient addresses a chat by numeric id or @username.
type recipient string

func (r recipient) Recipient() string { return string(r) }

func (t *Telegram) Send(ctx context.Context, msg Message) error {
	if err := validate(t.Name(), msg); err != nil {
		return err
	}
	b, err := t.bot(msg.Credential)
	if err != nil {
		return &SendError{Transport: t.Name(), Err: scrub(err, msg.Credential)}
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	to := recipient(strings.TrimSpace(msg.Destination))
	opts := &tele.SendOptions{ParseMode: msg.ParseMode, DisableWebPagePreview: true}
	chunks := splitText(msg.Text, textLimit, msg.ParseMode)
	for i, chunk := range chunks {
		if err := t.limiter.Wait(ctx); err != nil {
			return &SendError{Transport: t.Name(), Err: err}
		}
		if err := t.sendChunk(ctx, b, to, chunk, opts); err != nil {
			if i > 0 {
				t.log.Warn("message partially sent", logx.Int("chunks_sent", i), logx.Int("chunks", len(chunks)))
			}
			return t.wrap(err, msg.Credential)
		}
	}
	return nil
}

// sendChunk bounds a telebot call by ctx; telebot itself takes no context.
func (t *Telegram) sendChunk(ctx context.Context, b *tele.Bot, to recipient, text string, opts *tele.SendOptions) error {
	done := make(chan error, 1)
	go func() {
		_, err := b.Send(to, text, opts)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Telegram) wrap(err error, credential string) error {
	se := &SendError{Transport: t.Name(), Err: scrub(err, credential)}
	var te *tele.Error
	if errors.As(err, &te) {
		se.StatusCode = te.Code
		se.Description = te.Description
	}
	var fe tele.FloodError
	if errors.As(err, &fe) {
		se.StatusCode = http.StatusTooManyRequests
	}
	return se
}

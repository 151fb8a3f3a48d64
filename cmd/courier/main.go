package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"courier/internal/app"
	"courier/internal/delivery"
)

type fieldFlags []delivery.Pair

func (f *fieldFlags) String() string { return fmt.Sprint(*f) }

func (f *fieldFlags) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	if !ok {
		return fmt.Errorf("want key=value, got %q", v)
	}
	*f = append(*f, delivery.Field(k, val))
	return nil
}

func main() {
	var (
		cfgPath        string
		prefix, suffix string
		fields         fieldFlags
	)
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config json/yaml")
	flag.StringVar(&prefix, "prefix", "", "text before the fields")
	flag.StringVar(&suffix, "suffix", "", "text after the fields")
	flag.Var(&fields, "field", "key=value line (repeatable); without it, requests are read from stdin as JSON lines")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	var failed int
	reason := app.StopInputDone
	if len(fields) > 0 {
		req, err := delivery.NewRequest(prefix, suffix, fields...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "invalid request:", err)
			failed++
		} else if !a.Orchestrator().Deliver(ctx, req) {
			failed++
		}
	} else {
		failed, err = deliverLines(ctx, a.Orchestrator(), os.Stdin, os.Stdout)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read requests:", err)
		}
	}
	if ctx.Err() != nil {
		reason = app.StopSIGINT
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if failed > 0 {
		os.Exit(2)
	}
}

// deliverLines delivers one JSON request per line until EOF or ctx ends. It
// writes exactly one {"ok":bool} line to w per non-blank input line.
func deliverLines(ctx context.Context, o *delivery.Orchestrator, r io.Reader, w io.Writer) (int, error) {
	failed := 0
	report := func(ok bool) {
		out, _ := json.Marshal(struct {
			OK bool `json:"ok"`
		}{ok})
		fmt.Fprintln(w, string(out))
		if !ok {
			failed++
		}
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if ctx.Err() != nil {
			return failed, nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var req delivery.Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			fmt.Fprintln(os.Stderr, "invalid request:", err)
			report(false)
			continue
		}
		report(o.Deliver(ctx, req))
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		return failed, err
	}
	return failed, nil
}

package firecrawl

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultPollInitial = 500 * time.Millisecond
	defaultPollCap     = 4 * time.Second
	defaultPollTimeout = 30 * time.Second
)

// PollOption configures polling behavior.
type PollOption func(*pollConfig)

type pollConfig struct {
	initial time.Duration
	cap     time.Duration
	timeout time.Duration
}

// WithPollInterval overrides the initial poll interval.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) { c.initial = d }
}

// WithPollCap overrides the maximum poll interval.
func WithPollCap(d time.Duration) PollOption {
	return func(c *pollConfig) { c.cap = d }
}

// WithPollTimeout overrides the default timeout, applied only if the parent
// context has no deadline.
func WithPollTimeout(d time.Duration) PollOption {
	return func(c *pollConfig) { c.timeout = d }
}

// Extract starts an extraction job and polls it until it completes, fails or
// ctx expires. The interval doubles from 500ms up to the cap.
func Extract(ctx context.Context, client Client, req ExtractRequest, opts ...PollOption) (json.RawMessage, error) {
	cfg := pollConfig{initial: defaultPollInitial, cap: defaultPollCap, timeout: defaultPollTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	started, err := client.StartExtract(ctx, req)
	if err != nil {
		return nil, err
	}
	if !started.Success || started.ID == "" {
		return nil, eris.New("firecrawl: extract not accepted")
	}

	interval := cfg.initial
	for {
		status, err := client.GetExtractStatus(ctx, started.ID)
		if err != nil {
			return nil, eris.Wrapf(err, "firecrawl: poll extract %s", started.ID)
		}

		switch status.Status {
		case "completed":
			return status.Data, nil
		case "failed", "cancelled":
			return nil, eris.Errorf("firecrawl: extract %s %s: %s", started.ID, status.Status, status.Error)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, eris.Wrapf(ctx.Err(), "firecrawl: poll extract %s timed out", started.ID)
		case <-timer.C:
		}

		interval *= 2
		if interval > cfg.cap {
			interval = cfg.cap
		}
	}
}

package client

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultPollInterval = 3 * time.Second

// Poller calls Fetch on a fixed interval and whenever Trigger is called.
// Fetch errors are logged; polling continues.
type Poller struct {
	interval time.Duration
	fetch    func(context.Context) error
	trigger  chan struct{}
	log      logrus.FieldLogger
}

func NewPoller(interval time.Duration, fetch func(context.Context) error, log logrus.FieldLogger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{interval: interval, fetch: fetch, trigger: make(chan struct{}, 1), log: log}
}

// Trigger requests an immediate fetch. Calls coalesce while one is queued.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run fetches once, then on every tick or trigger until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		case <-p.trigger:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if err := p.fetch(ctx); err != nil && ctx.Err() == nil {
		p.log.WithError(err).Warn("poll failed")
	}
}

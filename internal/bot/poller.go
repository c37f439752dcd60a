package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/infra"
)

const (
	pollRetryDelay  = 3 * time.Second
	maxPollerPanics = 10
)

type Dispatcher interface {
	Dispatch(ctx context.Context, u api.Update) error
}

// Poller feeds long-polled updates into a Dispatcher until stopped. A failed
// poll is retried after a short delay.
type Poller struct {
	source     UpdateSource
	dispatcher Dispatcher
	config     api.UpdateConfig
	buffer     int
	retryDelay time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPoller(source UpdateSource, dispatcher Dispatcher, config api.UpdateConfig, buffer int) *Poller {
	return &Poller{
		source:     source,
		dispatcher: dispatcher,
		config:     config,
		buffer:     buffer,
		retryDelay: pollRetryDelay,
	}
}

func (p *Poller) getLogEntry() *log.Entry {
	return log.WithField("object", "Poller")
}

func (p *Poller) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.wg.Add(1)
	// a panicking run is restarted, so Done is reached exactly once
	go infra.GoRecoverable(maxPollerPanics, "poll_updates", func() {
		p.run(runCtx)
		p.wg.Done()
	})
	return nil
}

func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) run(ctx context.Context) {
	config := p.config
	for {
		updates, errs := GetUpdatesChans(ctx, p.source, config, p.buffer)
		for update := range updates {
			if update.UpdateID >= config.Offset {
				config.Offset = update.UpdateID + 1
			}
			if err := p.dispatcher.Dispatch(ctx, update); err != nil {
				p.getLogEntry().WithField("error", err.Error()).Warn("cant dispatch update")
			}
		}
		err := <-errs
		if ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			p.getLogEntry().WithField("error", err.Error()).Error("bot api get updates error")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.retryDelay):
		}
	}
}

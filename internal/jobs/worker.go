// Package jobs runs background work off the request path.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/phuslu/log"
)

// JobProcessor does one round of pending work.
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker runs a JobProcessor every interval, and sooner when kicked. A
// failing or panicking round is logged and the loop carries on.
type Worker struct {
	name      string
	processor JobProcessor
	interval  time.Duration

	kick     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewWorker(name string, processor JobProcessor, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Worker{
		name:      name,
		processor: processor,
		interval:  interval,
		kick:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start blocks running rounds until ctx ends or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.Info().Str("worker", w.name).Dur("interval", w.interval).Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("worker", w.name).Msg("worker stopped: context done")
			return
		case <-w.stop:
			log.Info().Str("worker", w.name).Msg("worker stopped")
			return
		case <-ticker.C:
		case <-w.kick:
			ticker.Reset(w.interval)
		}
		w.round(ctx)
	}
}

// Kick asks for a round now. It never blocks; kicks made while one is
// already pending collapse into it.
func (w *Worker) Kick() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Stop ends the loop and waits for the current round. Call it only after
// Start.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}

func (w *Worker) round(ctx context.Context) {
	start := time.Now()
	err := w.safeProcess(ctx)
	if err != nil {
		log.Error().Err(err).Str("worker", w.name).Dur("took", time.Since(start)).Msg("worker round failed")
		return
	}
	log.Trace().Str("worker", w.name).Dur("took", time.Since(start)).Msg("worker round done")
}

func (w *Worker) safeProcess(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.processor.ProcessJobs(ctx)
}

package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/wiicon_remote/internal/timeutil"
)

// Observer receives every successful cycle result. Observe runs on the
// producer goroutine and must not block.
type Observer interface {
	Observe(State)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(State)

// Observe implements Observer.
func (f ObserverFunc) Observe(st State) { f(st) }

// Stepper is one polling cycle.
type Stepper interface {
	Step() (State, error)
}

// SampleInterval converts a sample rate to a ticker period.
func SampleInterval(freqHz float64) time.Duration {
	if freqHz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / freqHz)
}

// RunProducer calls Step once per interval until ctx is done. A failed step
// is skipped and the loop continues with the next tick.
func RunProducer(ctx context.Context, clock timeutil.Clock, p Stepper, interval time.Duration, observers ...Observer) error {
	if interval <= 0 {
		return fmt.Errorf("producer: non-positive polling interval %v", interval)
	}
	log.Infof("producer: polling every %v", interval)

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("producer: stopping")
			return ctx.Err()
		case <-ticker.C():
		}

		st, err := p.Step()
		if err != nil {
			continue
		}
		for _, o := range observers {
			o.Observe(st)
		}
	}
}

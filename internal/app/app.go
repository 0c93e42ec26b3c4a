package app

import (
	"context"
	"errors"
	"time"

	"github.com/jkaberg/robovac-hass/internal/bus"
	"github.com/jkaberg/robovac-hass/internal/cache"
	"github.com/jkaberg/robovac-hass/internal/config"
	"github.com/jkaberg/robovac-hass/internal/sensors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Transmitter receives the sensor states worth publishing.
type Transmitter interface {
	Transmit(states []sensors.State) error
}

// PollObserver is told about every poll, e.g. to export metrics.
type PollObserver interface {
	ObservePoll(st sensors.State, res sensors.PollResult)
}

// Run polls every sensor on cfg.RefreshRate and forwards changed states to
// tx. It blocks until ctx is cancelled. tx and observer may be nil.
func Run(
	ctx context.Context,
	cfg *config.Config,
	entities []*sensors.BatterySensor,
	tx Transmitter,
	observer PollObserver,
	logger *logrus.Logger,
) {
	messageBus := bus.New()
	sub := messageBus.Subscribe()
	grp, ctx := errgroup.WithContext(ctx)

	// Poller ---------------------------------------------------------------
	grp.Go(func() error {
		defer messageBus.Close()

		interval := cfg.RefreshRate
		if interval <= 0 {
			interval = config.DefaultRefreshRate
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		messageBus.Publish(pollAll(entities, observer, logger))
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				messageBus.Publish(pollAll(entities, observer, logger))
			}
		}
	})

	// Transmit scheduler -----------------------------------------------------
	changes := cache.NewManager(cfg.ForceUpdateInterval)
	grp.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case batch, ok := <-sub:
				if !ok {
					return nil
				}
				if tx == nil {
					continue
				}
				changed := changes.Changed(batch)
				if len(changed) == 0 {
					continue
				}
				if err := tx.Transmit(changed); err != nil {
					logger.WithError(err).Warn("MQTT transmit failed")
					// Retry on the next poll even if nothing changes.
					changes.Forget(changed)
					continue
				}
				changes.MarkSent(changed)
			}
		}
	})

	err := grp.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.WithError(err).Warn("app: background group exited")
	}
}

// pollAll polls each sensor once. A sensor is only ever polled from this
// goroutine, so polls never overlap for one instance.
func pollAll(entities []*sensors.BatterySensor, observer PollObserver, logger *logrus.Logger) []sensors.State {
	states := make([]sensors.State, 0, len(entities))
	for _, s := range entities {
		res := s.Poll()
		st := s.State()
		if observer != nil {
			observer.ObservePoll(st, res)
		}
		states = append(states, st)
	}
	logger.WithField("sensors", len(states)).Debug("poller: cycle complete")
	return states
}

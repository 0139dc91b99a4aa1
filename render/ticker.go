// Package render drives the fixed-cadence frame flush. Each tick is one
// synchronous invoke request: it drains the redraw queue from the state
// snapshot, hands the regions to the presentation backend as a single batch,
// posts the frame-next occurrence and advances the clock. Ticks never mutate
// state, so they cannot race state mutation.
package render

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stagekit/stagekit/app"
	"github.com/stagekit/stagekit/core"
)

const (
	// DefaultFrameRate is the target frames per second
	DefaultFrameRate = 60

	// DefaultMargin is the slice of each frame reserved for processing
	DefaultMargin = 5 * time.Millisecond
)

// Ticker is the render-tick producer.
type Ticker struct {
	mailbox  *app.Mailbox
	logger   zerolog.Logger
	interval time.Duration
}

// New creates a Ticker flushing at frameRate, with margin subtracted from
// each frame interval for processing headroom.
func New(mb *app.Mailbox, frameRate int, margin time.Duration, logger zerolog.Logger) *Ticker {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	if margin < 0 {
		margin = DefaultMargin
	}

	frame := time.Second / time.Duration(frameRate)
	interval := frame - margin
	if interval <= 0 {
		interval = frame
	}

	return &Ticker{
		mailbox:  mb,
		logger:   logger,
		interval: interval,
	}
}

// Run flushes frames until ctx is canceled. Cancellation is a clean exit; a
// failed flush is fatal and surfaces to the supervisor.
func (t *Ticker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := t.flush(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// flush runs one frame as a single synchronous invoke and waits for it.
func (t *Ticker) flush(ctx context.Context) error {
	reply, err := core.InvokeSync(t.mailbox, func(ctx context.Context, a app.Application) (int, error) {
		regions := a.Redraw.Drain()

		if err := a.Surface.Update(regions); err != nil {
			return 0, fmt.Errorf("failed to flush %d regions: %w", len(regions), err)
		}
		if err := a.PostKey(app.KeyFrameNext, nil); err != nil {
			return 0, err
		}
		a.Clock.Tick()

		return len(regions), nil
	})
	if err != nil {
		return err
	}

	flushed, err := reply.Wait(ctx)
	if err != nil {
		return err
	}

	if flushed > 0 {
		t.logger.Debug().Int("regions", flushed).Msg("frame flushed")
	}
	return nil
}

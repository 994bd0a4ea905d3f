/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// countdown delivers one tick per second on ticks until stopped. It
// implements Timer for the engine; the receiving loop calls Engine.Tick.
type countdown struct {
	clock clockwork.Clock
	ticks chan<- struct{}

	stop chan struct{}
	done chan struct{}
}

func newCountdown(clock clockwork.Clock, ticks chan<- struct{}) *countdown {
	return &countdown{
		clock: clock,
		ticks: ticks,
	}
}

// Start begins ticking, replacing any ticker already running.
func (c *countdown) Start() {
	c.Stop()

	stop := make(chan struct{})
	done := make(chan struct{})
	c.stop, c.done = stop, done

	ticker := c.clock.NewTicker(time.Second)

	go func() {
		defer close(done)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				select {
				case c.ticks <- struct{}{}:
				case <-stop:
					return
				}
			}
		}
	}()
}

// Stop halts the ticker and waits for its goroutine, so no tick is
// delivered once Stop returns.
func (c *countdown) Stop() {
	if c.stop == nil {
		return
	}

	close(c.stop)
	<-c.done

	c.stop, c.done = nil, nil
}

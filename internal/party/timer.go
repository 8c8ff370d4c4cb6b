package party

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// scheduleRoundTimer arms the one-shot round timer, replacing any timer that
// is already outstanding for this room (cancel-old-before-set-new). The
// generation counter makes a replaced timer's fire a no-op even if it was
// already in flight.
func (p *Party) scheduleRoundTimer() {
	p.timerGen++
	gen := p.timerGen

	if p.timer != nil {
		stopAndDrainTimer(p.timer)
	}

	t := p.clock.NewTimer(time.Duration(p.state.Rules.RoundMs) * time.Millisecond)
	p.timer = t

	go func() {
		select {
		case <-t.Chan():
			select {
			case p.inbox <- roundExpired{gen: gen}:
			case <-p.ctx.Done():
				// Room deleted before the fire was processed.
			}
		case <-p.ctx.Done():
			stopAndDrainTimer(t)
		}
	}()
}

func (p *Party) stopTimer() {
	if p.timer != nil {
		stopAndDrainTimer(p.timer)
		p.timer = nil
	}
	p.timerGen++ // anything already in flight is now stale
}

// stopAndDrainTimer stops a timer and drains its channel so the waiting
// goroutine cannot leak, per the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

// Package host runs the polling loop that owns the derotator controller.
package host

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/w1xm/derot/derotator"
	"github.com/w1xm/derot/dispatch"
	"github.com/w1xm/derot/server"
	"github.com/w1xm/derot/stepper"
)

// Status is published to status subscribers.
type Status struct {
	derotator.Status
	// Fault describes the last reason the controller stopped on its own.
	Fault     string
	FaultTime time.Time
	Time      time.Time
}

type Loop struct {
	Ctrl       *derotator.Controller
	Dispatcher *dispatch.Dispatcher
	Queues     []*server.Queue

	// MaxAccumulatedDeg stops tracking once the correction applied since
	// Start reaches it. 0 disables.
	MaxAccumulatedDeg float64
	// Period defaults to 2ms.
	Period time.Duration
	// StatusInterval defaults to 250ms.
	StatusInterval time.Duration
	StatusCallback func(Status)
	// Now defaults to time.Now.
	Now func() time.Time

	jog        chan stepper.Direction
	fault      string
	faultTime  time.Time
	lastStatus time.Time
}

func New(ctrl *derotator.Controller, d *dispatch.Dispatcher, queues ...*server.Queue) *Loop {
	return &Loop{
		Ctrl:       ctrl,
		Dispatcher: d,
		Queues:     queues,
		jog:        make(chan stepper.Direction, 1),
	}
}

// Jog requests a single motor step on the next tick. It is safe to call
// from any goroutine and drops the request if one is already waiting.
func (l *Loop) Jog(dir stepper.Direction) bool {
	select {
	case l.jog <- dir:
		return true
	default:
		return false
	}
}

func (l *Loop) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Loop) setFault(what string, err interface{}) {
	l.fault = fmt.Sprintf("%s: %v", what, err)
	l.faultTime = l.now()
	log.Print(l.fault)
}

// Tick runs one pass of the loop. It never blocks.
func (l *Loop) Tick() {
	select {
	case dir := <-l.jog:
		if err := l.Ctrl.Turn(dir); err != nil {
			l.setFault("jog", err)
		}
	default:
	}

	if _, err := l.Ctrl.ContinueHallHome(); err != nil {
		l.setFault("hall home", err)
	}
	if _, err := l.Ctrl.ContinueUserHome(); err != nil {
		l.setFault("user home", err)
	}

	switch r := l.Ctrl.Continue(); r {
	case derotator.CadenceTooSmall, derotator.LimitReached, derotator.ActuatorFault:
		l.Ctrl.Stop()
		l.setFault("tracking", r)
	case derotator.Stepped:
		if l.MaxAccumulatedDeg > 0 && math.Abs(l.Ctrl.AccumulatedAngle()) >= l.MaxAccumulatedDeg {
			l.Ctrl.Stop()
			l.setFault("tracking", fmt.Sprintf("accumulated %.2f°", l.Ctrl.AccumulatedAngle()))
		}
	}

	for _, q := range l.Queues {
		q.ServeOne(l.Dispatcher)
	}

	if _, err := l.Ctrl.ContinueUserAngle(); err != nil {
		l.setFault("user angle", err)
	}

	l.publish()
}

func (l *Loop) publish() {
	if l.StatusCallback == nil {
		return
	}
	interval := l.StatusInterval
	if interval == 0 {
		interval = 250 * time.Millisecond
	}
	now := l.now()
	if !l.lastStatus.IsZero() && now.Sub(l.lastStatus) < interval {
		return
	}
	l.lastStatus = now
	l.StatusCallback(Status{
		Status:    l.Ctrl.Status(),
		Fault:     l.fault,
		FaultTime: l.faultTime,
		Time:      now,
	})
}

// Run ticks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	period := l.Period
	if period == 0 {
		period = 2 * time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.Ctrl.Stop()
			return ctx.Err()
		case <-ticker.C:
			l.Tick()
		}
	}
}

package refresh

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseSchedule parses a standard 5-field cron expression
// (minute hour day-of-month month day-of-week), e.g. "*/5 * * * *".
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("empty schedule")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return sched, nil
}

type Scheduler struct {
	Schedule  cron.Schedule
	Location  *time.Location
	Processor *Processor
	// Watch also processes the inbox as soon as a file lands in new/.
	Watch bool
}

// Run processes the inbox once, then on every scheduled tick (and on new mail
// when Watch is set) until ctx is cancelled.
func (s Scheduler) Run(ctx context.Context) error {
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}

	var wake chan struct{}
	if s.Watch {
		wake = make(chan struct{}, 1)
		go s.watch(ctx, wake)
	}

	s.runOnce(ctx, "startup")
	for {
		now := time.Now().In(loc)
		next := s.Schedule.Next(now)
		wait := next.Sub(now)
		log.Printf("next inbox refresh at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			s.runOnce(ctx, "schedule")
		case <-wake:
			timer.Stop()
			s.runOnce(ctx, "new mail")
		}
	}
}

func (s Scheduler) runOnce(ctx context.Context, trigger string) {
	result, err := s.Processor.ProcessInbox(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("inbox refresh error trigger=%s: %v", trigger, err)
		}
		return
	}
	log.Printf("inbox refresh complete trigger=%s: %s", trigger, FormatProcessSummary(result))
}

func (s Scheduler) watch(ctx context.Context, wake chan<- struct{}) {
	for {
		err := s.Processor.Mailbox.WaitForMail(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("inbox watch error: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}

// Package retention prunes old run history on a cron schedule.
// Generated project directories are never touched.
package retention

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hochfrequenz/prompt-executor/internal/config"
)

const defaultMaxAgeDays = 30

// Pruner deletes history rows created before cutoff
type Pruner interface {
	PruneBefore(cutoff time.Time) (int64, error)
}

// Policy is a validated retention configuration
type Policy struct {
	Cron       string
	MaxAgeDays int
}

// PolicyFromConfig converts the [retention] config section
func PolicyFromConfig(cfg config.RetentionConfig) Policy {
	return Policy{Cron: cfg.Cron, MaxAgeDays: cfg.MaxAgeDays}
}

// Enabled reports whether a schedule is configured
func (p Policy) Enabled() bool {
	return p.Cron != ""
}

// Validate checks the cron expression and fills defaults
func (p *Policy) Validate() error {
	if p.Cron != "" {
		if _, err := ParseCron(p.Cron); err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
	}
	if p.MaxAgeDays <= 0 {
		p.MaxAgeDays = defaultMaxAgeDays
	}
	return nil
}

// Cutoff returns the oldest creation time kept relative to now
func (p Policy) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -p.MaxAgeDays)
}

// ParseCron parses a 5-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// Scheduler runs the pruner whenever the policy's schedule is due
type Scheduler struct {
	policy   Policy
	schedule cron.Schedule
	pruner   Pruner
	interval time.Duration
	now      func() time.Time

	lastRun time.Time
	mu      sync.Mutex
}

// NewScheduler validates policy and builds a scheduler for it
func NewScheduler(policy Policy, pruner Pruner) (*Scheduler, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if !policy.Enabled() {
		return nil, fmt.Errorf("retention schedule is not configured")
	}
	sched, err := ParseCron(policy.Cron)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		policy:   policy,
		schedule: sched,
		pruner:   pruner,
		interval: time.Minute,
		now:      time.Now,
	}, nil
}

// Policy returns the validated policy
func (s *Scheduler) Policy() Policy { return s.policy }

// NextRun returns the next scheduled prune after from
func (s *Scheduler) NextRun(from time.Time) time.Time {
	return s.schedule.Next(from)
}

// ShouldRun returns true if a prune is due at now
func (s *Scheduler) ShouldRun(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	lastRun := s.lastRun
	if lastRun.IsZero() {
		lastRun = now.Add(-24 * time.Hour)
	}
	return !now.Before(s.schedule.Next(lastRun))
}

// RunOnce prunes rows older than the policy allows and marks the run
func (s *Scheduler) RunOnce(now time.Time) (int64, error) {
	n, err := s.pruner.PruneBefore(s.policy.Cutoff(now))

	s.mu.Lock()
	s.lastRun = now
	s.mu.Unlock()

	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	return n, nil
}

// Run checks the schedule every interval until ctx is done
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("[retention] next prune at %s", s.NextRun(s.now()).Format(time.RFC3339))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := s.now()
			if !s.ShouldRun(now) {
				continue
			}
			n, err := s.RunOnce(now)
			if err != nil {
				log.Printf("[retention] %v", err)
				continue
			}
			log.Printf("[retention] pruned %d runs older than %d days", n, s.policy.MaxAgeDays)
		}
	}
}

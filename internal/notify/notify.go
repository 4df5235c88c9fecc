// Package notify announces finished runs to Slack and the desktop.
package notify

import (
	"log"
	"sync"

	"github.com/hochfrequenz/prompt-executor/internal/domain"
	"github.com/hochfrequenz/prompt-executor/internal/executor"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	RunID   string // Optional run reference
	Project string // Optional project slug
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Len returns the number of wrapped notifiers
func (m *MultiNotifier) Len() int { return len(m.notifiers) }

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }

// RunNotifier turns terminal executor events into notifications. Sends
// happen in the background so a slow webhook never delays a request.
type RunNotifier struct {
	notifier Notifier
	wg       sync.WaitGroup
}

// NewRunNotifier wraps n
func NewRunNotifier(n Notifier) *RunNotifier {
	return &RunNotifier{notifier: n}
}

// Observe is an executor.Observer
func (r *RunNotifier) Observe(ev executor.Event) {
	n, ok := notificationFor(ev)
	if !ok {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.notifier.Send(n); err != nil {
			log.Printf("[notify] run %s: %v", ev.RunID, err)
		}
	}()
}

// Wait blocks until all pending sends are done
func (r *RunNotifier) Wait() {
	r.wg.Wait()
}

func notificationFor(ev executor.Event) (Notification, bool) {
	switch ev.Stage {
	case domain.StageReported:
		return Notification{
			Title:   "Project generated",
			Message: "Files written to /output/" + ev.Slug + "/",
			Type:    NotifySuccess,
			RunID:   ev.RunID,
			Project: ev.Slug,
		}, true
	case domain.StageFailed:
		return Notification{
			Title:   "Run failed",
			Message: ev.Error,
			Type:    NotifyError,
			RunID:   ev.RunID,
			Project: ev.Slug,
		}, true
	default:
		return Notification{}, false
	}
}

// Package trigger turns remote repository activity into run requests:
// a polling watcher that emits an event whenever a ref resolves to a new
// commit, and a cron scheduler for time-based runs.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Resolver resolves a remote ref to a commit hash without touching any
// local workspace.
type Resolver interface {
	Resolve(url, ref string) (string, error)
}

// ChangeEvent is one observed commit change on a watched ref.
type ChangeEvent struct {
	Repository string
	Ref        string
	Commit     string
	ObservedOn time.Time
}

type Watcher struct {
	resolver   Resolver
	repository string
	ref        string
	interval   time.Duration

	events     chan ChangeEvent
	lastCommit string
}

func NewWatcher(resolver Resolver, repository, ref string, interval time.Duration) *Watcher {
	return &Watcher{
		resolver:   resolver,
		repository: repository,
		ref:        ref,
		interval:   interval,
		events:     make(chan ChangeEvent, 16),
	}
}

func (w *Watcher) Events() <-chan ChangeEvent {
	return w.events
}

// Poll resolves the watched ref once. The first successful resolution and
// every commit change after it emit an event; an unchanged commit emits
// nothing. Resolution errors are returned to the caller and do not disturb
// the deduplication state.
func (w *Watcher) Poll(ctx context.Context) error {
	commit, err := w.resolver.Resolve(w.repository, w.ref)
	if err != nil {
		return fmt.Errorf("err resolving ref %q of %s: %w", w.ref, w.repository, err)
	}
	if commit == w.lastCommit {
		return nil
	}
	w.lastCommit = commit

	ev := ChangeEvent{
		Repository: w.repository,
		Ref:        w.ref,
		Commit:     commit,
		ObservedOn: time.Now().UTC(),
	}
	select {
	case w.events <- ev:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Watch polls until the context is cancelled, then closes the event
// channel. A failed poll logs and waits for the next tick.
func (w *Watcher) Watch(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.events)

	for {
		if err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("poll failed", "repository", w.repository, "ref", w.ref, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

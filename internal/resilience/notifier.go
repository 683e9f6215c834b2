package resilience

import (
	"context"

	"github.com/linnemanlabs/harken/internal/feedback"
)

type guardedNotifier struct {
	next feedback.Notifier
	exec *Executor
}

// WrapNotifier runs every delivery of n through exec, using the notifier's
// name as the breaker key.
func WrapNotifier(exec *Executor, n feedback.Notifier) feedback.Notifier {
	return &guardedNotifier{next: n, exec: exec}
}

func (g *guardedNotifier) Name() string { return g.next.Name() }

func (g *guardedNotifier) Notify(ctx context.Context, ev feedback.Event) error {
	return g.exec.Execute(ctx, "notify."+g.next.Name(), func(ctx context.Context) error {
		return g.next.Notify(ctx, ev)
	}, DefaultClassifier)
}

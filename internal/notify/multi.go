package notify

import (
	"context"

	"github.com/rsamf/mink/internal/datastore"
	"github.com/rsamf/mink/internal/errors"
)

// Notifier is told about a job in a terminal status.
type Notifier interface {
	Notify(ctx context.Context, job *datastore.Job) error
}

// Multi notifies every member in order. A failing member does not stop the
// rest; errors are joined.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, job *datastore.Job) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, job); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Combine returns the single member of ns, a Multi of several, or nil for
// none, skipping nil entries.
func Combine(ns ...Notifier) Notifier {
	var members Multi
	for _, n := range ns {
		if n != nil {
			members = append(members, n)
		}
	}
	switch len(members) {
	case 0:
		return nil
	case 1:
		return members[0]
	default:
		return members
	}
}

package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"

	"recruitment/domain"
	"recruitment/infrastructure"
)

var tracer = otel.Tracer("recruitment/service")

const defaultConflictRetries = 3

// mutation changes a locked application inside a transaction. It reports whether
// anything changed; unchanged applications are not written.
type mutation func(tx *infrastructure.Store, app *domain.Application, now time.Time) (bool, error)

// mutateApplication runs fn against the locked application and persists the
// aggregate, its new history entries and its domain events in one transaction.
// Version conflicts are retried up to retries times.
func mutateApplication(ctx context.Context, store *infrastructure.Store, clock Clock, ref string, retries int, fn mutation) (*domain.Application, error) {
	if retries <= 0 {
		retries = defaultConflictRetries
	}

	for attempt := 0; ; attempt++ {
		var out *domain.Application
		err := store.Transaction(ctx, func(tx *infrastructure.Store) error {
			app, err := tx.LockApplication(ctx, ref)
			if err != nil {
				return err
			}

			now := clock.now()
			changed, err := fn(tx, app, now)
			if err != nil {
				return err
			}
			out = app
			if !changed {
				return nil
			}

			if err := tx.SaveApplication(ctx, app, now); err != nil {
				return err
			}
			return tx.AppendEvents(ctx, app.PullEvents(), now)
		})
		if errors.Is(err, domain.ErrConflict) && attempt < retries {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

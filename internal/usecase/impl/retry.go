package impl

import (
	"context"

	domainerrors "huddle/internal/domain/errors"
	"huddle/internal/domain/repository"

	"github.com/pkg/errors"
)

// errNoChange tells a mutation helper that the entity is already in the desired shape.
var errNoChange = errors.New("no change")

// withConflictRetry runs op and re-runs it against fresh state after a version conflict,
// at most retries more times. A conflict that survives every attempt is surfaced as a
// transient ErrConcurrencyConflict.
func withConflictRetry(ctx context.Context, retries int, op func() error) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		err = op()
		if !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrap(ctxErr, "context done while retrying")
		}
	}

	return errors.Wrap(domainerrors.ErrConcurrencyConflict, err.Error())
}

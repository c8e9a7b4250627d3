package booking

import (
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/storage"
)

// storeErr classifies an error coming back from the store or a component reading it.
// Errors that already carry a kind pass through unchanged; anything unrecognised, context
// expiry included, is an infrastructure failure.
func storeErr(err error, format string, args ...any) error {
	var typed *apperr.Error
	if errors.As(err, &typed) {
		return err
	}
	what := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, err, "%s", what)
	case errors.Is(err, storage.ErrOverlap):
		return apperr.Wrap(apperr.KindConcurrentConflict, err, "interval was taken concurrently")
	case errors.Is(err, storage.ErrStale), errors.Is(err, storage.ErrDuplicateKey):
		return apperr.Wrap(apperr.KindConcurrentConflict, err, "%s", what)
	case errors.Is(err, storage.ErrTimeOffState), errors.Is(err, storage.ErrTimeOffOverlap):
		return apperr.Wrap(apperr.KindValidation, err, "%s", what)
	}
	return apperr.Wrap(apperr.KindUnavailable, err, "%s", what)
}

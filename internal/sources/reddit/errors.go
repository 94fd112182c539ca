package reddit

import (
	"errors"
	"time"

	"github.com/vartanbeno/go-reddit/v2/reddit"

	"github.com/alextesy/stocktalk/internal/models"
)

// classify converts a library error into a classified SourceError. This is
// the only place in the repository that inspects the platform's error types;
// everything above branches on models.Outcome.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var rle *reddit.RateLimitError
	if errors.As(err, &rle) {
		wait := time.Until(rle.Rate.Reset)
		if wait < 0 {
			wait = 0
		}
		return &models.SourceError{
			Outcome:    models.OutcomeRateLimited,
			Message:    rle.Message,
			RetryAfter: wait,
			Err:        err,
		}
	}

	var er *reddit.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		switch code := er.Response.StatusCode; {
		case code == 404 || code == 410:
			return &models.SourceError{
				Outcome: models.OutcomeNotFound,
				Message: er.Message,
				Err:     err,
			}
		case code == 429:
			return &models.SourceError{
				Outcome: models.OutcomeRateLimited,
				Message: er.Message,
				Err:     err,
			}
		default:
			// 401/403 credential failures and source-side 5xx both
			// land here: not retryable at this layer.
			return &models.SourceError{
				Outcome: models.OutcomeFatal,
				Message: er.Message,
				Err:     err,
			}
		}
	}

	// Transport-level failures (timeouts, DNS) are fatal for the current
	// unit of work; the schedulers skip and continue.
	return &models.SourceError{
		Outcome: models.OutcomeFatal,
		Message: err.Error(),
		Err:     err,
	}
}

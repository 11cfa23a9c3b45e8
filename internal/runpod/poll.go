package runpod

import (
	"context"
	"time"
)

// pollUntil drives a submit-then-poll job to a terminal state. fetch is
// called once per interval and returns the job's current status plus the raw
// payload; done and failed classify terminal statuses. The deadline is
// re-checked on every iteration so a stalled fetch cannot overrun it.
//
// Returns the last observed status, the last payload, and whether the
// deadline elapsed before a terminal status was seen.
func pollUntil(
	ctx context.Context,
	interval time.Duration,
	deadline time.Time,
	fetch func(context.Context) (string, map[string]interface{}, error),
	done func(string) bool,
	failed func(string) bool,
) (status string, payload map[string]interface{}, timedOut bool, err error) {
	for {
		if time.Now().After(deadline) {
			return status, payload, true, nil
		}

		select {
		case <-ctx.Done():
			return status, payload, false, ctx.Err()
		case <-time.After(interval):
		}

		s, p, ferr := fetch(ctx)
		if ferr != nil {
			return status, payload, false, ferr
		}
		status, payload = s, p

		if done(status) || failed(status) {
			return status, payload, false, nil
		}
	}
}

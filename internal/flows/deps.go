package flows

import "errors"

// isRateLimited reports whether err is the host's rate limit sentinel rather
// than a limiter backend failure.
func isRateLimited(err, sentinel error) bool {
	return sentinel != nil && errors.Is(err, sentinel)
}

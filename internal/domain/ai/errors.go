package ai

import "errors"

// ErrUnavailable indicates the backend could not be reached or refused the
// request (transport failure, quota, 5xx).
var ErrUnavailable = errors.New("model backend unavailable")

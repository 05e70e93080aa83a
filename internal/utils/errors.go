package utils

import "errors"

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("INVALID_TOKEN")

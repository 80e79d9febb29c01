package store

import "errors"

var ErrInvalidURL = errors.New("invalid url")
var ErrCodeSpaceExhausted = errors.New("failed to generate an unused short code")

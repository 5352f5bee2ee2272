package bitcoin

import "errors"

var (
	// ErrEmptyResult indicates the node answered with a null result where a value was expected
	ErrEmptyResult = errors.New("node returned an empty result")
)

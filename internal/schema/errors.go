package schema

import "errors"

// Configuration errors. These are fatal and never retried.
var (
	ErrUnknownType    = errors.New("unknown type")
	ErrDuplicateType  = errors.New("duplicate type")
	ErrDuplicateField = errors.New("duplicate field")
	ErrInvalidField   = errors.New("invalid field")
)

package query

import (
	"errors"
)

var (
	ErrPropertyNotFound = errors.New("property not found")
	ErrRangeTooLong     = errors.New("requested range is too long")
)

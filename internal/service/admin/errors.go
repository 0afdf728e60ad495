package admin

import (
	"errors"
)

var (
	ErrPropertyNotFound   = errors.New("property not found")
	ErrConnectionConflict = errors.New("property is already connected to this channel")
)

package repository

import "errors"

// ErrInvalidOrder is returned when a stage reorder does not cover every stage once
var ErrInvalidOrder = errors.New("invalid stage order")

package storage

import "errors"

var (
	ErrInvalidID    = errors.New("invalid id")
	ErrDataNotFound = errors.New("data not found")
	ErrRenameFailed = errors.New("file rename failed")
	ErrClosed       = errors.New("store closed")
)

package fileutil

import "errors"

var (
	ErrEmptyPath = errors.New("empty path")
	ErrOpen      = errors.New("open failed")
	ErrRead      = errors.New("read failed")
	ErrWrite     = errors.New("write failed")
	ErrRename    = errors.New("rename failed")
	ErrRemove    = errors.New("remove failed")
	ErrList      = errors.New("list failed")
	ErrMkdir     = errors.New("mkdir failed")
)

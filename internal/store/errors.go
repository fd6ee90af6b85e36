package store

import "errors"

// Backend errors - 儲存層錯誤
var (
	// ErrClosed indicates the store was used after Close
	ErrClosed = errors.New("store closed")

	// ErrMissingID indicates a record without a file identifier
	ErrMissingID = errors.New("record has no file identifier")
)

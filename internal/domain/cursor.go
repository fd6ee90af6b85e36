package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Initial page markers accepted by ParseCursor
const (
	InitialPageSortedByName = "initialPageSortedByName"
	InitialPageSortedByDate = "initialPageSortedByDate"
)

// PageCursor identifies a page within a scope. Pages are numbered from 1.
type PageCursor struct {
	page    int
	initial bool
}

// InitialCursor returns the distinguished first-page cursor
func InitialCursor() PageCursor {
	return PageCursor{page: 1, initial: true}
}

// CursorForPage returns the cursor for page n (n >= 1)
func CursorForPage(n int) (PageCursor, error) {
	if n < 1 {
		return PageCursor{}, fmt.Errorf("%w: page %d", ErrStaleCursor, n)
	}
	return PageCursor{page: n}, nil
}

// ParseCursor parses a cursor token. The empty string and the initial markers
// yield the initial cursor.
func ParseCursor(token string) (PageCursor, error) {
	switch strings.TrimSpace(token) {
	case "", InitialPageSortedByName, InitialPageSortedByDate:
		return InitialCursor(), nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(token))
	if err != nil || n < 1 {
		return PageCursor{}, fmt.Errorf("%w: %q", ErrStaleCursor, token)
	}
	return PageCursor{page: n}, nil
}

// Page returns the page number; the zero value is treated as page 1
func (c PageCursor) Page() int {
	if c.page < 1 {
		return 1
	}
	return c.page
}

// IsInitial reports whether c is the initial cursor (or the zero value)
func (c PageCursor) IsInitial() bool {
	return c.initial || c.page == 0
}

// Offset returns the zero-based item offset of the page
func (c PageCursor) Offset(pageSize int) int {
	return (c.Page() - 1) * pageSize
}

// Next returns the cursor of the following page
func (c PageCursor) Next() PageCursor {
	return PageCursor{page: c.Page() + 1}
}

// String renders the cursor as its page number
func (c PageCursor) String() string {
	return strconv.Itoa(c.Page())
}

// Page is one resolved page of a scope
type Page struct {
	Items []MetadataRecord

	// Next is nil when the scope is exhausted
	Next *PageCursor
}

package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// SyncAnchor marks a point in the change stream. Only equality and successor
// generation are meaningful.
type SyncAnchor uint64

// ParseAnchor parses a decimal anchor token
func ParseAnchor(token string) (SyncAnchor, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(token), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAnchor, token)
	}
	return SyncAnchor(n), nil
}

// Next returns the successor anchor
func (a SyncAnchor) Next() SyncAnchor { return a + 1 }

// String renders the anchor as a decimal string
func (a SyncAnchor) String() string {
	return strconv.FormatUint(uint64(a), 10)
}

// ChangeSet is the result of draining pending changes for one scope class
type ChangeSet struct {
	Deleted []string
	Updated []MetadataRecord
	Anchor  SyncAnchor

	// MoreComing is always false: changes are drained in one shot
	MoreComing bool
}

// Empty reports whether the change set carries no changes
func (c ChangeSet) Empty() bool {
	return len(c.Deleted) == 0 && len(c.Updated) == 0
}

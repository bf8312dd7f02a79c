package domain

import (
	"fmt"
	"time"
)

// DefaultScope is the sync scope used when only one catalog is synchronised.
const DefaultScope = "catalog"

// DateLayout is the date format used by the change feed.
const DateLayout = "2006-01-02"

// Cursor marks the last consumed position in the change feed.
// The feed is walked one date at a time; within a date, ChangeID is the next
// page to fetch. Complete means every page of Date has been committed.
type Cursor struct {
	Date     time.Time
	ChangeID int64
	Complete bool
}

// IsZero reports whether no position has been recorded yet.
func (c Cursor) IsZero() bool {
	return c.Date.IsZero()
}

// Compare orders cursors: earlier dates first, then in-progress pages by
// change id, then the completed marker for the same date.
func (c Cursor) Compare(o Cursor) int {
	cd, od := truncateDay(c.Date), truncateDay(o.Date)
	switch {
	case cd.Before(od):
		return -1
	case cd.After(od):
		return 1
	}
	switch {
	case c.Complete && !o.Complete:
		return 1
	case !c.Complete && o.Complete:
		return -1
	case c.Complete && o.Complete:
		return 0
	}
	switch {
	case c.ChangeID < o.ChangeID:
		return -1
	case c.ChangeID > o.ChangeID:
		return 1
	}
	return 0
}

// String renders the cursor for logs and status output.
func (c Cursor) String() string {
	if c.IsZero() {
		return "none"
	}
	if c.Complete {
		return c.Date.Format(DateLayout) + " complete"
	}
	return fmt.Sprintf("%s @%d", c.Date.Format(DateLayout), c.ChangeID)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Day normalises a time to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	return truncateDay(t)
}

// SyncState is the persisted change-feed position for one scope.
type SyncState struct {
	Scope     string
	Cursor    Cursor
	UpdatedAt time.Time
}

// Lease grants one run exclusive use of a scope until ExpiresAt.
type Lease struct {
	Scope      string
	Owner      string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the lease can be taken over at now.
func (l Lease) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

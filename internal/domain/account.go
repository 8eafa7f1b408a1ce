package domain

import (
	"strings"
	"time"
)

// AccountStatus is the roster-visible outcome of the last processing cycle.
type AccountStatus int

const (
	// StatusUnset means the roster row has no status yet.
	StatusUnset AccountStatus = iota
	// StatusUnderReview is set by an external operator and grants the
	// account absolute selection priority.
	StatusUnderReview
	// StatusSuccess means the last cycle published a report.
	StatusSuccess
	// StatusConnectedNoData means a session was established but no report
	// was published.
	StatusConnectedNoData
	// StatusInvalidLogins means no attempt managed to establish a session.
	StatusInvalidLogins
)

// String returns the roster wire form of the status.
func (s AccountStatus) String() string {
	switch s {
	case StatusUnderReview:
		return "Under Review"
	case StatusSuccess:
		return "Success"
	case StatusConnectedNoData:
		return "Connected-NoData"
	case StatusInvalidLogins:
		return "Invalid Logins"
	default:
		return ""
	}
}

// ParseAccountStatus reads a roster status cell. Comparison is trimmed and
// case-insensitive; anything unrecognized maps to StatusUnset.
func ParseAccountStatus(raw string) AccountStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "under review":
		return StatusUnderReview
	case "success":
		return StatusSuccess
	case "connected-nodata":
		return StatusConnectedNoData
	case "invalid logins":
		return StatusInvalidLogins
	default:
		return StatusUnset
	}
}

// RosterTimeLayout is the format of the roster's Last Data Update column.
const RosterTimeLayout = "2006-01-02 15:04:05"

// Account is one logical trading account from the roster. Several roster
// rows may share the same (login, server) pair; Rows lists all of them so
// status write-backs keep the group consistent.
type Account struct {
	Login        int64
	LoginRaw     string // original roster cell, kept for malformed-login reporting
	Password     string
	Server       string
	Status       AccountStatus
	LastUpdate   time.Time // zero when empty or unparseable
	SuccessCount int
	Rows         []int
}

// Stale reports whether the account qualifies for selection: it has never
// been updated (zero LastUpdate, which also covers malformed roster
// timestamps) or its last update is older than threshold.
func (a Account) Stale(now time.Time, threshold time.Duration) bool {
	if a.LastUpdate.IsZero() {
		return true
	}
	return now.Sub(a.LastUpdate) > threshold
}

// ParseRosterTime reads a Last Data Update cell. A zero time is returned for
// empty or malformed values, which the selector treats as infinitely stale.
func ParseRosterTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(RosterTimeLayout, raw, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

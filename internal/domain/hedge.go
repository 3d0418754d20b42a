package domain

import (
	"strings"
	"time"
)

// HedgeStatus is the discrete risk-mitigation stage of a position. The order
// of the constants matters: transitions are only ever monotonic
// (None -> Step1 -> Full) and Full is terminal.
type HedgeStatus int

const (
	HedgeNone HedgeStatus = iota
	HedgeStep1
	HedgeFull
)

// String returns the ledger wire form of the status.
func (s HedgeStatus) String() string {
	switch s {
	case HedgeStep1:
		return "STEP1"
	case HedgeFull:
		return "FULL"
	default:
		return "NONE"
	}
}

// ParseHedgeStatus maps a ledger string back to a HedgeStatus. Unknown
// values default to HedgeNone so a hand-edited ledger degrades safely.
func ParseHedgeStatus(s string) HedgeStatus {
	switch s {
	case "STEP1":
		return HedgeStep1
	case "FULL":
		return HedgeFull
	default:
		return HedgeNone
	}
}

// MarshalJSON writes the status in its ledger wire form.
func (s HedgeStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON reads the ledger wire form.
func (s *HedgeStatus) UnmarshalJSON(b []byte) error {
	str := strings.Trim(string(b), `"`)
	*s = ParseHedgeStatus(str)
	return nil
}

// Next returns the escalation target from this status, or false when the
// status is terminal.
func (s HedgeStatus) Next() (HedgeStatus, bool) {
	switch s {
	case HedgeNone:
		return HedgeStep1, true
	case HedgeStep1:
		return HedgeFull, true
	default:
		return HedgeFull, false
	}
}

// HedgeRecord is the per-position mutable hedge state. It is owned by the
// hedge state machine and persisted by the ledger; timers are wall-clock and
// survive restarts because they live here rather than in memory.
type HedgeRecord struct {
	Status      HedgeStatus
	FirstBreach *time.Time // start of the current confirmation window, nil when unbreached
	LastHedge   *time.Time // time of the last executed hedge action
}

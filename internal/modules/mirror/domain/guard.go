package domain

import "time"

const (
	DefaultPrimaryCap  int64 = 86400
	DefaultFailsafeCap int64 = 172800
)

type Verdict int

const (
	VerdictNone Verdict = iota
	VerdictPrimary
	VerdictFailsafe
)

// Guard forces a stop once a session outlives either cap.
// PrimaryCap bounds active seconds, FailsafeCap bounds wall-clock seconds.
type Guard struct {
	PrimaryCap  int64
	FailsafeCap int64
}

func NewGuard(primary, failsafe int64) Guard {
	if primary <= 0 {
		primary = DefaultPrimaryCap
	}
	if failsafe <= 0 {
		failsafe = DefaultFailsafeCap
	}
	return Guard{PrimaryCap: primary, FailsafeCap: failsafe}
}

// Evaluate only judges open snapshots that carry a session id; there is nothing to stop
// otherwise.
func (g Guard) Evaluate(s Snapshot, now time.Time) Verdict {
	if !s.Status.Open() || s.ID() == "" {
		return VerdictNone
	}
	if s.Duration >= g.PrimaryCap {
		return VerdictPrimary
	}
	if s.Elapsed(now) >= g.FailsafeCap {
		return VerdictFailsafe
	}
	return VerdictNone
}

func (v Verdict) Notice() Notice {
	switch v {
	case VerdictPrimary:
		return Notice{Level: NoticeInfo, Title: "Session Complete", Message: "Your 24-hour mining session has ended"}
	case VerdictFailsafe:
		return Notice{Level: NoticeError, Title: "Session Timeout", Message: "Session exceeded maximum duration"}
	default:
		return Notice{}
	}
}

func (v Verdict) String() string {
	switch v {
	case VerdictPrimary:
		return "primary"
	case VerdictFailsafe:
		return "failsafe"
	default:
		return "none"
	}
}

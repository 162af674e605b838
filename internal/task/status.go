package task

// Status is the lifecycle state of a task within one run.
type Status int

const (
	// Unknown is the state of a wrapper before setup begins.
	Unknown Status = iota
	SettingUp
	Ready
	SetupFailed
	NotInQuery
	Skipped
	Succeeded
	Failed
)

var statusNames = [...]string{
	Unknown:     "UNKNOWN",
	SettingUp:   "SETTING_UP",
	Ready:       "READY",
	SetupFailed: "SETUP_FAILED",
	NotInQuery:  "NOT_IN_QUERY",
	Skipped:     "SKIPPED",
	Succeeded:   "SUCCEEDED",
	Failed:      "FAILED",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "INVALID"
	}
	return statusNames[s]
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case SetupFailed, NotInQuery, Skipped, Succeeded, Failed:
		return true
	}
	return false
}

// transitions lists every allowed move. Anything absent is rejected.
var transitions = map[Status][]Status{
	Unknown:   {SettingUp, Skipped},
	SettingUp: {NotInQuery, Skipped, Ready, SetupFailed},
	Ready:     {Succeeded, Failed, Skipped},
}

// CanTransition reports whether a wrapper may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// runnable are the own statuses in which a task may still do work.
func runnable(s Status) bool {
	return s == SettingUp || s == Ready
}

// parentAllows are the parent statuses that do not block a child.
func parentAllows(s Status) bool {
	return s == NotInQuery || s == Ready || s == Succeeded
}

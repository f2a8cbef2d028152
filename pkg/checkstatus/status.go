package checkstatus

// Status is the outcome reported by the check process for one run.
type Status string

const (
	Failed   Status = "FAILED"
	Passed   Status = "PASSED"
	Stopped  Status = "STOPPED"
	Updating Status = "UPDATING"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case Failed, Passed, Stopped, Updating:
		return true
	default:
		return false
	}
}

func (s Status) String() string { return string(s) }

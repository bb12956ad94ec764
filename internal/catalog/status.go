package catalog

// Status is the workflow state of one section of an intake.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusWaived     Status = "waived"
)

var statuses = []Status{StatusNotStarted, StatusInProgress, StatusComplete, StatusWaived}

func (s Status) Valid() bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

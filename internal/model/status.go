package model

// Container commit status constants.
const (
	StatusDraft          = "Draft"
	StatusCommittingNew  = "Committing new"
	StatusCommittingBack = "Committing back"
)

// IsCommitStatus reports whether status requests a commit to the build service.
func IsCommitStatus(status string) bool {
	return status == StatusCommittingNew || status == StatusCommittingBack
}

// ValidStatus reports whether status is one of the known container states.
func ValidStatus(status string) bool {
	switch status {
	case StatusDraft, StatusCommittingNew, StatusCommittingBack:
		return true
	}
	return false
}

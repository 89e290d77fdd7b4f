package request

// UpdateRunnable is the PATCH body for a user's container. Absent fields are
// left unchanged. A commit status starts a publish.
type UpdateRunnable struct {
	Name          *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description   *string `json:"description" validate:"omitempty,max=5000"`
	Specification *string `json:"specification"`
	Saved         *bool   `json:"saved"`
	StartCmd      *string `json:"start_cmd"`
	BuildCmd      *string `json:"build_cmd"`
	ServiceCmds   *string `json:"service_cmds"`
	OutputFormat  *string `json:"output_format"`
	Status        *string `json:"status" validate:"omitempty,runnable_status"`
}

// TagRunnable names the channel to tag a container with, by name, alias or ID.
type TagRunnable struct {
	Name string `json:"name" validate:"required,max=100"`
}

package asyncauth

// JobType identifies the handler a queued job is routed to.
type JobType string

const (
	JobTypeSearch          JobType = "search"
	JobTypeApprovalRequest JobType = "approval-request"
	JobTypeResumeCallback  JobType = "resume-callback"
)

// JobTypes lists the job types every dispatcher must handle.
var JobTypes = []JobType{JobTypeSearch, JobTypeApprovalRequest, JobTypeResumeCallback}

const (
	// DefaultMaxAttempts is the delivery budget of a job before it is dead-lettered.
	DefaultMaxAttempts = 3

	// StartPath is the path of the ticket consumption endpoint.
	StartPath = "/async-auth/start"
	// CallbackPath is the path the provider redirects to after browser authorization.
	CallbackPath = "/async-auth/callback"
)

package taskname

const (
	// Submission tasks
	SubmissionArchive = "submission:archive"

	// Report tasks
	ReportDaily = "report:daily"
)

// Queues
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

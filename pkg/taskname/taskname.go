package taskname

// Task type names shared between the API server (enqueue side) and the
// worker (handler side).
const (
	NotifyEmail   = "notify:email"
	ReportExport  = "report:export"
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

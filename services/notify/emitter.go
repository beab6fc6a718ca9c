package notify

import (
	"encoding/json"

	"licenseplane/pkg/task"
	"licenseplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Event names fired by the lifecycle manager and the usage meter.
const (
	EventLicenseCreated     = "license.created"
	EventLicenseUpdated     = "license.updated"
	EventLicenseRenewed     = "license.renewed"
	EventLicenseSuspended   = "license.suspended"
	EventLicenseActivated   = "license.activated"
	EventLicenseTransferred = "license.transferred"
	EventLimitReached       = "license.limit_reached"
)

// Emitter is the outbound notification port. Emit never blocks the caller
// on delivery and never returns an error: a lost notification must not
// fail the state change that triggered it.
type Emitter interface {
	Emit(event, emailType string, recipients []string, data map[string]any)
}

// EmailPayload is the asynq task payload consumed by the worker.
type EmailPayload struct {
	Event      string         `json:"event"`
	EmailType  string         `json:"email_type"`
	Recipients []string       `json:"recipients"`
	Data       map[string]any `json:"data"`
}

type asynqEmitter struct {
	enqueuer task.Enqueuer
}

var Module = fx.Module("notify", fx.Provide(NewEmitter))

func NewEmitter(enqueuer task.Enqueuer) Emitter {
	return &asynqEmitter{enqueuer: enqueuer}
}

func (e *asynqEmitter) Emit(event, emailType string, recipients []string, data map[string]any) {
	if len(recipients) == 0 {
		return
	}

	payload, err := json.Marshal(EmailPayload{
		Event:      event,
		EmailType:  emailType,
		Recipients: recipients,
		Data:       data,
	})
	if err != nil {
		zap.L().Error("failed to marshal notification payload", zap.String("event", event), zap.Error(err))
		return
	}

	t := asynq.NewTask(taskname.NotifyEmail, payload)
	if _, err := e.enqueuer.Enqueue(t, asynq.Queue(taskname.QueueDefault)); err != nil {
		zap.L().Error("failed to enqueue notification", zap.String("event", event), zap.Error(err))
	}
}

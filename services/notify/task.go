package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"licenseplane/pkg/mailer"
	"licenseplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Task carries the worker-side handlers for notification delivery.
type Task struct {
	sender mailer.Sender
}

var TaskModule = fx.Module("task.notify",
	fx.Provide(NewTask),
	fx.Invoke(registerHandlers),
)

type TaskParams struct {
	fx.In
	Sender mailer.Sender
}

func NewTask(p TaskParams) *Task {
	return &Task{sender: p.Sender}
}

func registerHandlers(mux *asynq.ServeMux, t *Task) {
	mux.HandleFunc(taskname.NotifyEmail, t.HandleEmailTask)
}

func (t *Task) HandleEmailTask(ctx context.Context, task *asynq.Task) error {
	var payload EmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	zapLog := zap.L().With(
		zap.String("task_type", task.Type()),
		zap.String("event", payload.Event),
		zap.Int("recipients", len(payload.Recipients)),
	)

	subject, body := renderEmail(payload)
	if err := t.sender.Send(payload.Recipients, subject, body); err != nil {
		zapLog.Error("failed to deliver notification email", zap.Error(err))
		return err
	}

	zapLog.Info("notification email delivered")
	return nil
}

func renderEmail(p EmailPayload) (subject, body string) {
	switch p.Event {
	case EventLicenseCreated:
		subject = "Your license is ready"
	case EventLicenseUpdated:
		subject = "Your license was updated"
	case EventLicenseRenewed:
		subject = "Your license has been renewed"
	case EventLicenseSuspended:
		subject = "Your license has been suspended"
	case EventLicenseActivated:
		subject = "Your license has been reactivated"
	case EventLicenseTransferred:
		subject = "License ownership transfer"
	case EventLimitReached:
		subject = "Usage limit reached"
	default:
		subject = "License notification"
	}

	var b strings.Builder
	b.WriteString("<html><body>")
	b.WriteString(fmt.Sprintf("<h2>%s</h2>", subject))
	b.WriteString("<table>")
	for k, v := range p.Data {
		b.WriteString(fmt.Sprintf("<tr><td><b>%s</b></td><td>%v</td></tr>", k, v))
	}
	b.WriteString("</table>")
	b.WriteString("</body></html>")

	return subject, b.String()
}

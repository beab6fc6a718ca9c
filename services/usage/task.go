package usage

import (
	"context"
	"encoding/json"
	"fmt"

	"licenseplane/pkg/objstore"
	"licenseplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Task carries the worker-side handler for report exports.
type Task struct {
	svc   *Service
	store *objstore.Store
}

var TaskModule = fx.Module("task.usage",
	fx.Provide(NewTask),
	fx.Invoke(registerHandlers),
)

type TaskParams struct {
	fx.In
	Service *Service
	Store   *objstore.Store
}

func NewTask(p TaskParams) *Task {
	return &Task{svc: p.Service, store: p.Store}
}

func registerHandlers(mux *asynq.ServeMux, t *Task) {
	mux.HandleFunc(taskname.ReportExport, t.HandleExportTask)
}

func (t *Task) HandleExportTask(ctx context.Context, task *asynq.Task) error {
	var payload ExportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	zapLog := zap.L().With(
		zap.String("task_type", task.Type()),
		zap.String("license_id", payload.LicenseID),
		zap.String("key", payload.Key),
	)

	report, err := t.svc.Compliance(ctx, payload.LicenseID)
	if err != nil {
		zapLog.Error("failed to build compliance report", zap.Error(err))
		return err
	}

	if err := t.store.PutJSON(ctx, payload.Key, report); err != nil {
		zapLog.Error("failed to upload compliance report", zap.Error(err))
		return err
	}

	zapLog.Info("compliance report exported")
	return nil
}

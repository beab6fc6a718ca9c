package notify

import (
	"encoding/json"
	"errors"
	"testing"

	"licenseplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type mockEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (m *mockEnqueuer) Enqueue(t *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.tasks = append(m.tasks, t)
	return &asynq.TaskInfo{}, nil
}

func TestEmitEnqueuesEmailTask(t *testing.T) {
	enq := &mockEnqueuer{}
	emitter := NewEmitter(enq)

	emitter.Emit(EventLicenseRenewed, "license_renewed", []string{"billing@acme.test"}, map[string]any{
		"license_id": "lic_1",
	})

	require.Len(t, enq.tasks, 1)
	require.Equal(t, taskname.NotifyEmail, enq.tasks[0].Type())

	var payload EmailPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, EventLicenseRenewed, payload.Event)
	require.Equal(t, []string{"billing@acme.test"}, payload.Recipients)
	require.Equal(t, "lic_1", payload.Data["license_id"])
}

func TestEmitSkipsEmptyRecipients(t *testing.T) {
	enq := &mockEnqueuer{}
	emitter := NewEmitter(enq)

	emitter.Emit(EventLicenseCreated, "license_created", nil, nil)

	require.Empty(t, enq.tasks)
}

func TestEmitSwallowsEnqueueErrors(t *testing.T) {
	enq := &mockEnqueuer{err: errors.New("redis down")}
	emitter := NewEmitter(enq)

	// a lost notification must not panic or surface to the caller
	emitter.Emit(EventLicenseSuspended, "license_suspended", []string{"billing@acme.test"}, nil)
}

func TestRenderEmail(t *testing.T) {
	subject, body := renderEmail(EmailPayload{
		Event: EventLimitReached,
		Data:  map[string]any{"metric": "api_calls", "utilization": "80.01%"},
	})

	require.Equal(t, "Usage limit reached", subject)
	require.Contains(t, body, "api_calls")
	require.Contains(t, body, "80.01%")
}

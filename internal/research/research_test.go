package research

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/pkg/anthropic"
	"github.com/sells-group/hvac-targets/pkg/anthropic/mocks"
)

// scriptedBackend returns statuses in order, repeating the last one.
type scriptedBackend struct {
	mu        sync.Mutex
	statuses  []TaskStatus
	polls     int
	result    string
	canceled  bool
	statusErr error
}

func (s *scriptedBackend) Submit(context.Context, Prompt) (TaskHandle, error) {
	return TaskHandle{ID: "task-1", CustomID: "research-job"}, nil
}

func (s *scriptedBackend) Status(context.Context, TaskHandle) (TaskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErr != nil {
		return "", s.statusErr
	}
	i := s.polls
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	s.polls++
	return s.statuses[i], nil
}

func (s *scriptedBackend) Result(context.Context, TaskHandle) (string, error) {
	return s.result, nil
}

func (s *scriptedBackend) Cancel(context.Context, TaskHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canceled = true
	return nil
}

func fastPoll() PollConfig {
	return PollConfig{Initial: time.Millisecond, Max: 4 * time.Millisecond, Timeout: time.Second}
}

func TestWait_Completes(t *testing.T) {
	b := &scriptedBackend{
		statuses: []TaskStatus{TaskPending, TaskRunning, TaskRunning, TaskCompleted},
		result:   "done",
	}
	var seen []TaskStatus
	cfg := fastPoll()
	cfg.OnStatus = func(s TaskStatus) { seen = append(seen, s) }

	text, err := Wait(context.Background(), b, TaskHandle{ID: "task-1"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "done", text)
	assert.Equal(t, 4, b.polls)
	assert.Equal(t, []TaskStatus{TaskPending, TaskRunning, TaskRunning, TaskCompleted}, seen)
}

func TestWait_BackoffDoublesUpToMax(t *testing.T) {
	b := &scriptedBackend{
		statuses: []TaskStatus{TaskPending, TaskRunning, TaskRunning, TaskRunning, TaskRunning, TaskRunning, TaskRunning, TaskCompleted},
		result:   "done",
	}
	var waits []time.Duration
	cfg := DefaultPollConfig()
	cfg.after = func(d time.Duration) <-chan time.Time {
		waits = append(waits, d)
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}

	text, err := Wait(context.Background(), b, TaskHandle{ID: "task-1"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "done", text)
	assert.Equal(t, []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}, waits)
}

func TestWait_MaxBelowInitialHoldsInitial(t *testing.T) {
	b := &scriptedBackend{statuses: []TaskStatus{TaskRunning, TaskRunning, TaskCompleted}}
	var waits []time.Duration
	cfg := PollConfig{Initial: 10 * time.Second, Max: 5 * time.Second, Timeout: time.Hour}
	cfg.after = func(d time.Duration) <-chan time.Time {
		waits = append(waits, d)
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}

	_, err := Wait(context.Background(), b, TaskHandle{ID: "task-1"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, waits)
}

func TestWait_Failed(t *testing.T) {
	b := &scriptedBackend{statuses: []TaskStatus{TaskRunning, TaskFailed}}

	_, err := Wait(context.Background(), b, TaskHandle{ID: "task-1"}, fastPoll())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTaskFailed)
	assert.False(t, IsTimeout(err))
}

func TestWait_TimeoutCancelsTask(t *testing.T) {
	b := &scriptedBackend{statuses: []TaskStatus{TaskRunning}}
	cfg := PollConfig{Initial: 5 * time.Millisecond, Max: 10 * time.Millisecond, Timeout: 40 * time.Millisecond}

	_, err := Wait(context.Background(), b, TaskHandle{ID: "task-1"}, cfg)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.True(t, b.canceled)
}

func TestWait_StatusError(t *testing.T) {
	b := &scriptedBackend{statusErr: errors.New("503 from api")}

	_, err := Wait(context.Background(), b, TaskHandle{ID: "task-1"}, fastPoll())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503 from api")
}

func TestWait_ContextCanceled(t *testing.T) {
	b := &scriptedBackend{statuses: []TaskStatus{TaskRunning}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Wait(ctx, b, TaskHandle{ID: "task-1"}, PollConfig{Initial: 5 * time.Millisecond, Timeout: time.Minute})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, b.canceled)
}

func TestPollConfigDefaults(t *testing.T) {
	cfg := PollConfig{}.withDefaults()
	assert.Equal(t, 2*time.Second, cfg.Initial)
	assert.Equal(t, 30*time.Second, cfg.Max)
	assert.Equal(t, 20*time.Minute, cfg.Timeout)

	cfg = PollConfig{Initial: time.Minute, Max: time.Second}.withDefaults()
	assert.Equal(t, time.Minute, cfg.Max)
}

func TestMapBatchStatus(t *testing.T) {
	tests := []struct {
		batch anthropic.BatchResponse
		want  TaskStatus
	}{
		{anthropic.BatchResponse{ProcessingStatus: "in_progress"}, TaskRunning},
		{anthropic.BatchResponse{ProcessingStatus: "ended", RequestCounts: anthropic.RequestCounts{Succeeded: 1}}, TaskCompleted},
		{anthropic.BatchResponse{ProcessingStatus: "ended", RequestCounts: anthropic.RequestCounts{Errored: 1}}, TaskFailed},
		{anthropic.BatchResponse{ProcessingStatus: "canceling"}, TaskFailed},
		{anthropic.BatchResponse{}, TaskPending},
	}
	for _, tt := range tests {
		t.Run(tt.batch.ProcessingStatus, func(t *testing.T) {
			assert.Equal(t, tt.want, mapBatchStatus(&tt.batch))
			assert.Equal(t, tt.want.Terminal(), tt.want == TaskCompleted || tt.want == TaskFailed)
		})
	}
}

func TestAnthropicBackend_RoundTrip(t *testing.T) {
	mc := mocks.NewMockClient(t)
	ctx := context.Background()
	b := NewAnthropicBackend(mc, "claude-sonnet-4-5-20250929", 0)

	mc.On("CreateBatch", ctx, mock.MatchedBy(func(req anthropic.BatchRequest) bool {
		return len(req.Requests) == 1 &&
			req.Requests[0].CustomID == "research-job-7" &&
			req.Requests[0].Params.MaxTokens == 16000 &&
			req.Requests[0].Params.System == "sys"
	})).Return(&anthropic.BatchResponse{ID: "msgbatch_7", ProcessingStatus: "in_progress"}, nil)

	h, err := b.Submit(ctx, Prompt{JobID: "job-7", System: "sys", User: "find companies"})
	require.NoError(t, err)
	assert.Equal(t, TaskHandle{ID: "msgbatch_7", CustomID: "research-job-7"}, h)

	mc.On("GetBatch", ctx, "msgbatch_7").Return(&anthropic.BatchResponse{
		ID:               "msgbatch_7",
		ProcessingStatus: "ended",
		RequestCounts:    anthropic.RequestCounts{Succeeded: 1},
	}, nil)
	status, err := b.Status(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, TaskCompleted, status)

	iter := mocks.NewResultIterator(anthropic.BatchResultItem{
		CustomID: "research-job-7",
		Type:     anthropic.ResultSucceeded,
		Message:  &anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: "[]"}}},
	})
	mc.On("GetBatchResults", ctx, "msgbatch_7").Return(iter, nil)
	text, err := b.Result(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, "[]", text)
	assert.True(t, iter.Closed)
}

func TestAnthropicBackend_ResultMissingItem(t *testing.T) {
	mc := mocks.NewMockClient(t)
	ctx := context.Background()
	b := NewAnthropicBackend(mc, "m", 100)

	mc.On("GetBatchResults", ctx, "msgbatch_8").Return(mocks.NewResultIterator(anthropic.BatchResultItem{
		CustomID: "research-job-8",
		Type:     anthropic.ResultErrored,
	}), nil)

	_, err := b.Result(ctx, TaskHandle{ID: "msgbatch_8", CustomID: "research-job-8"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTaskFailed)
}

func TestAnthropicBackend_SubmitError(t *testing.T) {
	mc := mocks.NewMockClient(t)
	ctx := context.Background()
	mc.On("CreateBatch", ctx, mock.Anything).Return(nil, errors.New("401 unauthorized"))

	_, err := NewAnthropicBackend(mc, "m", 100).Submit(ctx, Prompt{JobID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "research: submit")
}

func TestAnthropicBackend_Cancel(t *testing.T) {
	mc := mocks.NewMockClient(t)
	ctx := context.Background()
	mc.On("CancelBatch", ctx, "msgbatch_9").Return(&anthropic.BatchResponse{ProcessingStatus: "canceling"}, nil)

	require.NoError(t, NewAnthropicBackend(mc, "m", 100).Cancel(ctx, TaskHandle{ID: "msgbatch_9"}))
}

func TestDiscoveryPrompt(t *testing.T) {
	p, err := DiscoveryPrompt("job-1", model.ResearchQuery{
		Region:   "Central Texas",
		Counties: []string{"Bell", "Williamson"},
		Niches:   []string{"geothermal"},
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", p.JobID)
	assert.NotEmpty(t, p.System)
	assert.Contains(t, p.User, "Find up to 25 HVAC contractors operating in Central Texas (counties: Bell, Williamson).")
	assert.Contains(t, p.User, "Prioritize companies specializing in: geothermal.")
	assert.Contains(t, p.User, "```json")
	assert.NotContains(t, p.User, "Additional guidance")

	_, err = DiscoveryPrompt("job-2", model.ResearchQuery{})
	require.Error(t, err)
}

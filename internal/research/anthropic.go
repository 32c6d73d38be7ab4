package research

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hvac-targets/pkg/anthropic"
)

// AnthropicBackend runs each research task as a single-item Message Batch.
type AnthropicBackend struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicBackend wraps client.
func NewAnthropicBackend(client anthropic.Client, model string, maxTokens int64) *AnthropicBackend {
	if maxTokens <= 0 {
		maxTokens = 16000
	}
	return &AnthropicBackend{client: client, model: model, maxTokens: maxTokens}
}

// CustomID returns the batch item id used for a job.
func CustomID(jobID string) string { return "research-" + jobID }

// Submit creates a one-item batch for the job's prompt.
func (a *AnthropicBackend) Submit(ctx context.Context, p Prompt) (TaskHandle, error) {
	customID := CustomID(p.JobID)
	req := anthropic.SingleBatch(customID, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    p.System,
		Messages:  []anthropic.Message{{Role: "user", Content: p.User}},
	})

	batch, err := a.client.CreateBatch(ctx, req)
	if err != nil {
		return TaskHandle{}, eris.Wrap(err, "research: submit")
	}
	zap.L().Info("research: task submitted",
		zap.String("task_id", batch.ID),
		zap.String("custom_id", customID),
		zap.String("model", a.model),
	)
	return TaskHandle{ID: batch.ID, CustomID: customID}, nil
}

// Status reports the batch's state as a TaskStatus.
func (a *AnthropicBackend) Status(ctx context.Context, h TaskHandle) (TaskStatus, error) {
	batch, err := a.client.GetBatch(ctx, h.ID)
	if err != nil {
		return "", eris.Wrapf(err, "research: status %s", h.ID)
	}
	return mapBatchStatus(batch), nil
}

// mapBatchStatus folds batch processing status and item counts into a
// TaskStatus. An ended batch whose only item did not succeed is failed.
func mapBatchStatus(b *anthropic.BatchResponse) TaskStatus {
	switch b.ProcessingStatus {
	case anthropic.StatusInProgress:
		return TaskRunning
	case anthropic.StatusEnded:
		if b.RequestCounts.Succeeded > 0 {
			return TaskCompleted
		}
		return TaskFailed
	case "":
		return TaskPending
	default:
		return TaskFailed
	}
}

// Result returns the text of the job's succeeded batch item.
func (a *AnthropicBackend) Result(ctx context.Context, h TaskHandle) (string, error) {
	iter, err := a.client.GetBatchResults(ctx, h.ID)
	if err != nil {
		return "", eris.Wrapf(err, "research: results %s", h.ID)
	}
	results, err := anthropic.CollectBatchResults(iter)
	if err != nil {
		return "", eris.Wrapf(err, "research: results %s", h.ID)
	}

	msg, ok := results.Succeeded[h.CustomID]
	if !ok {
		return "", eris.Wrapf(ErrTaskFailed, "research: no successful result for %s", h.CustomID)
	}
	msg.Usage.LogCost(a.model, h.ID)

	text := msg.Text()
	if text == "" {
		return "", eris.Errorf("research: empty result for %s", h.CustomID)
	}
	return text, nil
}

// Cancel asks the API to stop processing the batch.
func (a *AnthropicBackend) Cancel(ctx context.Context, h TaskHandle) error {
	_, err := a.client.CancelBatch(ctx, h.ID)
	return eris.Wrapf(err, "research: cancel %s", h.ID)
}

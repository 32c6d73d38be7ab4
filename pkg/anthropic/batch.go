package anthropic

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BatchFailure records a single failed batch item.
type BatchFailure struct {
	CustomID string
	Type     string // errored, canceled or expired
}

// BatchCollectResult holds both succeeded and failed items from a batch.
type BatchCollectResult struct {
	Succeeded map[string]*MessageResponse
	Failures  []BatchFailure
}

// CollectBatchResults drains iter and returns succeeded results keyed by
// custom id together with the failed items. iter is always closed.
func CollectBatchResults(iter BatchResultIterator) (*BatchCollectResult, error) {
	defer iter.Close() //nolint:errcheck

	result := &BatchCollectResult{
		Succeeded: make(map[string]*MessageResponse),
	}
	for iter.Next() {
		item := iter.Item()
		if item.Type == ResultSucceeded && item.Message != nil {
			result.Succeeded[item.CustomID] = item.Message
			continue
		}
		result.Failures = append(result.Failures, BatchFailure{
			CustomID: item.CustomID,
			Type:     item.Type,
		})
		zap.L().Warn("anthropic: batch item failed",
			zap.String("custom_id", item.CustomID),
			zap.String("type", item.Type),
		)
	}
	if err := iter.Err(); err != nil {
		return nil, eris.Wrap(err, "anthropic: collect batch results")
	}
	return result, nil
}

// Terminal reports whether the batch will not change state again.
func (b *BatchResponse) Terminal() bool {
	return b != nil && b.ProcessingStatus == StatusEnded
}

// SingleBatch builds a batch request with one item.
func SingleBatch(customID string, params MessageRequest) BatchRequest {
	return BatchRequest{Requests: []BatchRequestItem{{CustomID: customID, Params: params}}}
}

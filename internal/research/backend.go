// Package research runs long "deep research" discovery tasks against an
// asynchronous LLM backend: submit once, poll with backoff, collect text.
package research

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// TaskStatus is the lifecycle state of a submitted research task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether the task will not change state again.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// TaskHandle identifies a submitted task.
type TaskHandle struct {
	// ID is the backend's identifier (a message batch id).
	ID string `json:"id"`
	// CustomID ties the task back to the research job.
	CustomID string `json:"custom_id"`
}

// Prompt is the input to one research task.
type Prompt struct {
	JobID  string
	System string
	User   string
}

// Backend is an asynchronous research API.
type Backend interface {
	Submit(ctx context.Context, p Prompt) (TaskHandle, error)
	Status(ctx context.Context, h TaskHandle) (TaskStatus, error)
	Result(ctx context.Context, h TaskHandle) (string, error)
}

// Canceler is implemented by backends that can abandon a task.
type Canceler interface {
	Cancel(ctx context.Context, h TaskHandle) error
}

var (
	// ErrTimeout is returned by Wait when the task outlives PollConfig.Timeout.
	ErrTimeout = eris.New("research: task timed out")
	// ErrTaskFailed is returned by Wait when the backend reports failure.
	ErrTaskFailed = eris.New("research: task failed")
)

// PollConfig controls Wait's backoff.
type PollConfig struct {
	Initial time.Duration
	Max     time.Duration
	Timeout time.Duration
	// OnStatus, when set, observes every polled status.
	OnStatus func(TaskStatus)

	after func(time.Duration) <-chan time.Time
}

// DefaultPollConfig polls after 2s, doubling up to 30s, for at most 20 minutes.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Initial: 2 * time.Second,
		Max:     30 * time.Second,
		Timeout: 20 * time.Minute,
	}
}

func (c PollConfig) withDefaults() PollConfig {
	def := DefaultPollConfig()
	if c.Initial <= 0 {
		c.Initial = def.Initial
	}
	if c.Max <= 0 {
		c.Max = def.Max
	}
	if c.Max < c.Initial {
		c.Max = c.Initial
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.after == nil {
		c.after = time.After
	}
	return c
}

// Wait polls b until the task completes and returns its text. Polling
// failures abort the wait. A task still running at cfg.Timeout is canceled
// when the backend supports it and reported as ErrTimeout; partial output is
// never collected.
func Wait(ctx context.Context, b Backend, h TaskHandle, cfg PollConfig) (string, error) {
	cfg = cfg.withDefaults()
	log := zap.L().With(zap.String("task_id", h.ID), zap.String("custom_id", h.CustomID))

	deadline := time.NewTimer(cfg.Timeout)
	defer deadline.Stop()

	interval := cfg.Initial
	for polls := 1; ; polls++ {
		status, err := b.Status(ctx, h)
		if err != nil {
			return "", eris.Wrapf(err, "research: poll task %s", h.ID)
		}
		if cfg.OnStatus != nil {
			cfg.OnStatus(status)
		}
		log.Debug("research: polled task", zap.String("status", string(status)), zap.Int("polls", polls))

		switch status {
		case TaskCompleted:
			return b.Result(ctx, h)
		case TaskFailed:
			return "", eris.Wrapf(ErrTaskFailed, "research: task %s", h.ID)
		}

		select {
		case <-ctx.Done():
			return "", eris.Wrapf(ctx.Err(), "research: wait for task %s", h.ID)
		case <-deadline.C:
			log.Warn("research: task timed out", zap.Duration("timeout", cfg.Timeout))
			cancelTask(b, h)
			return "", eris.Wrapf(ErrTimeout, "research: task %s after %s", h.ID, cfg.Timeout)
		case <-cfg.after(interval):
		}

		interval *= 2
		if interval > cfg.Max {
			interval = cfg.Max
		}
	}
}

func cancelTask(b Backend, h TaskHandle) {
	c, ok := b.(Canceler)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.Cancel(ctx, h); err != nil {
		zap.L().Warn("research: cancel timed-out task", zap.String("task_id", h.ID), zap.Error(err))
	}
}

// IsTimeout reports whether err came from a Wait timeout.
func IsTimeout(err error) bool { return eris.Is(err, ErrTimeout) }

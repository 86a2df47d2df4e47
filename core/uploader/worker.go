package uploader

import (
	"context"
	"fmt"
	"time"

	"EchoVault/logger"
	"EchoVault/model"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
)

// SingleUploader performs one upload attempt.
type SingleUploader interface {
	Upload(ctx context.Context, item *model.UploadItem, progress func(float64)) (*Result, error)
}

// Worker wraps a SingleUploader with retry and exponential backoff. Terminal
// failures (auth, validation, duplicate) are returned immediately; transient
// ones are retried after 1s, 2s, 4s, ... scaled from the base delay.
type Worker struct {
	client      SingleUploader
	maxAttempts int
	baseDelay   time.Duration
}

// NewWorker creates a retrying worker. Non-positive arguments fall back to
// 3 attempts and a 1s base delay.
func NewWorker(client SingleUploader, maxAttempts int, baseDelay time.Duration) *Worker {
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	return &Worker{client: client, maxAttempts: maxAttempts, baseDelay: baseDelay}
}

// UploadWithRetry uploads the item, retrying transient failures. It returns
// the first success, the first terminal failure, or the last transient error
// once attempts are exhausted.
func (w *Worker) UploadWithRetry(ctx context.Context, item *model.UploadItem, progress func(float64)) (*Result, error) {
	var lastErr error

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		result, err := w.client.Upload(ctx, item, progress)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if IsTerminal(err) {
			logger.Debug("terminal upload failure, not retrying",
				logger.String("itemId", item.ID),
				logger.ErrorField(err))
			return nil, err
		}

		if attempt == w.maxAttempts {
			break
		}

		delay := w.baseDelay << (attempt - 1)
		logger.Warn("upload attempt failed, backing off",
			logger.String("itemId", item.ID),
			logger.Int("attempt", attempt),
			logger.Int("maxAttempts", w.maxAttempts),
			logger.Duration("delay", delay),
			logger.ErrorField(err))

		if err := sleepWithContext(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("upload failed after %d attempts: %w", w.maxAttempts, lastErr)
}

// sleepWithContext waits for the delay or until the context is canceled.
func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("upload canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

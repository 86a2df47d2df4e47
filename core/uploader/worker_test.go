package uploader

import (
	"context"
	"errors"
	"testing"
	"time"

	"EchoVault/model"
)

type scriptedUploader struct {
	errs     []error
	attempts int
}

func (s *scriptedUploader) Upload(_ context.Context, _ *model.UploadItem, _ func(float64)) (*Result, error) {
	s.attempts++
	if s.attempts <= len(s.errs) && s.errs[s.attempts-1] != nil {
		return nil, s.errs[s.attempts-1]
	}
	return &Result{SongID: 7}, nil
}

func TestUploadWithRetry(t *testing.T) {
	transient := errors.New("connection reset by peer")

	tests := []struct {
		name         string
		errs         []error
		maxAttempts  int
		wantAttempts int
		wantErr      bool
		wantSentinel error
	}{
		{
			name:         "first attempt succeeds",
			errs:         nil,
			maxAttempts:  3,
			wantAttempts: 1,
		},
		{
			name:         "transient then success",
			errs:         []error{transient, transient},
			maxAttempts:  3,
			wantAttempts: 3,
		},
		{
			name:         "exhausts attempts",
			errs:         []error{transient, transient, transient},
			maxAttempts:  3,
			wantAttempts: 3,
			wantErr:      true,
		},
		{
			name:         "duplicate fails fast",
			errs:         []error{ErrDuplicate},
			maxAttempts:  3,
			wantAttempts: 1,
			wantErr:      true,
			wantSentinel: ErrDuplicate,
		},
		{
			name:         "auth error fails fast",
			errs:         []error{errors.New("401 unauthorized: bad token")},
			maxAttempts:  3,
			wantAttempts: 1,
			wantErr:      true,
		},
		{
			name:         "validation error fails fast",
			errs:         []error{errors.New("invalid file format")},
			maxAttempts:  3,
			wantAttempts: 1,
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &scriptedUploader{errs: tt.errs}
			w := NewWorker(client, tt.maxAttempts, time.Millisecond)

			item := &model.UploadItem{ID: "it", FilePath: "f.mp3"}
			result, err := w.UploadWithRetry(context.Background(), item, nil)

			if (err != nil) != tt.wantErr {
				t.Fatalf("error: got %v, wantErr %v", err, tt.wantErr)
			}
			if client.attempts != tt.wantAttempts {
				t.Fatalf("attempts: got %d, want %d", client.attempts, tt.wantAttempts)
			}
			if tt.wantSentinel != nil && !errors.Is(err, tt.wantSentinel) {
				t.Fatalf("expected sentinel %v in %v", tt.wantSentinel, err)
			}
			if !tt.wantErr && result == nil {
				t.Fatal("nil result on success")
			}
		})
	}
}

func TestUploadWithRetryBackoffDoubles(t *testing.T) {
	client := &scriptedUploader{errs: []error{
		errors.New("io timeout"),
		errors.New("io timeout"),
		errors.New("io timeout"),
	}}
	base := 40 * time.Millisecond
	w := NewWorker(client, 3, base)

	start := time.Now()
	_, err := w.UploadWithRetry(context.Background(), &model.UploadItem{ID: "it"}, nil)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected failure")
	}
	// Two waits: base and 2*base. Allow scheduling jitter upward only.
	if want := 3 * base; elapsed < want {
		t.Fatalf("elapsed %v shorter than the backoff schedule %v", elapsed, want)
	}
	if tooLong := 10 * base; elapsed > tooLong {
		t.Fatalf("elapsed %v far exceeds the backoff schedule", elapsed)
	}
}

func TestUploadWithRetryHonorsCancellation(t *testing.T) {
	client := &scriptedUploader{errs: []error{errors.New("io timeout")}}
	w := NewWorker(client, 3, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := w.UploadWithRetry(ctx, &model.UploadItem{ID: "it"}, nil)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if time.Since(start) > time.Second {
		t.Fatal("cancellation did not interrupt the backoff sleep")
	}
}

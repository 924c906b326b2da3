package retry

import (
	"context"
	stderr "errors"
	"testing"
	"time"

	"github.com/objectfs/s3vfs/pkg/errors"
)

func fastConfig() Config {
	config := DefaultConfig()
	config.InitialDelay = time.Millisecond
	config.MaxDelay = 5 * time.Millisecond
	config.Jitter = false
	return config
}

func TestRetryer_Success(t *testing.T) {
	attempts := 0
	err := New(fastConfig()).Do(context.Background(), func(context.Context) error {
		attempts++
		return nil
	})
	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryer_TransientErrors(t *testing.T) {
	for _, code := range []errors.ErrorCode{errors.ErrCodeTimeout, errors.ErrCodeNetworkUnreachable} {
		attempts := 0
		err := New(fastConfig()).Do(context.Background(), func(context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.NewError(code, "transient")
			}
			return nil
		})
		if err != nil {
			t.Errorf("%s: expected nil error, got %v", code, err)
		}
		if attempts != 3 {
			t.Errorf("%s: expected 3 attempts, got %d", code, attempts)
		}
	}
}

func TestRetryer_PermanentErrors(t *testing.T) {
	codes := []errors.ErrorCode{
		errors.ErrCodeNotFound,
		errors.ErrCodeAccessDenied,
		errors.ErrCodeAlreadyExists,
		errors.ErrCodeNotSupported,
		errors.ErrCodeCancelled,
	}
	for _, code := range codes {
		attempts := 0
		err := New(fastConfig()).Do(context.Background(), func(context.Context) error {
			attempts++
			return errors.NewError(code, "permanent")
		})
		if !errors.HasCode(err, code) {
			t.Errorf("%s: expected the original error, got %v", code, err)
		}
		if attempts != 1 {
			t.Errorf("%s: expected 1 attempt, got %d", code, attempts)
		}
	}
}

func TestRetryer_PlainErrorsAreNotRetried(t *testing.T) {
	attempts := 0
	_ = New(fastConfig()).Do(context.Background(), func(context.Context) error {
		attempts++
		return stderr.New("boom")
	})
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryer_MaxAttemptsKeepsLastError(t *testing.T) {
	attempts := 0
	err := New(fastConfig()).Do(context.Background(), func(context.Context) error {
		attempts++
		return errors.NewError(errors.ErrCodeTimeout, "slow")
	})
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if !errors.HasCode(err, errors.ErrCodeTimeout) {
		t.Errorf("Expected timeout error, got %v", err)
	}
}

func TestRetryer_ContextCancellation(t *testing.T) {
	config := fastConfig()
	config.InitialDelay = time.Hour
	config.MaxDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	config.OnRetry = func(int, error, time.Duration) { cancel() }

	attempts := 0
	err := New(config).Do(ctx, func(context.Context) error {
		attempts++
		return errors.NewError(errors.ErrCodeTimeout, "slow")
	})
	if !errors.HasCode(err, errors.ErrCodeCancelled) {
		t.Errorf("Expected cancelled error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryer_ExponentialBackoff(t *testing.T) {
	config := DefaultConfig()
	config.InitialDelay = 100 * time.Millisecond
	config.MaxDelay = time.Second
	config.Jitter = false
	r := New(config)

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second}
	for i, w := range want {
		if got := r.calculateDelay(i + 1); got != w {
			t.Errorf("attempt %d: expected %v, got %v", i+1, w, got)
		}
	}
}

func TestRetryer_JitterBounds(t *testing.T) {
	config := DefaultConfig()
	config.InitialDelay = 100 * time.Millisecond
	r := New(config)
	for i := 0; i < 50; i++ {
		d := r.calculateDelay(1)
		if d < 80*time.Millisecond || d > 120*time.Millisecond {
			t.Fatalf("delay %v outside ±20%%", d)
		}
	}
}

func TestRetryer_OnRetryCallback(t *testing.T) {
	var seen []int
	r := New(fastConfig()).WithOnRetry(func(attempt int, _ error, _ time.Duration) {
		seen = append(seen, attempt)
	})
	_ = r.Do(context.Background(), func(context.Context) error {
		return errors.NewError(errors.ErrCodeNetworkUnreachable, "down")
	})
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("Expected callbacks for attempts [1 2], got %v", seen)
	}
}

func TestNew_Defaults(t *testing.T) {
	r := New(Config{})
	if r.config.MaxAttempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", r.config.MaxAttempts)
	}
	if r.config.Multiplier != 2.0 {
		t.Errorf("Expected multiplier 2, got %v", r.config.Multiplier)
	}
}

package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/cloud4rpi-go/internal/infrastructure/config"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts, Interval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestConnectWithRetrySucceedsEventually(t *testing.T) {
	calls := 0
	got, err := ConnectWithRetry(context.Background(), fastPolicy(5), nil, func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("broker down")
		}
		return "conn", nil
	})
	if err != nil {
		t.Fatalf("ConnectWithRetry() error = %v", err)
	}
	if got != "conn" {
		t.Errorf("ConnectWithRetry() = %q, want conn", got)
	}
	if calls != 3 {
		t.Errorf("dial calls = %d, want 3", calls)
	}
}

func TestConnectWithRetryGivesUp(t *testing.T) {
	dialErr := errors.New("broker down")
	calls := 0
	_, err := ConnectWithRetry(context.Background(), fastPolicy(4), nil, func() (int, error) {
		calls++
		return 0, dialErr
	})
	if !errors.Is(err, ErrConnectFailed) {
		t.Errorf("error = %v, want ErrConnectFailed", err)
	}
	if !errors.Is(err, dialErr) {
		t.Errorf("error = %v, want the last dial error wrapped", err)
	}
	if calls != 4 {
		t.Errorf("dial calls = %d, want 4", calls)
	}
}

func TestConnectWithRetryZeroAttemptsTriesOnce(t *testing.T) {
	calls := 0
	_, _ = ConnectWithRetry(context.Background(), fastPolicy(0), nil, func() (int, error) {
		calls++
		return 0, errors.New("down")
	})
	if calls != 1 {
		t.Errorf("dial calls = %d, want 1", calls)
	}
}

func TestConnectWithRetryInvalidTokenNotRetried(t *testing.T) {
	calls := 0
	_, err := ConnectWithRetry(context.Background(), fastPolicy(5), nil, func() (int, error) {
		calls++
		return 0, ValidateToken("bad")
	})
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
	if errors.Is(err, ErrConnectFailed) {
		t.Error("invalid token reported as connection failure")
	}
	if calls != 1 {
		t.Errorf("dial calls = %d, want 1", calls)
	}
}

func TestConnectWithRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{Attempts: 10, Interval: time.Hour}

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := ConnectWithRetry(ctx, policy, nil, func() (int, error) {
			calls++
			return 0, errors.New("down")
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
		if ErrorMessage(err) != "Interrupted" {
			t.Errorf("ErrorMessage() = %q, want Interrupted", ErrorMessage(err))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ConnectWithRetry did not return after cancel")
	}
	if calls != 1 {
		t.Errorf("dial calls = %d, want 1", calls)
	}
}

func TestRetryPolicyNext(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		backoff time.Duration
		want    time.Duration
	}{
		{"grows by half", RetryPolicy{MaxInterval: time.Minute}, 4 * time.Second, 6 * time.Second},
		{"capped", RetryPolicy{MaxInterval: 5 * time.Second}, 4 * time.Second, 5 * time.Second},
		{"no cap means fixed", RetryPolicy{}, 4 * time.Second, 4 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.next(tt.backoff); got != tt.want {
				t.Errorf("next(%v) = %v, want %v", tt.backoff, got, tt.want)
			}
		})
	}
}

func TestRetryPolicyFromConfig(t *testing.T) {
	p := RetryPolicyFromConfig(config.TransportConfig{ConnectAttempts: 3, RetryInterval: 2, MaxRetryInterval: 30})
	want := RetryPolicy{Attempts: 3, Interval: 2 * time.Second, MaxInterval: 30 * time.Second}
	if p != want {
		t.Errorf("RetryPolicyFromConfig() = %+v, want %+v", p, want)
	}

	if d := DefaultRetryPolicy(); d.Attempts != 10 || d.Interval != 5*time.Second {
		t.Errorf("DefaultRetryPolicy() = %+v", d)
	}
}

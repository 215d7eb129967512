// Copyright Acetone Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var errTransient = errors.New("transient")

func retryableTransientOrTimeout(err error) bool {
	return errors.Is(err, errTransient) || errors.Is(err, ErrTimeout)
}

func TestExecuteSucceedsAfterTransientFailures(t *testing.T) {
	p := NewPipeline(Config{
		RetryCount:        3,
		InitialRetryDelay: time.Millisecond,
		MaxRetryDelay:     2 * time.Millisecond,
		IsRetryable:       retryableTransientOrTimeout,
	})

	var calls int32
	result, err := Execute(context.Background(), p, "ResolvePartition", func(context.Context) (string, error) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return "", errTransient
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Fatalf("got %q, want ok", result)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if p.State("ResolvePartition") != Closed {
		t.Fatalf("breaker should remain closed after eventual success")
	}
}

func TestExecuteExhaustsRetriesAndReturnsLastError(t *testing.T) {
	p := NewPipeline(Config{
		RetryCount:        2,
		InitialRetryDelay: time.Millisecond,
		MaxRetryDelay:     time.Millisecond,
		IsRetryable:       retryableTransientOrTimeout,
	})

	var calls int32
	_, err := Execute(context.Background(), p, "ListApplications", func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", errTransient
	})

	if !errors.Is(err, errTransient) {
		t.Fatalf("expected errTransient, got %v", err)
	}
	if calls != 3 { // RetryCount + 1
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestExecutePermanentFaultIsNotRetried(t *testing.T) {
	p := NewPipeline(Config{RetryCount: 5, IsRetryable: retryableTransientOrTimeout})
	errPermanent := errors.New("permanent")

	var calls int32
	_, err := Execute(context.Background(), p, "ListServices", func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", errPermanent
	})

	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("permanent fault must not be retried, got %d calls", calls)
	}
}

func TestBreakerOpensAfterConsecutiveFailuresAndRejectsWithoutCalling(t *testing.T) {
	p := NewPipeline(Config{
		RetryCount:              0,
		BreakerFailureThreshold: 3,
		SamplingDuration:        time.Minute,
		BreakDuration:           time.Hour,
		IsRetryable:             retryableTransientOrTimeout,
	})

	var calls int32
	call := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", errTransient
	}

	for i := 0; i < 3; i++ {
		_, _ = Execute(context.Background(), p, "ResolvePartition", call)
	}
	if p.State("ResolvePartition") != Open {
		t.Fatalf("breaker should be open after 3 consecutive failures")
	}

	before := atomic.LoadInt32(&calls)
	_, err := Execute(context.Background(), p, "ResolvePartition", call)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if atomic.LoadInt32(&calls) != before {
		t.Fatalf("rejected call must not reach fn")
	}
}

func TestBreakerHalfOpenProbeCloses(t *testing.T) {
	p := NewPipeline(Config{
		RetryCount:              0,
		BreakerFailureThreshold: 1,
		SamplingDuration:        time.Minute,
		BreakDuration:           10 * time.Millisecond,
		IsRetryable:             retryableTransientOrTimeout,
	})

	_, _ = Execute(context.Background(), p, "op", func(context.Context) (string, error) {
		return "", errTransient
	})
	if p.State("op") != Open {
		t.Fatalf("expected open after single failure with threshold 1")
	}

	time.Sleep(20 * time.Millisecond)

	result, err := Execute(context.Background(), p, "op", func(context.Context) (string, error) {
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("probe should have been allowed through: %v", err)
	}
	if result != "recovered" {
		t.Fatalf("got %q", result)
	}
	if p.State("op") != Closed {
		t.Fatalf("breaker should close after successful probe")
	}
}

func TestExecuteTimeoutIsRetryable(t *testing.T) {
	p := NewPipeline(Config{
		PerAttemptTimeout: 10 * time.Millisecond,
		RetryCount:        2,
		InitialRetryDelay: time.Millisecond,
		MaxRetryDelay:     time.Millisecond,
		IsRetryable:       retryableTransientOrTimeout,
	})

	var calls int32
	_, err := Execute(context.Background(), p, "op", func(ctx context.Context) (string, error) {
		n := atomic.AddInt32(&calls, 1)
		if n < 2 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestExecuteCancellationIsNotRetried(t *testing.T) {
	p := NewPipeline(Config{RetryCount: 5, IsRetryable: retryableTransientOrTimeout})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	_, err := Execute(ctx, p, "op", func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", context.Canceled
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("canceled call must not be retried, got %d calls", calls)
	}
}

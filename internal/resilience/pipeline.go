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

// Package resilience composes, for every registry call: a per-attempt
// timeout, exponential-backoff retry, and a circuit breaker, with
// observable metrics at each layer. Layers are innermost-first: timeout
// wraps the call and retry wraps timeout. The breaker does not wrap the
// retry loop as a whole: it is consulted before every attempt, retries
// included, and every failed attempt that is not a caller cancellation
// counts toward its failure threshold.
package resilience

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Config holds the pipeline's tunables. Zero-value fields are replaced
// with the documented defaults by NewPipeline.
type Config struct {
	PerAttemptTimeout time.Duration

	RetryCount       int
	InitialRetryDelay time.Duration
	MaxRetryDelay     time.Duration

	BreakerFailureThreshold int
	BreakDuration           time.Duration
	SamplingDuration        time.Duration

	// IsRetryable classifies an error returned by an attempt. If nil,
	// only ErrTimeout is considered retryable; callers that also want
	// registry.ErrTransient retried (the normal production wiring) must
	// supply a classifier — see cmd/acetoned for the wiring.
	IsRetryable func(error) bool

	Recorder Recorder
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.PerAttemptTimeout <= 0 {
		out.PerAttemptTimeout = 5 * time.Second
	}
	if out.RetryCount <= 0 {
		out.RetryCount = 10
	}
	if out.InitialRetryDelay <= 0 {
		out.InitialRetryDelay = 100 * time.Millisecond
	}
	if out.MaxRetryDelay <= 0 {
		out.MaxRetryDelay = 2 * time.Second
	}
	if out.BreakerFailureThreshold <= 0 {
		out.BreakerFailureThreshold = 5
	}
	if out.BreakDuration <= 0 {
		out.BreakDuration = 30 * time.Second
	}
	if out.SamplingDuration <= 0 {
		out.SamplingDuration = 60 * time.Second
	}
	if out.IsRetryable == nil {
		out.IsRetryable = func(err error) bool { return err == ErrTimeout }
	}
	if out.Recorder == nil {
		out.Recorder = nopRecorder{}
	}
	return out
}

// Pipeline wraps registry calls with timeout, retry, and a breaker.
// Breakers are tracked per operation name, so a failing
// ResolvePartition does not trip the breaker guarding ListApplications.
type Pipeline struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*breaker
}

// NewPipeline constructs a Pipeline from cfg, applying defaults to any
// zero-value tunable.
func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{
		cfg:      cfg.withDefaults(),
		breakers: make(map[string]*breaker),
	}
}

func (p *Pipeline) breakerFor(operation string) *breaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.breakers[operation]
	if !ok {
		b = newBreaker(p.cfg.BreakerFailureThreshold, p.cfg.SamplingDuration, p.cfg.BreakDuration)
		p.breakers[operation] = b
	}
	return b
}

// State returns the current breaker state for operation.
func (p *Pipeline) State(operation string) State {
	return p.breakerFor(operation).currentState()
}

// LastStateChange returns the time of the most recent breaker state
// transition for operation, or the zero time if none has occurred.
func (p *Pipeline) LastStateChange(operation string) time.Time {
	return p.breakerFor(operation).lastChange()
}

// Execute runs fn, applying the breaker gate, per-attempt timeout, and
// retry-with-backoff. operation tags the breaker and the metrics
// emitted for this call.
func Execute[T any](ctx context.Context, p *Pipeline, operation string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	b := p.breakerFor(operation)
	rec := p.cfg.Recorder

	rec.ExecutionStarted(operation)

	attempts := p.cfg.RetryCount + 1
	delay := p.cfg.InitialRetryDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		allowed, from, to := b.allow()
		if !allowed {
			rec.CallRejected(operation)
			rec.ExecutionFailed(operation, 0)
			return zero, ErrCircuitOpen
		}
		if from != to {
			rec.BreakerStateChanged(operation, to)
		}

		attemptStart := time.Now()
		result, err := attemptOnce(ctx, p.cfg.PerAttemptTimeout, fn)
		elapsed := time.Since(attemptStart)

		if err == nil {
			if changed, _, to := b.recordSuccess(); changed {
				rec.BreakerStateChanged(operation, to)
			}
			rec.ExecutionSucceeded(operation, elapsed)
			return result, nil
		}

		if ctx.Err() != nil {
			// Caller-initiated cancellation: no retry, no breaker impact.
			rec.ExecutionFailed(operation, elapsed)
			return zero, ctx.Err()
		}

		if !p.cfg.IsRetryable(err) {
			if changed, _, to := b.recordFailure(); changed {
				rec.BreakerStateChanged(operation, to)
			}
			rec.ExecutionFailed(operation, elapsed)
			return zero, err
		}

		if changed, _, to := b.recordFailure(); changed {
			rec.BreakerStateChanged(operation, to)
		}

		if attempt == attempts {
			rec.ExecutionFailed(operation, elapsed)
			return zero, err
		}

		sleep := jitter(delay)
		rec.RetryAttempted(operation, attempt, sleep.Seconds())

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			rec.ExecutionFailed(operation, 0)
			return zero, ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > p.cfg.MaxRetryDelay {
			delay = p.cfg.MaxRetryDelay
		}
	}

	rec.ExecutionFailed(operation, 0)
	return zero, ErrTimeout
}

// attemptOnce runs fn once under timeout, translating a deadline exceeded
// into ErrTimeout (which the retry loop treats as retryable) while
// leaving caller-initiated cancellation of the parent ctx visible as
// ctx.Err().
func attemptOnce[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(attemptCtx)
		done <- outcome{v, err}
	}()

	var zero T
	select {
	case o := <-done:
		if o.err == nil {
			return o.v, nil
		}
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			return zero, ErrTimeout
		}
		return zero, o.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			// fn runs under the same canceled ctx; wait for it to return
			// so a canceled call still makes its single attempt.
			<-done
			return zero, ctx.Err()
		}
		return zero, ErrTimeout
	}
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	// +/- 20% jitter around base, never negative.
	delta := time.Duration(rand.Int63n(int64(base) / 5 * 2))
	return base - time.Duration(int64(base)/5) + delta
}

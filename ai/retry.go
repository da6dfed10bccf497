// Copyright 2025 Poiesic Systems
//
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


package ai

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrInvalidMaxAttempts is returned when a Backoff allows fewer than one attempt.
var ErrInvalidMaxAttempts = errors.New("max attempts must be greater than 0")

// maxBackoffDelay caps the doubling so a long retry chain never stalls a turn
// for minutes.
const maxBackoffDelay = 30 * time.Second

// Backoff retries calls to the model service, doubling Delay after each
// failed attempt.
type Backoff struct {
	Attempts int
	Delay    time.Duration
	Logger   *slog.Logger
}

// Backoff returns the retry policy described by the config.
func (c *Config) Backoff(logger *slog.Logger) Backoff {
	return Backoff{Attempts: c.MaxAttempts, Delay: c.RetryDelay, Logger: logger}
}

// Do runs op until it succeeds, the attempts run out, or ctx ends. The
// error from the last attempt is returned. Cancellation errors returned by
// op are final.
func (b Backoff) Do(ctx context.Context, op func(context.Context) error) error {
	if b.Attempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = op(ctx); err == nil {
			if attempt > 1 {
				logger.Debug("call succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if isCancellation(err) || attempt == b.Attempts {
			return err
		}

		wait := b.delay(attempt)
		logger.Debug("call failed, retrying", "attempt", attempt, "of", b.Attempts, "wait", wait, "err", err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// delay is the pause after the given failed attempt, counting from 1.
func (b Backoff) delay(attempt int) time.Duration {
	d := b.Delay
	for i := 1; i < attempt && d < maxBackoffDelay; i++ {
		d *= 2
	}
	return min(d, maxBackoffDelay)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

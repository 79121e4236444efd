package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// callTimeout bounds a single HTTP round trip to a provider; a task
// cancel still aborts the in-flight request through the parent context.
const callTimeout = 60 * time.Second

// retryPolicy wraps one attempt (one HTTP round trip to a provider) in
// exponential backoff with jitter: base 1s, factor 2, cap 30s, max 5
// attempts.
// Auth failures and malformed-JSON responses are not retryable here —
// both are handled one layer up in translateBatch (auth fails the task
// outright, malformed JSON gets its own single same-size retry).
func retryPolicy() failsafe.Policy[[]Line] {
	return retrypolicy.Builder[[]Line]().
		HandleIf(func(_ []Line, err error) bool {
			return err != nil && IsRetryable(err)
		}).
		WithMaxAttempts(5).
		WithBackoffFactor(time.Second, 30*time.Second, 2.0).
		WithJitter(250 * time.Millisecond).
		Build()
}

// TranslateBatch sends lines to the provider under the retry policy,
// then enforces the 1:1 count/order contract: on a count mismatch it
// retries once with the batch halved recursively, down to K=1 where a
// mismatch is accepted as the sole translation rather than failing the
// task. A malformed/unparseable response follows a distinct, separate
// policy: exactly one retry at the same batch size, then terminal — it
// is never halved.
func TranslateBatch(ctx context.Context, p Provider, lines []Line, systemPrompt string) ([]Line, error) {
	return translateBatch(ctx, p, lines, systemPrompt, true)
}

func translateBatch(ctx context.Context, p Provider, lines []Line, systemPrompt string, allowBadResponseRetry bool) ([]Line, error) {
	if len(lines) == 0 {
		return nil, nil
	}

	result, err := failsafe.Get(func() ([]Line, error) {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		return p.SendBatch(callCtx, lines, systemPrompt)
	}, retryPolicy())
	if err != nil {
		if IsAuthError(err) {
			return nil, err
		}
		if IsBadResponse(err) {
			if !allowBadResponseRetry {
				return nil, err
			}
			return translateBatch(ctx, p, lines, systemPrompt, false)
		}
		if len(lines) == 1 {
			return nil, err
		}
		return halveAndRetry(ctx, p, lines, systemPrompt)
	}

	if len(result) == len(lines) {
		return result, nil
	}
	if len(lines) == 1 {
		return result, nil
	}
	return halveAndRetry(ctx, p, lines, systemPrompt)
}

func halveAndRetry(ctx context.Context, p Provider, lines []Line, systemPrompt string) ([]Line, error) {
	mid := len(lines) / 2
	left, err := TranslateBatch(ctx, p, lines[:mid], systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("llm: halved batch (first half of %d): %w", len(lines), err)
	}
	right, err := TranslateBatch(ctx, p, lines[mid:], systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("llm: halved batch (second half of %d): %w", len(lines), err)
	}
	return append(left, right...), nil
}

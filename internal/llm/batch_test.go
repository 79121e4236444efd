package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBatchProvider struct {
	send func(lines []Line) ([]Line, error)
}

func (f *fakeBatchProvider) Name() string { return "fake" }
func (f *fakeBatchProvider) SendBatch(ctx context.Context, lines []Line, systemPrompt string) ([]Line, error) {
	return f.send(lines)
}
func (f *fakeBatchProvider) Healthcheck(ctx context.Context) error { return nil }

func TestTranslateBatchHappyPath(t *testing.T) {
	p := &fakeBatchProvider{send: func(lines []Line) ([]Line, error) {
		out := make([]Line, len(lines))
		for i, l := range lines {
			out[i] = Line{ID: l.ID, Text: "translated:" + l.Text}
		}
		return out, nil
	}}

	result, err := TranslateBatch(context.Background(), p, []Line{{ID: 0, Text: "a"}, {ID: 1, Text: "b"}}, "sys")
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "translated:a", result[0].Text)
}

func TestTranslateBatchHalvesOnCountMismatch(t *testing.T) {
	calls := 0
	p := &fakeBatchProvider{send: func(lines []Line) ([]Line, error) {
		calls++
		if len(lines) > 1 {
			// simulate a provider that drops a line on batches >1
			return lines[:len(lines)-1], nil
		}
		return lines, nil
	}}

	lines := []Line{{ID: 0, Text: "a"}, {ID: 1, Text: "b"}, {ID: 2, Text: "c"}, {ID: 3, Text: "d"}}
	result, err := TranslateBatch(context.Background(), p, lines, "sys")
	require.NoError(t, err)
	assert.Len(t, result, 4)
	assert.Greater(t, calls, 1)
}

func TestTranslateBatchAcceptsMismatchAtSingleLine(t *testing.T) {
	p := &fakeBatchProvider{send: func(lines []Line) ([]Line, error) {
		return nil, nil // provider returns an empty batch even for one line
	}}

	result, err := TranslateBatch(context.Background(), p, []Line{{ID: 0, Text: "a"}}, "sys")
	require.NoError(t, err)
	assert.Len(t, result, 0)
}

func TestTranslateBatchBadResponseRetriedOnceThenTerminal(t *testing.T) {
	calls := 0
	p := &fakeBatchProvider{send: func(lines []Line) ([]Line, error) {
		calls++
		return nil, &ProviderError{Provider: "fake", Code: CodeBadResponse, Message: "unparseable", Retry: false}
	}}

	_, err := TranslateBatch(context.Background(), p, []Line{{ID: 0, Text: "a"}, {ID: 1, Text: "b"}}, "sys")
	require.Error(t, err)
	assert.Equal(t, 2, calls) // original attempt + exactly one same-size retry, never halved
}

func TestTranslateBatchBadResponseRecoversOnRetry(t *testing.T) {
	calls := 0
	p := &fakeBatchProvider{send: func(lines []Line) ([]Line, error) {
		calls++
		if calls == 1 {
			return nil, &ProviderError{Provider: "fake", Code: CodeBadResponse, Message: "unparseable", Retry: false}
		}
		return lines, nil
	}}

	result, err := TranslateBatch(context.Background(), p, []Line{{ID: 0, Text: "a"}, {ID: 1, Text: "b"}}, "sys")
	require.NoError(t, err)
	assert.Len(t, result, 2)
	assert.Equal(t, 2, calls)
}

func TestTranslateBatchAuthErrorNotRetried(t *testing.T) {
	calls := 0
	p := &fakeBatchProvider{send: func(lines []Line) ([]Line, error) {
		calls++
		return nil, &ProviderError{Provider: "fake", Code: CodeInvalidKey, Message: "bad key", Retry: false}
	}}

	_, err := TranslateBatch(context.Background(), p, []Line{{ID: 0, Text: "a"}, {ID: 1, Text: "b"}}, "sys")
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, 1, calls)
}

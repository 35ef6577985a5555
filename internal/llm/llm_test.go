package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/schemamem/internal/llm"
	"github.com/rcliao/schemamem/internal/llm/llmtest"
)

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain object", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding prose", "Here you go:\n{\"a\": 1}\nThanks", `{"a": 1}`},
		{"nested", `{"a": {"b": "}"}}`, `{"a": {"b": "}"}}`},
		{"escaped quote", `{"t": "say \"hi\" }"}`, `{"t": "say \"hi\" }"}`},
		{"array", "```json\n[1, 2]\n```", `[1, 2]`},
		{"no json", "NO_RELEVANT_DATA", "NO_RELEVANT_DATA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, llm.CleanJSON(tt.input))
		})
	}
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "hello", llm.StripFences("```\nhello\n```"))
	assert.Equal(t, "hello", llm.StripFences("  hello  "))
	assert.Equal(t, `{"a":1}`, llm.StripFences("```json\n{\"a\":1}```"))
}

func TestDecodeJSONWrapsParseError(t *testing.T) {
	var v map[string]any
	err := llm.DecodeJSON("I cannot help with that", &v)
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrParse)

	require.NoError(t, llm.DecodeJSON("```json\n{\"k\": \"v\"}\n```", &v))
	assert.Equal(t, "v", v["k"])
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := llm.New(llm.Config{})
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)

	c, err := llm.New(llm.Config{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.NotNil(t, c)

	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err = llm.NewFromEnv()
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)
}

func TestUnavailable(t *testing.T) {
	_, err := llm.Unavailable{}.Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)

	custom := errors.New("boom")
	_, err = llm.Unavailable{Err: custom}.Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, custom)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	boom := errors.New("upstream down")
	script := llmtest.New().Fail(boom).Fail(boom).Reply("never reached")
	b := llm.NewBreaker(script, llm.BreakerConfig{MaxFailures: 2, Timeout: time.Hour})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := b.Complete(ctx, "s", "u")
		assert.ErrorIs(t, err, boom)
	}

	_, err := b.Complete(ctx, "s", "u")
	assert.ErrorIs(t, err, llm.ErrCircuitOpen)
	assert.Equal(t, "open", b.State())
	assert.Len(t, script.Calls(), 2, "open breaker must not reach the model")
}

func TestBreakerPassesThrough(t *testing.T) {
	b := llm.NewBreaker(llmtest.New("ok"), llm.BreakerConfig{})
	out, err := b.Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, "closed", b.State())
}

func TestLimitedHonorsContext(t *testing.T) {
	script := llmtest.New("first", "second")
	l := llm.NewLimited(script, 0.001)

	out, err := l.Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "first", out)

	// The bucket is empty now; a short deadline must abort the wait.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Complete(ctx, "s", "u")
	assert.Error(t, err)
	assert.Len(t, script.Calls(), 1)
}

func TestScriptedRecordsCalls(t *testing.T) {
	s := llmtest.New("a")
	out, err := s.Complete(context.Background(), "sys", "usr")
	require.NoError(t, err)
	assert.Equal(t, "a", out)

	_, err = s.Complete(context.Background(), "sys", "again")
	assert.Error(t, err)

	calls := s.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "sys", calls[0].System)
	assert.Equal(t, "again", calls[1].User)
	assert.Equal(t, 0, s.Remaining())
}

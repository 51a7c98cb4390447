package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/Kocoro-lab/Meridian/internal/budget"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"fenced json block", "Here you go:\n```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fenced without language", "```\n[1, 2]\n```", "[1, 2]"},
		{"bare object with prose", "Sure! {\"a\": 1} Hope that helps.", `{"a": 1}`},
		{"already clean", `{"a": 1}`, `{"a": 1}`},
		{"no json at all", "no structured content", "no structured content"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ExtractJSON(tc.in))
		})
	}
}

func TestGenerateStructured_RetriesOnMalformedOutput(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		completion := "this is not json"
		if n > 1 {
			completion = `{"value": 42}`
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"completion":    completion,
			"model":         "test-model",
			"input_tokens":  10,
			"output_tokens": 5,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, zap.NewNop())
	var out struct {
		Value int `json:"value"`
	}
	require.NoError(t, c.GenerateStructured(context.Background(), "give me a value", &out))
	require.Equal(t, 42, out.Value)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGenerateStructured_FailsAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"completion": "still not json",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, zap.NewNop())
	var out map[string]interface{}
	err := c.GenerateStructured(context.Background(), "prompt", &out)
	var soErr *StructuredOutputError
	require.ErrorAs(t, err, &soErr)
	require.Equal(t, 2, soErr.Attempts)
}

func TestComplete_RecordsTokenUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"completion":    "done",
			"input_tokens":  120,
			"output_tokens": 30,
		})
	}))
	defer srv.Close()

	b := budget.NewTokenBudget(zap.NewNop())
	b.SetIteration(2)
	c := NewClient(srv.URL, b, zap.NewNop())

	text, tokens, err := c.Complete(context.Background(), "system", "prompt")
	require.NoError(t, err)
	require.Equal(t, "done", text)
	require.Equal(t, 150, tokens)
	require.Equal(t, 150, b.IterationUsed(2))
	require.Equal(t, 150, b.RunUsed())
}

func TestComplete_BudgetRefusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not reach the service when the budget refuses")
	}))
	defer srv.Close()

	b := budget.NewTokenBudget(zap.NewNop(), budget.WithLimits(10, 10))
	c := NewClient(srv.URL, b, zap.NewNop())

	longPrompt := make([]byte, 4000)
	for i := range longPrompt {
		longPrompt[i] = 'x'
	}
	_, _, err := c.Complete(context.Background(), "", string(longPrompt))
	var exceeded *budget.ErrBudgetExceeded
	require.ErrorAs(t, err, &exceeded)
}

func TestComplete_EmptyCompletionIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"completion": ""})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, zap.NewNop())
	_, _, err := c.Complete(context.Background(), "", "prompt")
	require.Error(t, err)
}

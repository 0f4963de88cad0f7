package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonify/anonify/pkg/logger"
)

type stubGenerator struct {
	generate func(ctx context.Context, prompt string) (string, error)
}

func (s stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return s.generate(ctx, prompt)
}

func TestClean(t *testing.T) {
	raw := `1. "What made you think of that today?" || 2) Here are some suggestions || - Suggestion 3: I love how specific that is! || ok || What made you think of that today?`
	got := Clean(raw)
	want := []string{"What made you think of that today?", "I love how specific that is!"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected suggestions (-want +got):\n%s", diff)
	}
}

func TestSuggestUsesModelOutput(t *testing.T) {
	var prompt string
	svc := New(stubGenerator{generate: func(_ context.Context, p string) (string, error) {
		prompt = p
		return "Tell me about your weekend plans!||What's your favourite book lately?||Which city would you move to?", nil
	}}, logger.Discard())

	got := svc.Suggest(context.Background(), "weekend plans")
	assert.Equal(t, []string{
		"Tell me about your weekend plans!",
		"What's your favourite book lately?",
		"Which city would you move to?",
	}, got)
	assert.Contains(t, prompt, `"weekend plans"`)
	assert.Contains(t, prompt, "suggestion1||suggestion2||suggestion3")
}

func TestSuggestFallsBackDeterministically(t *testing.T) {
	svc := New(stubGenerator{generate: func(context.Context, string) (string, error) {
		return "", errors.New("model loading")
	}}, logger.Discard())

	first := svc.Suggest(context.Background(), "I love hiking in the mountains")
	second := New(nil, logger.Discard()).Suggest(context.Background(), "I love hiking in the mountains")

	require.Len(t, first, Count)
	assert.Equal(t, first, second)
	for _, s := range first {
		assert.Contains(t, s, "I love hiking")
	}
}

func TestSuggestTopsUpPartialOutput(t *testing.T) {
	svc := New(stubGenerator{generate: func(context.Context, string) (string, error) {
		return "Only one decent reply here?", nil
	}}, logger.Discard())

	got := svc.Suggest(context.Background(), "hello")
	require.Len(t, got, Count)
	assert.Equal(t, "Only one decent reply here?", got[0])
	assert.NotEqual(t, got[1], got[2])
}

func TestInferenceClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/acme/tiny", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var body inferenceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "prompt", body.Inputs)
		assert.False(t, body.Parameters.ReturnFullText)
		_, _ = w.Write([]byte(`[{"generated_text":"a||b||c"}]`))
	}))
	defer srv.Close()

	client := NewInferenceClient(srv.URL+"/models", "acme/tiny", "key", time.Second)
	text, err := client.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "a||b||c", text)
}

func TestInferenceClientSurfacesUpstreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Model is currently loading"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewInferenceClient(srv.URL, "m", "key", time.Second).Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "503"))
}

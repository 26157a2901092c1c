package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spmagent/internal/config"
	"spmagent/internal/roadmap"
	"spmagent/pkg/circuitbreaker"
)

func sseServer(t *testing.T, chunks []string, stopReason string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		write := func(event string, payload any) {
			b, _ := json.Marshal(payload)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
		}
		write("message_start", map[string]any{
			"type": "message_start",
			"message": map[string]any{
				"id": "msg_1", "type": "message", "role": "assistant", "model": "test",
				"content": []any{}, "stop_reason": nil, "stop_sequence": nil,
				"usage": map[string]any{"input_tokens": 10, "output_tokens": 1},
			},
		})
		write("content_block_start", map[string]any{
			"type": "content_block_start", "index": 0,
			"content_block": map[string]any{"type": "text", "text": ""},
		})
		for _, c := range chunks {
			write("content_block_delta", map[string]any{
				"type": "content_block_delta", "index": 0,
				"delta": map[string]any{"type": "text_delta", "text": c},
			})
		}
		write("content_block_stop", map[string]any{"type": "content_block_stop", "index": 0})
		write("message_delta", map[string]any{
			"type":  "message_delta",
			"delta": map[string]any{"stop_reason": stopReason, "stop_sequence": nil},
			"usage": map[string]any{"output_tokens": 20},
		})
		write("message_stop", map[string]any{"type": "message_stop"})
	}))
}

func testGenerator(url string, breaker circuitbreaker.Config) *AnthropicGenerator {
	cfg := config.GeneratorConfig{
		APIKey:        "test",
		Model:         "test-model",
		MaxTokens:     1024,
		Timeout:       5 * time.Second,
		MaxConcurrent: 1,
		Breaker:       breaker,
	}
	return NewAnthropicGenerator(cfg, zap.NewNop(), option.WithBaseURL(url), option.WithMaxRetries(0))
}

func testRequest() Request {
	return Request{Description: "something to build", PlanningMode: roadmap.ModeOpen, HoursPerDay: 6, Today: roadmap.MustParseDate("2024-01-01")}
}

func TestAnthropicGenerator_StreamsChunks(t *testing.T) {
	var calls atomic.Int32
	body := `{"modules":[{"title":"Core","tasks":[{"title":"Model","estimated_hours":6}]}]}`
	chunks := []string{"```json\n", body[:20], body[20:], "\n```"}
	srv := sseServer(t, chunks, "end_turn", &calls)
	defer srv.Close()

	var got []string
	content, err := testGenerator(srv.URL, circuitbreaker.Config{}).Generate(context.Background(), testRequest(), func(s string) {
		got = append(got, s)
	})
	require.NoError(t, err)
	assert.Equal(t, chunks, got)
	require.Len(t, content.Modules, 1)
	assert.Equal(t, "Core", content.Modules[0].Title)
	assert.Equal(t, 6.0, content.ModuleHours(0))
}

func TestAnthropicGenerator_Truncated(t *testing.T) {
	var calls atomic.Int32
	srv := sseServer(t, []string{`{"modules":[`}, "max_tokens", &calls)
	defer srv.Close()

	_, err := testGenerator(srv.URL, circuitbreaker.Config{}).Generate(context.Background(), testRequest(), nil)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestAnthropicGenerator_UnusableContent(t *testing.T) {
	var calls atomic.Int32
	srv := sseServer(t, []string{`{"modules":[]}`}, "end_turn", &calls)
	defer srv.Close()

	_, err := testGenerator(srv.URL, circuitbreaker.Config{}).Generate(context.Background(), testRequest(), nil)
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestAnthropicGenerator_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"down"}}`))
	}))
	defer srv.Close()

	g := testGenerator(srv.URL, circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Hour})
	for i := 0; i < 2; i++ {
		_, err := g.Generate(context.Background(), testRequest(), nil)
		require.Error(t, err)
	}
	_, err := g.Generate(context.Background(), testRequest(), nil)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitBreakerOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAnthropicGenerator_SlotWaitHonoursContext(t *testing.T) {
	g := testGenerator("http://127.0.0.1:0", circuitbreaker.Config{})
	require.True(t, g.sem.TryAcquire(1))
	defer g.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := g.Generate(ctx, testRequest(), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, strings.Contains(err.Error(), "generator slot"))
}

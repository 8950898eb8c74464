package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/crag-go/internal/llmcall"
)

// scriptedModel returns a fixed reply for every Generate call.
type scriptedModel struct {
	reply string
	err   error
}

func (m *scriptedModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func newTestRouter(t *testing.T, m llmcall.ChatModel) *Router {
	t.Helper()
	caller, err := llmcall.New(m, &llmcall.Config{
		Timeout:        time.Second,
		MaxAttempts:    1,
		InitialBackoff: time.Millisecond,
		RPS:            1000,
		Burst:          1000,
	})
	if err != nil {
		t.Fatalf("llmcall.New: %v", err)
	}
	r, err := New(caller, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		reply string
		want  Route
	}{
		{"vectorstore", `{"route": "vectorstore"}`, RouteVectorStore},
		{"websearch", `{"route": "websearch"}`, RouteWebSearch},
		{"fenced json", "```json\n{\"route\": \"websearch\"}\n```", RouteWebSearch},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := newTestRouter(t, &scriptedModel{reply: tc.reply})
			got, err := r.Classify(context.Background(), "some question")
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if got != tc.want {
				t.Errorf("route = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClassify_MalformedResponse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		reply string
	}{
		{"free text", "I think you should use the vector store for this one."},
		{"unknown label", `{"route": "wikipedia"}`},
		{"empty object", `{}`},
		{"wrong key", `{"source": "websearch"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := newTestRouter(t, &scriptedModel{reply: tc.reply})
			_, err := r.Classify(context.Background(), "some question")
			if err == nil {
				t.Fatal("expected classification error")
			}
			var clsErr *ClassificationError
			if !errors.As(err, &clsErr) {
				t.Fatalf("error = %T, want *ClassificationError", err)
			}
			if clsErr.Raw != tc.reply {
				t.Errorf("raw = %q, want %q", clsErr.Raw, tc.reply)
			}
		})
	}
}

func TestClassify_TransportFailureIsNotClassificationError(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &scriptedModel{err: errors.New("endpoint unreachable")})
	_, err := r.Classify(context.Background(), "some question")
	if err == nil {
		t.Fatal("expected error")
	}
	var clsErr *ClassificationError
	if errors.As(err, &clsErr) {
		t.Error("transport failure should not be a *ClassificationError")
	}
}

func TestParseRoute(t *testing.T) {
	t.Parallel()

	if _, err := ParseRoute("vectorstore"); err != nil {
		t.Errorf("vectorstore: %v", err)
	}
	if _, err := ParseRoute("websearch"); err != nil {
		t.Errorf("websearch: %v", err)
	}
	if _, err := ParseRoute("carrier-pigeon"); err == nil {
		t.Error("expected error for unknown route")
	}
}

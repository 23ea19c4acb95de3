package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// collector gathers callback invocations behind a mutex so the test goroutine
// can inspect them after the stream terminates.
type collector struct {
	mu       sync.Mutex
	deltas   []string
	finished bool
	err      error
	done     chan struct{}
}

func newCollector() *collector {
	return &collector{done: make(chan struct{})}
}

func (c *collector) callbacks() StreamCallbacks {
	return StreamCallbacks{
		OnDelta: func(d string) {
			c.mu.Lock()
			c.deltas = append(c.deltas, d)
			c.mu.Unlock()
		},
		OnFinish: func() {
			c.mu.Lock()
			c.finished = true
			c.mu.Unlock()
			close(c.done)
		},
		OnError: func(err error) {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			close(c.done)
		},
	}
}

func (c *collector) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not terminate")
	}
}

func sseServer(t *testing.T, events ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
			flusher.Flush()
		}
	}))
}

func chunk(content string) string {
	return fmt.Sprintf(`{"choices":[{"delta":{"content":%q}}]}`, content)
}

func TestStreamCompletion_DeliversDeltas(t *testing.T) {
	srv := sseServer(t, chunk("Hello"), chunk(" wor"), chunk("ld"), "[DONE]")
	defer srv.Close()

	c := NewClient()
	col := newCollector()
	c.StreamCompletion([]ChatMessage{{Role: "user", Content: "hi"}}, "sk-test", col.callbacks(), "deepseek-chat", srv.URL)
	col.wait(t)

	if !col.finished {
		t.Fatalf("expected OnFinish, got err=%v", col.err)
	}
	want := []string{"Hello", " wor", "ld"}
	if len(col.deltas) != len(want) {
		t.Fatalf("expected %d deltas, got %v", len(want), col.deltas)
	}
	for i, d := range want {
		if col.deltas[i] != d {
			t.Errorf("delta %d: expected %q, got %q", i, d, col.deltas[i])
		}
	}
}

func TestStreamCompletion_SkipsMalformedEvents(t *testing.T) {
	srv := sseServer(t, chunk("a"), `{"choices":[{"delta":`, "not json at all", chunk("b"), "[DONE]")
	defer srv.Close()

	c := NewClient()
	col := newCollector()
	c.StreamCompletion(nil, "sk-test", col.callbacks(), "deepseek-chat", srv.URL)
	col.wait(t)

	if !col.finished {
		t.Fatalf("malformed events must not be fatal, got err=%v", col.err)
	}
	if len(col.deltas) != 2 || col.deltas[0] != "a" || col.deltas[1] != "b" {
		t.Errorf("expected deltas [a b], got %v", col.deltas)
	}
}

func TestStreamCompletion_HTTPError(t *testing.T) {
	for _, status := range []int{401, 402, 500} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", status)
		}))

		c := NewClient()
		col := newCollector()
		c.StreamCompletion(nil, "sk-test", col.callbacks(), "deepseek-chat", srv.URL)
		col.wait(t)
		srv.Close()

		if col.err == nil {
			t.Fatalf("status %d: expected OnError", status)
		}
		if got := StatusCode(col.err); got != status {
			t.Errorf("expected status %d in error, got %d (%v)", status, got, col.err)
		}
		if len(col.deltas) != 0 {
			t.Errorf("status %d: expected no deltas, got %v", status, col.deltas)
		}
	}
}

func TestStreamCompletion_CancelSuppressesCallbacks(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "data: %s\n\n", chunk("x"))
		flusher.Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient()
	col := newCollector()
	cancel := c.StreamCompletion(nil, "sk-test", col.callbacks(), "deepseek-chat", srv.URL)

	// Wait for the first delta, then abort mid-stream.
	deadline := time.Now().Add(2 * time.Second)
	for {
		col.mu.Lock()
		n := len(col.deltas)
		col.mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-col.done:
		t.Fatal("no terminal callback may fire after cancellation")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestVerifyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") == "Bearer sk-good" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient()
	ok, err := c.VerifyKey(context.Background(), "sk-good", srv.URL)
	if err != nil || !ok {
		t.Errorf("expected valid key, got ok=%v err=%v", ok, err)
	}
	ok, err = c.VerifyKey(context.Background(), "sk-bad", srv.URL)
	if err != nil || ok {
		t.Errorf("expected invalid key, got ok=%v err=%v", ok, err)
	}
}

package events

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe("c")
	defer b.Unsubscribe(sub)

	for i := 0; i < subscriberBufSize+5; i++ {
		b.Publish(Event{Canvas: "c", Kind: KindExport, Payload: "{}"})
	}
	if got := len(sub.C); got != subscriberBufSize {
		t.Fatalf("buffered = %d; want %d", got, subscriberBufSize)
	}
	if got := sub.Dropped(); got != 5 {
		t.Fatalf("sub.Dropped() = %d; want 5", got)
	}
	st := b.Stats()
	if st.Dropped != 5 || st.Published != subscriberBufSize+5 || st.Clients != 1 {
		t.Fatalf("Stats() = %+v", st)
	}
}

func TestPublishRoutesByCanvas(t *testing.T) {
	b := NewBroker()
	a := b.Subscribe("a")
	all := b.Subscribe("")
	defer b.Unsubscribe(a)
	defer b.Unsubscribe(all)

	if n := b.Publish(Event{Canvas: "b", Kind: KindExport}); n != 1 {
		t.Fatalf("Publish(b) delivered to %d; want 1", n)
	}
	if n := b.Publish(Event{Canvas: "a", Kind: KindExport}); n != 2 {
		t.Fatalf("Publish(a) delivered to %d; want 2", n)
	}
	if len(a.C) != 1 || len(all.C) != 2 {
		t.Fatalf("buffered a=%d all=%d; want 1 and 2", len(a.C), len(all.C))
	}
}

func TestCloseCanvasEndsScopedSubscriptions(t *testing.T) {
	b := NewBroker()
	a := b.Subscribe("a")
	other := b.Subscribe("b")
	all := b.Subscribe("")
	defer b.Unsubscribe(other)
	defer b.Unsubscribe(all)

	b.CloseCanvas("a", `{"canvas_id":"a"}`)

	evt, ok := <-a.C
	if !ok || evt.Kind != KindClosed {
		t.Fatalf("first event = %+v, %v; want closed", evt, ok)
	}
	if _, ok := <-a.C; ok {
		t.Fatal("subscription still open after CloseCanvas()")
	}
	if len(other.C) != 0 {
		t.Fatalf("other canvas got %d events", len(other.C))
	}
	if evt := <-all.C; evt.Kind != KindClosed || evt.Canvas != "a" {
		t.Fatalf("wildcard event = %+v; want closed for a", evt)
	}
	if got := b.Stats().Clients; got != 2 {
		t.Fatalf("Clients = %d; want 2", got)
	}

	// Unsubscribe after teardown is a no-op.
	b.Unsubscribe(a)
}

func TestSSEHandlerFiltersByCanvas(t *testing.T) {
	b := NewBroker()
	h := SSEHandler(b, func(r *http.Request) string { return r.URL.Query().Get("canvas") })
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?canvas=a&kinds=export", nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	// The ready event is written after subscribing.
	reader := bufio.NewReader(resp.Body)
	if line, err := reader.ReadString('\n'); err != nil || strings.TrimSpace(line) != "event: ready" {
		t.Fatalf("first line = %q, %v; want ready event", line, err)
	}
	b.Publish(Event{Canvas: "b", Kind: KindExport, Payload: `{"seq":1}`})
	b.Publish(Event{Canvas: "a", Kind: KindAnalysis, Payload: `{}`})
	b.Publish(Event{Canvas: "a", Kind: KindExport, Payload: `{"seq":2}`})
	b.CloseCanvas("a", `{"canvas_id":"a"}`)

	lines := []string{"event: ready"}
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	want := []string{
		"event: ready", `data: {"canvas_id":"a"}`,
		"event: export", `data: {"seq":2}`,
		"event: closed", `data: {"canvas_id":"a"}`,
	}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Fatalf("stream = %q; want %q", lines, want)
	}
}

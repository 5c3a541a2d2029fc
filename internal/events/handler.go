package events

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// KeepAlive is the interval between SSE comment pings on an idle stream.
var KeepAlive = 15 * time.Second

type sseWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (s sseWriter) event(kind, data string) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", kind, data); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

func (s sseWriter) ping() error {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// SSEHandler streams the events of the canvas named by canvasID(r) until the
// client leaves or the canvas closes. The stream opens with a ready event.
// ?kinds=export,analysis narrows the kinds; closed is always sent.
func SSEHandler(broker *Broker, canvasID func(*http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}
		canvas := canvasID(r)
		kinds := map[string]bool{}
		for _, k := range strings.Split(r.URL.Query().Get("kinds"), ",") {
			if k = strings.TrimSpace(k); k != "" {
				kinds[k] = true
			}
		}

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")

		sub := broker.Subscribe(canvas)
		defer broker.Unsubscribe(sub)

		out := sseWriter{w: w, f: f}
		if err := out.event("ready", fmt.Sprintf(`{"canvas_id":%q}`, canvas)); err != nil {
			return
		}

		tick := time.NewTicker(KeepAlive)
		defer tick.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-tick.C:
				if err := out.ping(); err != nil {
					return
				}
			case evt, ok := <-sub.C:
				if !ok {
					return
				}
				if len(kinds) > 0 && !kinds[evt.Kind] && evt.Kind != KindClosed {
					continue
				}
				if err := out.event(evt.Kind, evt.Payload); err != nil {
					return
				}
			}
		}
	}
}

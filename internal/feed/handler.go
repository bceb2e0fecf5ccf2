package feed

import (
	"fmt"
	"net/http"
	"strings"
)

// SSEHandler streams broker events. Clients may filter with
// ?kinds=series,point. When initial is non-nil its events are written
// before live updates.
func SSEHandler(broker *Broker, initial func() []Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		var kinds []string
		if q := r.URL.Query().Get("kinds"); q != "" {
			kinds = strings.Split(q, ",")
		}
		filter := KindSet(kinds...)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, ch := broker.Subscribe(kinds...)
		defer broker.Unsubscribe(id)

		if initial != nil {
			for _, evt := range initial() {
				if filter == nil || filter[evt.Kind] {
					writeEvent(w, evt)
				}
			}
		}
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				writeEvent(w, evt)
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, evt Event) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind, evt.Data)
}

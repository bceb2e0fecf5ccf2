package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// EventKind names a user or network action handled by the dashboard.
type EventKind string

const (
	EventUpload        EventKind = "upload"
	EventPaste         EventKind = "paste"
	EventAnalyze       EventKind = "analyze"
	EventConnect       EventKind = "connect"
	EventDisconnect    EventKind = "disconnect"
	EventSend          EventKind = "send"
	EventSaveSession   EventKind = "save_session"
	EventLoadSession   EventKind = "load_session"
	EventSetThreshold  EventKind = "set_threshold"
	EventSelectChannel EventKind = "select_channel"
	EventSetSmoothing  EventKind = "set_smoothing"
	EventPreview       EventKind = "preview"
	EventExport        EventKind = "export"
)

type handler func(ctx context.Context, payload json.RawMessage) (any, error)

// register adapts a typed operation into a dispatch handler that decodes
// its payload strictly.
func register[In, Out any](d *Dashboard, kind EventKind, op func(context.Context, In) (Out, error)) {
	d.handlers[kind] = func(ctx context.Context, payload json.RawMessage) (any, error) {
		var in In
		if trimmed := bytes.TrimSpace(payload); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
			dec := json.NewDecoder(bytes.NewReader(trimmed))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&in); err != nil {
				return nil, d.fail(newError(CodeValidation, fmt.Sprintf("invalid %s payload", kind), err))
			}
		}
		return op(ctx, in)
	}
}

func (d *Dashboard) registerHandlers() {
	d.handlers = make(map[EventKind]handler)
	register(d, EventUpload, d.Upload)
	register(d, EventPaste, d.Paste)
	register(d, EventAnalyze, d.Analyze)
	register(d, EventConnect, d.Connect)
	register(d, EventDisconnect, d.Disconnect)
	register(d, EventSend, d.Send)
	register(d, EventSaveSession, d.SaveSession)
	register(d, EventLoadSession, d.LoadSession)
	register(d, EventSetThreshold, d.SetThreshold)
	register(d, EventSelectChannel, d.SelectChannel)
	register(d, EventSetSmoothing, d.SetSmoothing)
	register(d, EventPreview, d.Preview)
	register(d, EventExport, d.Export)
}

// Kinds lists the registered event kinds in sorted order.
func (d *Dashboard) Kinds() []EventKind {
	kinds := make([]EventKind, 0, len(d.handlers))
	for k := range d.handlers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Dispatch runs the handler registered for kind with a JSON payload.
func (d *Dashboard) Dispatch(ctx context.Context, kind EventKind, payload json.RawMessage) (any, error) {
	h, ok := d.handlers[kind]
	if !ok {
		err := d.fail(newError(CodeValidation, fmt.Sprintf("unknown event kind %q", kind), nil))
		d.cfg.Observer.CountEvent(string(kind), ErrorCode(err))
		return nil, err
	}
	out, err := h(ctx, payload)
	if err != nil {
		var ce *CodedError
		if !errors.As(err, &ce) {
			err = newError(CodeInternal, string(kind)+" failed", err)
		}
		d.cfg.Observer.CountEvent(string(kind), ErrorCode(err))
		return nil, err
	}
	d.cfg.Observer.CountEvent(string(kind), "ok")
	return out, nil
}

package audit

import (
	"context"
	"time"
)

type requestContextKey struct{}

// Request is the per-request data the dispatcher copies onto events that do
// not set it themselves.
type Request struct {
	IP       string
	Path     string
	TenantID string
	KeyID    string
}

// WithRequest merges the non-empty fields of req into the request data
// already carried by ctx.
func WithRequest(ctx context.Context, req Request) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	cur := RequestFromContext(ctx)
	if req.IP != "" {
		cur.IP = req.IP
	}
	if req.Path != "" {
		cur.Path = req.Path
	}
	if req.TenantID != "" {
		cur.TenantID = req.TenantID
	}
	if req.KeyID != "" {
		cur.KeyID = req.KeyID
	}
	return context.WithValue(ctx, requestContextKey{}, cur)
}

// RequestFromContext returns the request data attached by [WithRequest].
func RequestFromContext(ctx context.Context) Request {
	if ctx == nil {
		return Request{}
	}
	req, _ := ctx.Value(requestContextKey{}).(Request)
	return req
}

// metadataKeyID is promoted from Metadata to Event.KeyID. Flows that only
// learn the key id mid-operation report it this way.
const metadataKeyID = "key_id"

func enrich(ctx context.Context, event Event, now func() time.Time) Event {
	if event.Timestamp.IsZero() && now != nil {
		event.Timestamp = now()
	}

	req := RequestFromContext(ctx)
	if event.IP == "" {
		event.IP = req.IP
	}
	if event.Path == "" {
		event.Path = req.Path
	}
	if event.TenantID == "" {
		event.TenantID = req.TenantID
	}

	if keyID, ok := event.Metadata[metadataKeyID]; ok {
		meta := make(map[string]string, len(event.Metadata)-1)
		for k, v := range event.Metadata {
			if k != metadataKeyID {
				meta[k] = v
			}
		}
		if len(meta) == 0 {
			meta = nil
		}
		event.Metadata = meta
		if event.KeyID == "" {
			event.KeyID = keyID
		}
	}
	if event.KeyID == "" {
		event.KeyID = req.KeyID
	}
	return event
}

package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5/middleware"
)

const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "Idempotent-Replayed"

	maxKeyLength  = 255
	maxBodyBuffer = 1 << 20
)

// CallerFunc names the caller a request belongs to. Keys are only shared
// between requests of the same caller.
type CallerFunc func(r *http.Request) string

// Middleware deduplicates requests carrying an Idempotency-Key header.
// Successful responses are stored and replayed; failures release the key.
// Requests without the header pass through untouched. When Redis is
// unavailable the request is served without deduplication. Bodies over 1 MiB
// are rejected with 413. A nil caller shares keys across all callers.
func Middleware(store *Store, scope string, caller CallerFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	log := logger.With("component", "idempotency")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idemKey := r.Header.Get(HeaderKey)
			if idemKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			requestID := middleware.GetReqID(ctx)

			if len(idemKey) > maxKeyLength {
				writeError(w, http.StatusBadRequest, "Idempotency-Key too long")
				return
			}

			if r.ContentLength > maxBodyBuffer {
				writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}
			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBuffer+1))
			if err != nil {
				writeError(w, http.StatusBadRequest, "Failed to read request body")
				return
			}
			if len(body) > maxBodyBuffer {
				writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			keyScope := scope
			if caller != nil {
				if id := caller(r); id != "" {
					keyScope = scope + ":" + url.QueryEscape(id)
				}
			}
			key := store.Key(keyScope, idemKey)
			fp := Fingerprint(r.Method, r.URL.Path, body)

			existing, owned, err := store.Reserve(ctx, key, fp)
			if err != nil {
				log.WarnContext(ctx, "Idempotency store unavailable, serving without deduplication",
					"error", err, "request_id", requestID)
				next.ServeHTTP(w, r)
				return
			}
			if !owned {
				replay(w, existing, fp)
				log.InfoContext(ctx, "Idempotent request short-circuited",
					"key", idemKey, "completed", existing.Completed(), "request_id", requestID)
				return
			}

			var captured bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&captured)
			next.ServeHTTP(ww, r)

			// The client may be gone; the outcome must still be recorded.
			storeCtx := context.WithoutCancel(ctx)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= 200 && status < 300 {
				rec := Record{
					Fingerprint: fp,
					Status:      status,
					ContentType: ww.Header().Get("Content-Type"),
					Body:        captured.Bytes(),
				}
				if err := store.Complete(storeCtx, key, rec); err != nil {
					log.ErrorContext(ctx, "Failed to store idempotent response", "error", err, "request_id", requestID)
				}
				return
			}
			if err := store.Release(storeCtx, key); err != nil {
				log.ErrorContext(ctx, "Failed to release idempotency key", "error", err, "request_id", requestID)
			}
		})
	}
}

func replay(w http.ResponseWriter, rec Record, fp string) {
	switch {
	case rec.Fingerprint != fp:
		writeError(w, http.StatusUnprocessableEntity, "Idempotency-Key reused with a different request")
	case !rec.Completed():
		writeError(w, http.StatusConflict, "A request with this Idempotency-Key is in progress")
	default:
		if rec.ContentType != "" {
			w.Header().Set("Content-Type", rec.ContentType)
		}
		w.Header().Set(HeaderReplayed, "true")
		w.WriteHeader(rec.Status)
		_, _ = w.Write(rec.Body)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

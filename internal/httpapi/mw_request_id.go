package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
)

type ctxKey int

const requestIDKey ctxKey = 1

// A request id is 8 hex characters: enough to correlate a request's log
// lines without pretending to be globally unique.
const requestIDLen = 8

func newRequestID() string {
	var b [requestIDLen / 2]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// RequestID tags every request with an id (reusing a caller-supplied
// X-Request-ID of the right length), echoes it in the response header, and
// threads it through the request context for AccessLog to pick up.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if len(rid) != requestIDLen {
			rid = newRequestID()
		}
		w.Header().Set("X-Request-ID", rid)
		ctx := context.WithValue(r.Context(), requestIDKey, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID reads back the id RequestID attached to ctx, or "" if the
// request never passed through the middleware.
func GetRequestID(ctx context.Context) string {
	rid, _ := ctx.Value(requestIDKey).(string)
	return rid
}

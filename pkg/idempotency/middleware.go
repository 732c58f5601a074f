package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

const (
	// HeaderKey carries the client chosen idempotency key.
	HeaderKey = "Idempotency-Key"
	// HeaderReplay is set on replayed responses.
	HeaderReplay = "Idempotent-Replayed"
)

// MaxBodyBytes bounds the request body buffered for fingerprinting.
const MaxBodyBytes = 1 << 20

// Middleware replays the stored response of a request whose
// Idempotency-Key was already used. Requests without the header pass
// through. Server errors release the key so the client may retry.
func Middleware(store Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HeaderKey))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			lg := zctx.From(ctx).With(zap.String("idempotency_key", key))

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
					return
				}
				writeError(w, http.StatusBadRequest, "unable to read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			state, rec, err := store.Reserve(ctx, key, fingerprint(r, body))
			switch {
			case errors.Is(err, ErrFingerprintMismatch):
				writeError(w, http.StatusUnprocessableEntity, err.Error())
				return
			case err != nil:
				lg.Error("Reserve idempotency key", zap.Error(err))
				writeError(w, http.StatusServiceUnavailable, "idempotency store unavailable")
				return
			}

			switch state {
			case ReservationCompleted:
				if rec.ContentType != "" {
					w.Header().Set("Content-Type", rec.ContentType)
				}
				w.Header().Set(HeaderReplay, "true")
				w.WriteHeader(rec.Code)
				_, _ = w.Write(rec.Body)
				return
			case ReservationPending:
				writeError(w, http.StatusConflict, "another request is processing this idempotency key")
				return
			}

			rr := &recorder{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rr, r)

			if rr.code >= http.StatusInternalServerError {
				if err := store.Release(ctx, key); err != nil {
					lg.Warn("Release idempotency key", zap.Error(err))
				}
				return
			}
			if err := store.Save(ctx, key, Record{
				Fingerprint: fingerprint(r, body),
				Code:        rr.code,
				ContentType: rr.Header().Get("Content-Type"),
				Body:        rr.body.Bytes(),
			}); err != nil {
				lg.Warn("Save idempotent response", zap.Error(err))
			}
		})
	}
}

func fingerprint(r *http.Request, body []byte) string {
	h := sha256.New()
	_, _ = io.WriteString(h, r.Method)
	_, _ = io.WriteString(h, " ")
	_, _ = io.WriteString(h, r.URL.Path)
	_, _ = io.WriteString(h, "\n")
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// recorder passes the response through while keeping a copy of it.
type recorder struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.code = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// writeError writes the {"code","message"} body shared with the API handlers.
func writeError(w http.ResponseWriter, code int, msg string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(code) })
		e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const idempotencyTTL = 24 * time.Hour

// idempotent rejects a repeated Idempotency-Key from the same account. The
// key is released again when the request does not succeed, so a failed
// request can be retried with the same key. Requests without the header pass
// through.
func (s *Server) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(IdempotencyHeader)
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := uuid.Parse(header)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid_idempotency_key", "Idempotency-Key must be a UUID")
			return
		}

		key := fmt.Sprintf("idem:%s:%s", caller(r), id)
		ok, err := s.cfg.Flags.SetNX(r.Context(), key, idempotencyTTL)
		if err != nil {
			s.log.Error("api: idempotency store failed", "error", err)
			s.writeError(w, http.StatusServiceUnavailable, "unavailable", "idempotency store unavailable")
			return
		}
		if !ok {
			s.writeError(w, http.StatusConflict, "duplicate_request", "request with this Idempotency-Key was already processed")
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if ww.Status() >= http.StatusBadRequest {
			if err := s.cfg.Flags.Delete(r.Context(), key); err != nil {
				s.log.Warn("api: failed to release idempotency key", "key", key, "error", err)
			}
		}
	})
}

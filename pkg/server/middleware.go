package server

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/raterudder/chargeplan/pkg/log"
)

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware tags every request and its logger with an ID. A valid
// UUID sent by the client is kept so requests can be traced across a proxy.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := log.WithAttrs(r.Context(), slog.String("requestID", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}

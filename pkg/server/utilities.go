package server

import (
	"net/http"

	"github.com/raterudder/chargeplan/pkg/utility"
)

func (s *Server) handleListUtilities(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, utility.ListUtilities())
}

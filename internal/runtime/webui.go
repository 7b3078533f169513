package runtime

import (
	"net/http"
	"strings"

	"github.com/drblury/callflow/internal/runtime/correlation"
	jsoncodec "github.com/drblury/callflow/internal/runtime/jsoncodec"
)

const defaultWebUIPort = 8081

// PendingView is served by /api/pending.
type PendingView struct {
	Subscriptions []ResponseSubscriptionInfo `json:"subscriptions"`
	Calls         []correlation.Entry        `json:"calls"`
}

func (s *Service) registerWebUI() {
	if !s.Conf.WebUIEnabled {
		return
	}

	port := s.Conf.WebUIPort
	if port == 0 {
		port = defaultWebUIPort
	}

	s.RegisterHTTPHandler(port, "/api/handlers", http.HandlerFunc(s.handleGetHandlers))
	s.RegisterHTTPHandler(port, "/api/pending", http.HandlerFunc(s.handleGetPending))
}

func (s *Service) handleGetHandlers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, s.Handlers())
}

func (s *Service) handleGetPending(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, PendingView{
		Subscriptions: s.ResponseTopics(),
		Calls:         s.pending.Snapshot(),
	})
}

func (s *Service) writeJSON(w http.ResponseWriter, r *http.Request, body any) {
	w.Header().Set("Content-Type", "application/json")

	if len(s.Conf.WebUICORSAllowedOrigins) > 0 {
		if allowedOrigin := s.getAllowedCORSOrigin(r.Header.Get("Origin")); allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
	}

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet, http.MethodHead:
	default:
		w.Header().Set("Allow", "GET, OPTIONS")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := jsoncodec.Encode(w, body); err != nil {
		s.Logger.Error("Failed to encode introspection response", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// getAllowedCORSOrigin returns the Access-Control-Allow-Origin value for
// requestOrigin, or "" when it is not allowed.
func (s *Service) getAllowedCORSOrigin(requestOrigin string) string {
	for _, allowed := range s.Conf.WebUICORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}

package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/jrsteele09/go-integration-hub/drive"
	"github.com/jrsteele09/go-integration-hub/governor"
	apperrors "github.com/jrsteele09/go-integration-hub/internal/errors"
	"github.com/jrsteele09/go-integration-hub/sessions"
)

// HealthHandler reports liveness together with the governor counters.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"integration": s.services.Registry.Integration(),
			"governor":    s.services.Governor.Stats(),
		})
	}
}

// CompaniesHandler lists tenants with a session. ?connected=true limits the
// list to connected tenants.
func (s *Server) CompaniesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connectedOnly, _ := strconv.ParseBool(r.URL.Query().Get("connected"))
		var companies []sessions.Company
		if connectedOnly {
			companies = s.services.Registry.ConnectedCompanies()
		} else {
			companies = s.services.Registry.AllCompanies()
		}
		writeJSON(w, http.StatusOK, map[string]any{"companies": companies})
	}
}

func (s *Server) CompanyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := s.services.Registry.GetSession(r.PathValue("tenantID"))
		if session == nil {
			writeJSONError(w, "not_found", "no session for tenant", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

// ConnectHandler redirects the browser to the integration's consent page.
func (s *Server) ConnectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.services.Connector == nil {
			writeJSONError(w, "unavailable", "connect flow is not configured", http.StatusServiceUnavailable)
			return
		}
		authURL, err := s.services.Connector.AuthURL(r.Context(), r.PathValue("tenantID"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// CallbackHandler completes the connect flow with the code the authorization
// server sent back.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.services.Connector == nil {
			writeJSONError(w, "unavailable", "connect flow is not configured", http.StatusServiceUnavailable)
			return
		}
		q := r.URL.Query()
		if reason := q.Get("error"); reason != "" {
			writeJSONError(w, "access_denied", reason, http.StatusBadRequest)
			return
		}

		session, err := s.services.Connector.Complete(r.Context(), q.Get("state"), q.Get("code"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.services.Registry.RefreshToken(r.Context(), r.PathValue("tenantID"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

// DisconnectHandler clears the tenant's tokens. With ?revoke=true the stored
// credential is marked disconnected as well.
func (s *Server) DisconnectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.PathValue("tenantID")
		revoke, _ := strconv.ParseBool(r.URL.Query().Get("revoke"))

		var err error
		if revoke {
			err = s.services.Registry.Revoke(r.Context(), tenantID)
		} else {
			err = s.services.Registry.Disconnect(tenantID)
		}
		if err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) DisconnectAllHandler() http.HandlerFunc {
	type result struct {
		TenantID string `json:"tenant_id"`
		Error    string `json:"error,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		results := s.services.Registry.DisconnectAll()
		out := make([]result, 0, len(results))
		for _, res := range results {
			item := result{TenantID: res.TenantID}
			if res.Err != nil {
				item.Error = res.Err.Error()
			}
			out = append(out, item)
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": out})
	}
}

func (s *Server) ListFilesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.services.Drive == nil {
			writeJSONError(w, "unavailable", "drive is not configured", http.StatusServiceUnavailable)
			return
		}
		files, err := s.services.Drive.ListFiles(r.Context(), r.PathValue("tenantID"), r.URL.Query().Get("folder"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"files": files})
	}
}

func (s *Server) CreateFolderHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.services.Drive == nil {
			writeJSONError(w, "unavailable", "drive is not configured", http.StatusServiceUnavailable)
			return
		}
		var req struct {
			Name   string `json:"name"`
			Parent string `json:"parent"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil || req.Name == "" {
			writeJSONError(w, "invalid_request", "body must be JSON with a name", http.StatusBadRequest)
			return
		}
		folder, err := s.services.Drive.CreateFolder(r.Context(), r.PathValue("tenantID"), req.Name, req.Parent)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, folder)
	}
}

// writeError maps domain errors onto HTTP responses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var apiErr *drive.APIError
	switch {
	case apperrors.Is(err, apperrors.ErrNoSession), apperrors.Is(err, apperrors.ErrNotFound):
		writeJSONError(w, "not_found", err.Error(), http.StatusNotFound)
	case apperrors.Is(err, apperrors.ErrInvalidState):
		writeJSONError(w, "invalid_state", err.Error(), http.StatusBadRequest)
	case apperrors.Is(err, apperrors.ErrNoRefreshToken), apperrors.Is(err, apperrors.ErrCredentialInactive):
		writeJSONError(w, "conflict", err.Error(), http.StatusConflict)
	case apperrors.Is(err, apperrors.ErrConfiguration), apperrors.Is(err, apperrors.ErrNoOAuthClient):
		writeJSONError(w, "configuration_error", err.Error(), http.StatusUnprocessableEntity)
	case apperrors.Is(err, governor.ErrClosed):
		writeJSONError(w, "unavailable", err.Error(), http.StatusServiceUnavailable)
	case apperrors.As(err, &apiErr), governor.IsTransient(err):
		writeJSONError(w, "upstream_error", err.Error(), http.StatusBadGateway)
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeJSONError(w, "internal_error", "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes an OAuth2 style error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ideapedyudi/tabby/internal/profile"
	"github.com/ideapedyudi/tabby/internal/recovery"
	"github.com/ideapedyudi/tabby/internal/tab"
	"github.com/ideapedyudi/tabby/internal/workspace"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type tabResponse struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	State            string          `json:"state"`
	Profile          profile.Profile `json:"profile"`
	ReconnectOffered bool            `json:"reconnectOffered"`
	Attached         bool            `json:"attached"`
}

type openTabRequest struct {
	Profile string `json:"profile"`
}

func newTabResponse(t *tab.ConnectableTab) tabResponse {
	return tabResponse{
		ID:               t.ID(),
		Title:            t.Title(),
		State:            t.State().String(),
		Profile:          t.Profile(),
		ReconnectOffered: t.ReconnectOffered(),
		Attached:         t.HasFrontend(),
	}
}

func (s *Server) handleTabs(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	if r.Method == http.MethodGet {
		tabs := s.host.List()
		out := make([]tabResponse, 0, len(tabs))
		for _, t := range tabs {
			out = append(out, newTabResponse(t))
		}
		writeJSON(w, http.StatusOK, map[string]any{"tabs": out})
		return
	}

	var req openTabRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json body")
			return
		}
	}

	ctx := context.WithoutCancel(r.Context())
	var (
		t   *tab.ConnectableTab
		err error
	)
	if name := strings.TrimSpace(req.Profile); name != "" {
		p, findErr := s.findProfile(ctx, name)
		if findErr != nil {
			writeAPIError(w, http.StatusNotFound, "PROFILE_NOT_FOUND", findErr.Error())
			return
		}
		t, err = s.host.Open(ctx, p)
	} else {
		t, err = s.host.OpenDefault(ctx)
	}
	if err != nil {
		writeTabError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTabResponse(t))
}

func (s *Server) findProfile(ctx context.Context, name string) (profile.Profile, error) {
	all, err := s.host.Profiles().Profiles(ctx, profile.All)
	if err != nil {
		return profile.Profile{}, err
	}
	for _, p := range all {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return profile.Profile{}, profile.ErrNotFound
}

// handleTabByID serves /api/tabs/{id}, /api/tabs/{id}/reconnect and
// /api/tabs/{id}/recovery.
func (s *Server) handleTabByID(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/tabs/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || strings.Contains(action, "/") {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "tab id is required")
		return
	}

	switch action {
	case "":
		s.handleTab(w, r, id)
	case "reconnect":
		s.handleTabReconnect(w, r, id)
	case "recovery":
		s.handleTabRecovery(w, r, id)
	default:
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	}
}

func (s *Server) handleTab(w http.ResponseWriter, r *http.Request, id string) {
	if !s.allow(w, r, http.MethodGet, http.MethodDelete) {
		return
	}
	if r.Method == http.MethodDelete {
		if err := s.host.Close(id); err != nil {
			writeTabError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	t, err := s.host.Get(id)
	if err != nil {
		writeTabError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTabResponse(t))
}

func (s *Server) handleTabReconnect(w http.ResponseWriter, r *http.Request, id string) {
	if !s.allow(w, r, http.MethodPost) {
		return
	}
	t, err := s.host.Get(id)
	if err != nil {
		writeTabError(w, err)
		return
	}
	if err := t.Reconnect(context.WithoutCancel(r.Context())); err != nil {
		writeTabError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTabResponse(t))
}

func (s *Server) handleTabRecovery(w http.ResponseWriter, r *http.Request, id string) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	t, err := s.host.Get(id)
	if err != nil {
		writeTabError(w, err)
		return
	}
	includeState := r.URL.Query().Get("state") == "1"
	data, err := recovery.Encode(t.RecoveryToken(includeState))
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to encode recovery token")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeTabError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workspace.ErrUnknownTab):
		writeAPIError(w, http.StatusNotFound, "TAB_NOT_FOUND", "tab not found")
	case errors.Is(err, tab.ErrTabDestroyed), errors.Is(err, workspace.ErrHostClosed):
		writeAPIError(w, http.StatusConflict, "TAB_CLOSED", err.Error())
	default:
		webLog.Warn("tab_request_failed", slog.String("error", err.Error()))
		writeAPIError(w, http.StatusBadGateway, "SESSION_FAILED", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{
		Error: apiError{
			Code:    code,
			Message: message,
		},
	})
}

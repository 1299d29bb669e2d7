package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ideapedyudi/tabby/internal/menu"
	"github.com/ideapedyudi/tabby/internal/profile"
)

type menuItemResponse struct {
	Label     string             `json:"label"`
	Clickable bool               `json:"clickable"`
	Submenu   []menuItemResponse `json:"submenu,omitempty"`
}

type menuResponse struct {
	Tab    string             `json:"tab,omitempty"`
	Header bool               `json:"header"`
	Items  []menuItemResponse `json:"items"`
}

type menuClickRequest struct {
	Tab    string `json:"tab"`
	Header bool   `json:"header"`
	Path   []int  `json:"path"`
	// Input answers a prompt the action asks, e.g. a profile name.
	Input string `json:"input,omitempty"`
}

func toMenuResponse(items []menu.Item) []menuItemResponse {
	out := make([]menuItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, menuItemResponse{
			Label:     it.Label,
			Clickable: it.Click != nil,
			Submenu:   toMenuResponse(it.Submenu),
		})
	}
	return out
}

func (s *Server) handleMenu(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	tabID := q.Get("tab")
	header := q.Get("header") == "1"

	items, err := s.host.Menu(r.Context(), tabID, header)
	if err != nil {
		writeTabError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, menuResponse{Tab: tabID, Header: header, Items: toMenuResponse(items)})
}

// handleMenuClick rebuilds the menu for the same context and runs the item
// at path. Items are never cached between requests.
func (s *Server) handleMenuClick(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodPost) {
		return
	}
	var req menuClickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json body")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	items, err := s.host.Menu(ctx, req.Tab, req.Header)
	if err != nil {
		writeTabError(w, err)
		return
	}
	if req.Input != "" {
		ctx = menu.WithPrompter(ctx, menu.Answer(req.Input))
	}

	err = menu.Click(ctx, items, req.Path)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case errors.Is(err, menu.ErrInvalidPath), errors.Is(err, menu.ErrNotClickable):
		writeAPIError(w, http.StatusBadRequest, "INVALID_MENU_PATH", err.Error())
	case errors.Is(err, menu.ErrNoPrompter):
		writeAPIError(w, http.StatusUnprocessableEntity, "INPUT_REQUIRED", "this action needs input")
	default:
		writeAPIError(w, http.StatusUnprocessableEntity, "ACTION_FAILED", err.Error())
	}
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	profiles, err := s.host.Profiles().Profiles(r.Context(), profile.All)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load profiles")
		return
	}
	if profiles == nil {
		profiles = []profile.Profile{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

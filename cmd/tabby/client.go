package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ideapedyudi/tabby/internal/profile"
)

var (
	serverAddr  string
	serverToken string
)

// apiError is the error envelope returned by the server.
type apiError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type tabInfo struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	State            string          `json:"state"`
	Profile          profile.Profile `json:"profile"`
	ReconnectOffered bool            `json:"reconnectOffered"`
	Attached         bool            `json:"attached"`
}

type menuEntry struct {
	Label     string      `json:"label"`
	Clickable bool        `json:"clickable"`
	Submenu   []menuEntry `json:"submenu"`
}

// apiClient talks to a running `tabby serve`.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func newAPIClient() *apiClient {
	addr := serverAddr
	if addr == "" {
		addr = recordedListenAddr()
	}
	if addr == "" {
		addr = loadConfig().Web.ListenAddr()
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	token := serverToken
	if token == "" {
		token = os.Getenv("TABBY_TOKEN")
	}
	if token == "" {
		token = loadConfig().Web.Token
	}
	return &apiClient{
		base:  strings.TrimRight(addr, "/"),
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
}

// recordedListenAddr returns the address the last primary server listened
// on, or "" when none was recorded.
func recordedListenAddr() string {
	db, err := openStateDB()
	if err != nil {
		return ""
	}
	defer db.Close()
	addr, _ := db.GetMeta(metaListenAddr)
	return addr
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is `tabby serve` running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var env struct {
			Error apiError `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&env)
		env.Error.Status = resp.StatusCode
		return &env.Error
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) Tabs(ctx context.Context) ([]tabInfo, error) {
	var resp struct {
		Tabs []tabInfo `json:"tabs"`
	}
	err := c.do(ctx, http.MethodGet, "/api/tabs", nil, &resp)
	return resp.Tabs, err
}

func (c *apiClient) Open(ctx context.Context, profileName string) (tabInfo, error) {
	var t tabInfo
	err := c.do(ctx, http.MethodPost, "/api/tabs", map[string]string{"profile": profileName}, &t)
	return t, err
}

func (c *apiClient) Close(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tabs/"+url.PathEscape(id), nil, nil)
}

func (c *apiClient) Reconnect(ctx context.Context, id string) (tabInfo, error) {
	var t tabInfo
	err := c.do(ctx, http.MethodPost, "/api/tabs/"+url.PathEscape(id)+"/reconnect", nil, &t)
	return t, err
}

func (c *apiClient) Menu(ctx context.Context, tabID string, header bool) ([]menuEntry, error) {
	q := url.Values{}
	if tabID != "" {
		q.Set("tab", tabID)
	}
	if header {
		q.Set("header", "1")
	}
	var resp struct {
		Items []menuEntry `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "/api/menu?"+q.Encode(), nil, &resp)
	return resp.Items, err
}

// errInputRequired is returned by Click when the action asks a question.
var errInputRequired = errors.New("input required")

func (c *apiClient) Click(ctx context.Context, tabID string, header bool, path []int, input string) error {
	err := c.do(ctx, http.MethodPost, "/api/menu/click", map[string]any{
		"tab":    tabID,
		"header": header,
		"path":   path,
		"input":  input,
	}, nil)
	var ae *apiError
	if errors.As(err, &ae) && ae.Code == "INPUT_REQUIRED" {
		return errInputRequired
	}
	return err
}

// Package client is a typed HTTP client for the review daemon,
// shared by the CLI and editor integrations.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/journal"
	shared "github.com/Fintehhe/Pending-Changes-Reviewer/shared/types"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

type changesResponse struct {
	Changes []shared.ChangeEntry `json:"changes"`
}

type batchRequest struct {
	Paths []string `json:"paths,omitempty"`
	All   bool     `json:"all,omitempty"`
}

type batchResponse struct {
	Results []shared.Outcome `json:"results"`
}

type pathRequest struct {
	Path string `json:"path"`
}

type documentRequest struct {
	Path string `json:"path"`
	Text string `json:"text"`
}

type historyResponse struct {
	Entries []journal.Entry `json:"entries"`
}

// Health reports whether the daemon is reachable.
func (c *Client) Health() error {
	return c.getJSON("/health", nil)
}

// Changes fetches the pending change set. With includeContents false the
// daemon strips the before/after texts, which keeps status calls light.
func (c *Client) Changes(includeContents bool) ([]shared.ChangeEntry, error) {
	path := "/api/changes"
	if !includeContents {
		path += "?contents=0"
	}
	var body changesResponse
	if err := c.getJSON(path, &body); err != nil {
		return nil, err
	}
	return body.Changes, nil
}

// Diff fetches one file's pending change as unified diff text.
func (c *Client) Diff(path string) (string, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/api/changes/diff?path=" + url.QueryEscape(path))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Accept makes the current state of the given paths the new reference.
// With all true every pending change is accepted.
func (c *Client) Accept(paths []string, all bool) ([]shared.Outcome, error) {
	return c.batch("/api/changes/accept", paths, all)
}

// Revert restores the given paths to their reference state on disk.
// With all true every pending change is reverted.
func (c *Client) Revert(paths []string, all bool) ([]shared.Outcome, error) {
	return c.batch("/api/changes/revert", paths, all)
}

func (c *Client) batch(endpoint string, paths []string, all bool) ([]shared.Outcome, error) {
	var body batchResponse
	if err := c.postJSON(endpoint, batchRequest{Paths: paths, All: all}, &body); err != nil {
		return nil, err
	}
	return body.Results, nil
}

// Untrack drops a file's reference without touching disk.
func (c *Client) Untrack(path string) error {
	return c.postJSON("/api/changes/untrack", pathRequest{Path: path}, nil)
}

// Clear drops every reference.
func (c *Client) Clear() error {
	return c.postJSON("/api/changes/clear", struct{}{}, nil)
}

// History returns recorded review operations, newest first. A limit of
// zero returns everything.
func (c *Client) History(limit int) ([]journal.Entry, error) {
	path := "/api/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var body historyResponse
	if err := c.getJSON(path, &body); err != nil {
		return nil, err
	}
	return body.Entries, nil
}

// TrackingState reports whether change tracking is live.
func (c *Client) TrackingState() (shared.TrackingState, error) {
	var state shared.TrackingState
	err := c.getJSON("/api/tracking", &state)
	return state, err
}

// StartTracking turns change tracking on.
func (c *Client) StartTracking() (shared.TrackingState, error) {
	var state shared.TrackingState
	err := c.postJSON("/api/tracking/start", struct{}{}, &state)
	return state, err
}

// StopTracking turns change tracking off.
func (c *Client) StopTracking() (shared.TrackingState, error) {
	var state shared.TrackingState
	err := c.postJSON("/api/tracking/stop", struct{}{}, &state)
	return state, err
}

// NotifyOpened reports an editor buffer opening with its content.
func (c *Client) NotifyOpened(path, text string) error {
	return c.postJSON("/api/documents/opened", documentRequest{Path: path, Text: text}, nil)
}

// NotifyWillSave reports a buffer that is about to be written to disk.
func (c *Client) NotifyWillSave(path, text string) error {
	return c.postJSON("/api/documents/will-save", documentRequest{Path: path, Text: text}, nil)
}

// NotifySaved reports a buffer that was just written to disk.
func (c *Client) NotifySaved(path, text string) error {
	return c.postJSON("/api/documents/saved", documentRequest{Path: path, Text: text}, nil)
}

// NotifyClosed reports a buffer closing.
func (c *Client) NotifyClosed(path string) error {
	return c.postJSON("/api/documents/closed", pathRequest{Path: path}, nil)
}

func (c *Client) getJSON(path string, out any) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

func (c *Client) postJSON(path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// statusError surfaces the daemon's error message when the body carries
// one, and falls back to the bare HTTP status otherwise.
func statusError(resp *http.Response) error {
	var apiErr struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("%s: %s", resp.Status, apiErr.Message)
	}
	return fmt.Errorf("unexpected status: %s", resp.Status)
}

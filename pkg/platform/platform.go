// Package platform implements the Notification Bridge (C5): polling the
// external workflow-platform API and mapping its responses onto local job
// states.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ebi-gdp/vattid/pkg/jobstate"
	"github.com/ebi-gdp/vattid/pkg/log"
)

// RemoteLog is the workflow record of a platform response. Of its fields
// the daemon acts on Status, ExitStatus and ErrorReport.
type RemoteLog struct {
	RunName     string              `json:"runName"`
	Start       time.Time           `json:"start"`
	Status      jobstate.RemoteStatus `json:"status"`
	ExitStatus  *int                `json:"exitStatus"`
	ErrorReport string              `json:"errorReport"`
}

// FirstLine returns only the first line of ErrorReport, per the trace_name
// rule (full multi-line stack traces are never forwarded).
func (r RemoteLog) FirstLine() string {
	if r.ErrorReport == "" {
		return ""
	}
	if i := strings.IndexByte(r.ErrorReport, '\n'); i >= 0 {
		return r.ErrorReport[:i]
	}
	return r.ErrorReport
}

type workflowResponse struct {
	Workflows []struct {
		Workflow RemoteLog `json:"workflow"`
	} `json:"workflows"`
	TotalSize int `json:"totalSize"`
}

// Client queries the workflow-platform API.
type Client struct {
	Root       string
	Token      string
	WorkspaceID string
	HTTP       *http.Client
}

// NewClient builds a Client with its own http.Client and a 30-second
// per-request timeout, never the process-wide http.DefaultClient.
func NewClient(root, token, workspaceID string) *Client {
	return &Client{
		Root:        root,
		Token:       token,
		WorkspaceID: workspaceID,
		HTTP:        &http.Client{Timeout: 30 * time.Second},
	}
}

// Poll queries the platform for the given run name and returns the single
// matching RemoteLog, or ok=false if none or more than one match was found.
func (c *Client) Poll(ctx context.Context, runName string) (log RemoteLog, ok bool, err error) {
	u, err := url.Parse(strings.TrimRight(c.Root, "/") + "/workflow")
	if err != nil {
		return RemoteLog{}, false, fmt.Errorf("platform: build request url: %w", err)
	}
	q := u.Query()
	q.Set("workspaceId", c.WorkspaceID)
	q.Set("search", runName)
	q.Set("max", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return RemoteLog{}, false, fmt.Errorf("platform: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return RemoteLog{}, false, fmt.Errorf("platform: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RemoteLog{}, false, fmt.Errorf("platform: unexpected status %d", resp.StatusCode)
	}

	var wr workflowResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return RemoteLog{}, false, fmt.Errorf("platform: decode response: %w", err)
	}

	switch {
	case wr.TotalSize == 0:
		return RemoteLog{}, false, nil
	case wr.TotalSize > 1:
		log.WithRunName(runName).Warn().Int("totalSize", wr.TotalSize).Msg("platform: ambiguous run name, skipping")
		return RemoteLog{}, false, nil
	default:
		return wr.Workflows[0].Workflow, true, nil
	}
}

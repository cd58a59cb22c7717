// Package controlplane is a thin, typed HTTP client over the OpenVDM
// control-plane REST API: cruise/lowering identity, transfer
// configuration, task state transitions, and the handful of
// housekeeping calls (gearman job tracking, UI messages) every task
// handler and the scheduler depend on.
//
// The client never caches: every read is live because the web UI and
// other worker processes mutate the same state concurrently. Every
// method takes a context.Context and applies a 5s default timeout
// unless the caller's context already carries a shorter deadline.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/oceandatatools/openvdm-go/pkg/types"
)

// DefaultTimeout is applied to every request unless the caller's
// context carries a shorter deadline already.
const DefaultTimeout = 5 * time.Second

// Client is a typed facade over the control-plane REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// New returns a Client pointed at baseURL (e.g. "http://localhost:8080").
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		timeout:    timeout,
	}
}

func (c *Client) effectiveCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < c.timeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	ctx, cancel := c.effectiveCtx(ctx)
	defer cancel()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body for %s: %w", path, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("control plane request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body for %s: %w", path, err)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("control plane %s %s returned %d: %s", method, path, resp.StatusCode, string(data))
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response for %s: %w", path, err)
	}
	return nil
}

// BoolString decodes the control plane's string-valued booleans
// ("0"/"1", "On"/"Off", or a real JSON bool) into a Go bool.
type BoolString bool

func (b *BoolString) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case bool:
		*b = BoolString(v)
	case string:
		switch v {
		case "1", "On", "on", "true", "True":
			*b = true
		case "0", "Off", "off", "false", "False", "":
			*b = false
		default:
			return fmt.Errorf("unrecognized bool-string %q", v)
		}
	case float64:
		*b = v != 0
	default:
		return fmt.Errorf("unsupported bool-string JSON type %T", raw)
	}
	return nil
}

func (b BoolString) MarshalJSON() ([]byte, error) {
	if b {
		return json.Marshal("1")
	}
	return json.Marshal("0")
}

// WarehouseConfig returns the shipboard data warehouse settings.
func (c *Client) WarehouseConfig(ctx context.Context) (*types.ShipboardDataWarehouseConfig, error) {
	var cfg types.ShipboardDataWarehouseConfig
	if err := c.do(ctx, http.MethodGet, "/api/warehouse/config", nil, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// CurrentCruise returns the active cruise record.
func (c *Client) CurrentCruise(ctx context.Context) (*types.Cruise, error) {
	var cruise types.Cruise
	if err := c.do(ctx, http.MethodGet, "/api/warehouse/currentCruise", nil, nil, &cruise); err != nil {
		return nil, err
	}
	return &cruise, nil
}

// SetCurrentCruise sets the active cruise id and its date window.
func (c *Client) SetCurrentCruise(ctx context.Context, cruiseID string, start, end time.Time) error {
	body := map[string]any{"cruiseID": cruiseID, "startDate": start, "endDate": end}
	return c.do(ctx, http.MethodPost, "/api/warehouse/currentCruise", nil, body, nil)
}

// SetCruiseSize reports the measured byte size of a cruise directory.
func (c *Client) SetCruiseSize(ctx context.Context, cruiseID string, bytes int64) error {
	body := map[string]any{"cruiseID": cruiseID, "bytes": bytes}
	return c.do(ctx, http.MethodPost, "/api/warehouse/cruiseSize", nil, body, nil)
}

// CurrentLowering returns the active lowering record, if any.
func (c *Client) CurrentLowering(ctx context.Context) (*types.Lowering, error) {
	var lowering types.Lowering
	if err := c.do(ctx, http.MethodGet, "/api/warehouse/currentLowering", nil, nil, &lowering); err != nil {
		return nil, err
	}
	return &lowering, nil
}

// SetCurrentLowering sets the active lowering id and its date window.
func (c *Client) SetCurrentLowering(ctx context.Context, loweringID string, start, end time.Time) error {
	body := map[string]any{"loweringID": loweringID, "startDate": start, "endDate": end}
	return c.do(ctx, http.MethodPost, "/api/warehouse/currentLowering", nil, body, nil)
}

// SetLoweringSize reports the measured byte size of a lowering directory.
func (c *Client) SetLoweringSize(ctx context.Context, loweringID string, bytes int64) error {
	body := map[string]any{"loweringID": loweringID, "bytes": bytes}
	return c.do(ctx, http.MethodPost, "/api/warehouse/loweringSize", nil, body, nil)
}

// MD5FilesizeLimit returns the configured MD5 filesize limit in bytes
// and whether the limit is enforced.
func (c *Client) MD5FilesizeLimit(ctx context.Context) (int64, bool, error) {
	var resp struct {
		LimitBytes int64      `json:"limitBytes"`
		Enabled    BoolString `json:"enabled"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/warehouse/md5FilesizeLimit", nil, nil, &resp); err != nil {
		return 0, false, err
	}
	return resp.LimitBytes, bool(resp.Enabled), nil
}

// CollectionSystemTransfers returns all, or only active, CSTs.
func (c *Client) CollectionSystemTransfers(ctx context.Context, activeOnly bool) ([]types.CollectionSystemTransfer, error) {
	var csts []types.CollectionSystemTransfer
	if err := c.do(ctx, http.MethodGet, cstListPath(activeOnly), nil, nil, &csts); err != nil {
		return nil, err
	}
	return csts, nil
}

func cstListPath(activeOnly bool) string {
	if activeOnly {
		return "/api/collectionSystemTransfers/active"
	}
	return "/api/collectionSystemTransfers/all"
}

// CollectionSystemTransfer looks up a single CST by id.
func (c *Client) CollectionSystemTransfer(ctx context.Context, id string) (*types.CollectionSystemTransfer, error) {
	var cst types.CollectionSystemTransfer
	if err := c.do(ctx, http.MethodGet, "/api/collectionSystemTransfers/"+url.PathEscape(id), nil, nil, &cst); err != nil {
		return nil, err
	}
	return &cst, nil
}

// SetCSTRunning marks a CST running under the given OS pid and job handle.
func (c *Client) SetCSTRunning(ctx context.Context, id, pid, jobHandle string) error {
	return c.setStatus(ctx, "/api/collectionSystemTransfers/"+url.PathEscape(id)+"/setRunning", pid, jobHandle)
}

// SetCSTIdle marks a CST idle after a successful run.
func (c *Client) SetCSTIdle(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/collectionSystemTransfers/"+url.PathEscape(id)+"/setIdle", nil, nil, nil)
}

// SetCSTError marks a CST in error after a failed run.
func (c *Client) SetCSTError(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/collectionSystemTransfers/"+url.PathEscape(id)+"/setError", nil, nil, nil)
}

// SetCSTTestIdle/SetCSTTestError mirror the above but mutate only the
// transient TestStatus field, never the persistent Status row.
func (c *Client) SetCSTTestIdle(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/collectionSystemTransfers/"+url.PathEscape(id)+"/test/setIdle", nil, nil, nil)
}

func (c *Client) SetCSTTestError(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/collectionSystemTransfers/"+url.PathEscape(id)+"/test/setError", nil, nil, nil)
}

func (c *Client) setStatus(ctx context.Context, path, pid, jobHandle string) error {
	body := map[string]any{"pid": pid, "jobHandle": jobHandle}
	return c.do(ctx, http.MethodPost, path, nil, body, nil)
}

// CruiseDataTransfers returns all, active, or required CDTs.
func (c *Client) CruiseDataTransfers(ctx context.Context, activeOnly, requiredOnly bool) ([]types.CruiseDataTransfer, error) {
	var cdts []types.CruiseDataTransfer
	path := "/api/cruiseDataTransfers/all"
	if requiredOnly {
		path = "/api/cruiseDataTransfers/required"
	} else if activeOnly {
		path = "/api/cruiseDataTransfers/active"
	}
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &cdts); err != nil {
		return nil, err
	}
	return cdts, nil
}

func (c *Client) SetCDTRunning(ctx context.Context, id, pid, jobHandle string) error {
	return c.setStatus(ctx, "/api/cruiseDataTransfers/"+url.PathEscape(id)+"/setRunning", pid, jobHandle)
}

func (c *Client) SetCDTIdle(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/cruiseDataTransfers/"+url.PathEscape(id)+"/setIdle", nil, nil, nil)
}

func (c *Client) SetCDTError(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/cruiseDataTransfers/"+url.PathEscape(id)+"/setError", nil, nil, nil)
}

func (c *Client) SetCDTTestIdle(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/cruiseDataTransfers/"+url.PathEscape(id)+"/test/setIdle", nil, nil, nil)
}

func (c *Client) SetCDTTestError(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/cruiseDataTransfers/"+url.PathEscape(id)+"/test/setError", nil, nil, nil)
}

// ShipToShoreTransfers returns all, or only required, S2S rules.
func (c *Client) ShipToShoreTransfers(ctx context.Context, requiredOnly bool) ([]types.ShipToShoreTransfer, error) {
	var s2s []types.ShipToShoreTransfer
	path := "/api/shipToShoreTransfers/all"
	if requiredOnly {
		path = "/api/shipToShoreTransfers/required"
	}
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &s2s); err != nil {
		return nil, err
	}
	return s2s, nil
}

// ExtraDirectories returns all, active, or required extra directories.
func (c *Client) ExtraDirectories(ctx context.Context, activeOnly, requiredOnly bool) ([]types.ExtraDirectory, error) {
	var dirs []types.ExtraDirectory
	path := "/api/extraDirectories/all"
	if requiredOnly {
		path = "/api/extraDirectories/required"
	} else if activeOnly {
		path = "/api/extraDirectories/active"
	}
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &dirs); err != nil {
		return nil, err
	}
	return dirs, nil
}

// Tasks returns all, or only active, tasks.
func (c *Client) Tasks(ctx context.Context, activeOnly bool) ([]types.Task, error) {
	var tasks []types.Task
	path := "/api/tasks/all"
	if activeOnly {
		path = "/api/tasks/active"
	}
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// TaskByName looks up a task by its broker queue name.
func (c *Client) TaskByName(ctx context.Context, name string) (*types.Task, error) {
	var task types.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks/byName/"+url.PathEscape(name), nil, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) SetTaskRunning(ctx context.Context, id, pid, jobHandle string) error {
	return c.setStatus(ctx, "/api/tasks/"+url.PathEscape(id)+"/setRunning", pid, jobHandle)
}

func (c *Client) SetTaskIdle(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(id)+"/setIdle", nil, nil, nil)
}

func (c *Client) SetTaskError(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(id)+"/setError", nil, nil, nil)
}

// PostHookCommands returns the shell commands registered for a named
// lifecycle hook (e.g. "postCollectionSystemTransfer").
func (c *Client) PostHookCommands(ctx context.Context, hookName string) ([]string, error) {
	var commands []string
	if err := c.do(ctx, http.MethodGet, "/api/hooks/"+url.PathEscape(hookName), nil, nil, &commands); err != nil {
		return nil, err
	}
	return commands, nil
}

// TrackGearmanJob registers a broker job handle against a process id
// and job name so the control plane's job table stays consistent with
// what is actually running.
func (c *Client) TrackGearmanJob(ctx context.Context, handle, jobName, pid string) error {
	body := map[string]any{"handle": handle, "jobName": jobName, "pid": pid}
	return c.do(ctx, http.MethodPost, "/api/gearman/newJob", nil, body, nil)
}

// ClearAllJobsFromDB drops stale job-tracking rows, typically called
// once at worker startup.
func (c *Client) ClearAllJobsFromDB(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/gearman/clearAllJobsFromDB", nil, nil, nil)
}

// GearmanJobByPID looks up the job-table row TrackGearmanJob (or
// setRunning) registered for pid, used by stopJob to find which
// CST/CDT/task record owns a running process.
func (c *Client) GearmanJobByPID(ctx context.Context, pid string) (jobName, recordID string, err error) {
	var resp struct {
		JobName  string `json:"jobName"`
		RecordID string `json:"recordID"`
	}
	query := url.Values{"pid": []string{pid}}
	if err := c.do(ctx, http.MethodGet, "/api/gearman/jobByPID", query, nil, &resp); err != nil {
		return "", "", err
	}
	return resp.JobName, resp.RecordID, nil
}

// SendMessage posts a UI notification.
func (c *Client) SendMessage(ctx context.Context, title, body string) error {
	payload := map[string]any{"title": title, "body": body}
	return c.do(ctx, http.MethodPost, "/api/messages/newMessage", nil, payload, nil)
}

// LogfilePurgeInterval returns the configured transfer-log retention
// window (e.g. "30 days").
func (c *Client) LogfilePurgeInterval(ctx context.Context) (string, error) {
	var resp struct {
		Interval string `json:"interval"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/warehouse/logfilePurgeInterval", nil, nil, &resp); err != nil {
		return "", err
	}
	return resp.Interval, nil
}

// SchedulerIntervalMinutes returns the control plane's configured
// scheduler tick interval. The scheduler binary does not call it; its
// interval comes from the --interval flag or the config file.
func (c *Client) SchedulerIntervalMinutes(ctx context.Context) (int, error) {
	var resp struct {
		Minutes int `json:"minutes"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/scheduler/interval", nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Minutes, nil
}

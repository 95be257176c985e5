// Package client implements the HTTP client for the notifier worker API. The
// CLI uses it to enqueue notify jobs and poll their progress; the worker uses
// its wire types to stay in sync with the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrNotFound           = errors.New("job not found")
	ErrServiceUnavailable = errors.New("worker unavailable")
)

// NotifyJob is the payload the CLI dispatches to the worker: the resolved
// command options plus the resolved course-key list.
type NotifyJob struct {
	Courses        []string   `json:"courses,omitempty"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	UserIDs        []int64    `json:"user_ids,omitempty"`
	Site           string     `json:"site,omitempty"`
	Delay          float64    `json:"delay"`
	PageSize       int        `json:"page_size"`
	DryRun         bool       `json:"dry_run"`
	Verbose        bool       `json:"verbose"`
	NotifyPrograms bool       `json:"notify_programs"`
}

// Job states reported by the worker.
const (
	JobStateQueued    = "queued"
	JobStateRunning   = "running"
	JobStateSucceeded = "succeeded"
	JobStateFailed    = "failed"
)

// Job describes an enqueued notify job and, once finished, its outcome.
type Job struct {
	ID           string     `json:"id"`
	State        string     `json:"state"`
	Error        string     `json:"error,omitempty"`
	Preview      string     `json:"preview,omitempty"`
	Certificates int        `json:"certificates"`
	Grades       int        `json:"grades"`
	EnqueuedAt   time.Time  `json:"enqueued_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Finished reports whether the job reached a terminal state.
func (j Job) Finished() bool {
	return j.State == JobStateSucceeded || j.State == JobStateFailed
}

// Status is the worker's liveness report.
type Status struct {
	Running bool `json:"running"`
	Queued  int  `json:"queued"`
}

// HTTPDoer is the transport the client sends requests through. It exists so
// tests can substitute a mock.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	baseURL string
	http    HTTPDoer
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}

// EnqueueNotify submits a notify job and returns its queued record.
func (c *Client) EnqueueNotify(ctx context.Context, job NotifyJob) (Job, error) {
	var queued Job
	if err := c.doJSON(ctx, http.MethodPost, "/v1/jobs", job, &queued); err != nil {
		return Job{}, err
	}
	return queued, nil
}

// Job fetches the current state of a previously enqueued job.
func (c *Client) Job(ctx context.Context, id string) (Job, error) {
	var job Job
	if err := c.doJSON(ctx, http.MethodGet, "/v1/jobs/"+id, nil, &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// WaitForJob polls a job until it finishes or the context is cancelled.
func (c *Client) WaitForJob(ctx context.Context, id string, interval time.Duration) (Job, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.Job(ctx, id)
		if err != nil {
			return Job{}, err
		}
		if job.Finished() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Status reports whether the worker is reachable and how deep its queue is.
func (c *Client) Status(ctx context.Context) Status {
	var status Status
	if err := c.doJSON(ctx, http.MethodGet, "/v1/status", nil, &status); err != nil {
		return Status{Running: false}
	}
	status.Running = true
	return status
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "error marshaling request")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return errors.Wrap(err, "error creating request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.handleQueryError(err, path)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusServiceUnavailable:
		return ErrServiceUnavailable
	default:
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status code %d from %s: %s", resp.StatusCode, path, string(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "error decoding response")
	}
	return nil
}

func (c *Client) handleQueryError(err error, path string) error {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return ErrServiceUnavailable
	}
	return errors.Wrapf(err, "error querying %s", path)
}

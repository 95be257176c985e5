// Package credentials implements the client for the external credentials
// service. Each send retries transient failures with exponential backoff,
// capped so a dead service cannot stall a job forever.
package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// DefaultMaxRetries caps retries per record. 11 retries with exponential
// backoff yields a maximum waiting time of about 30 minutes; unbounded
// retries are never wanted here.
const DefaultMaxRetries = 11

// GradeEvent is the grade payload posted to the credentials service.
type GradeEvent struct {
	Username     string  `json:"username"`
	CourseRun    string  `json:"course_run"`
	LetterGrade  string  `json:"letter_grade"`
	PercentGrade float64 `json:"percent_grade"`
	Verified     bool    `json:"verified"`
}

// CertificateEvent is the certificate payload posted to the credentials
// service for change and award notifications.
type CertificateEvent struct {
	Username  string `json:"username"`
	CourseRun string `json:"course_run"`
	Mode      string `json:"mode"`
	Status    string `json:"status"`
}

// HTTPDoer is the transport requests are sent through. It exists so tests
// can substitute a mock.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	baseURL    string
	token      string
	maxRetries uint64
	http       HTTPDoer
}

func New(baseURL, token string, timeout time.Duration, maxRetries uint64) *Client {
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		maxRetries: maxRetries,
		http:       &http.Client{Timeout: timeout},
	}
}

// SendGrade notifies the credentials service of a grade.
func (c *Client) SendGrade(ctx context.Context, grade GradeEvent) error {
	return c.post(ctx, "/api/v2/grades/", grade)
}

// NotifyCertificateChange notifies the credentials service that a course
// certificate changed.
func (c *Client) NotifyCertificateChange(ctx context.Context, cert CertificateEvent) error {
	return c.post(ctx, "/api/v2/credentials/", cert)
}

// AwardCourseCertificate asks the credentials service to (re)issue the
// course credential, which in turn may award program credentials.
func (c *Client) AwardCourseCertificate(ctx context.Context, cert CertificateEvent) error {
	return c.post(ctx, "/api/v2/credentials/awards/", cert)
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "error marshaling payload")
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "error creating request"))
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return errors.Wrapf(err, "error posting to %s", path)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			// Client errors will not heal on retry.
			body, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("credentials service rejected %s: %d %s", path, resp.StatusCode, string(body)))
		default:
			return fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, path)
		}
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	return backoff.Retry(operation, policy)
}

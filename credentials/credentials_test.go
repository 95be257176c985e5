package credentials

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockHTTPClient is a mock implementation of the HTTPDoer interface.
type MockHTTPClient struct {
	DoFunc func(req *http.Request) (*http.Response, error)
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.DoFunc(req)
}

func newTestClient(mock *MockHTTPClient) *Client {
	return &Client{
		baseURL:    "http://credentials.test",
		token:      "secret-token",
		maxRetries: 2,
		http:       mock,
	}
}

func response(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestSendGrade(t *testing.T) {
	mock := &MockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, http.MethodPost, req.Method)
			assert.Equal(t, "http://credentials.test/api/v2/grades/", req.URL.String())
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			assert.Equal(t, "Bearer secret-token", req.Header.Get("Authorization"))

			var grade GradeEvent
			require.NoError(t, json.NewDecoder(req.Body).Decode(&grade))
			assert.Equal(t, "records", grade.Username)
			assert.Equal(t, "course-v1:edX+RecordsSelfPaced+1", grade.CourseRun)
			assert.Equal(t, "A", grade.LetterGrade)
			assert.True(t, grade.Verified)

			return response(http.StatusOK, "{}"), nil
		},
	}

	err := newTestClient(mock).SendGrade(context.Background(), GradeEvent{
		Username:     "records",
		CourseRun:    "course-v1:edX+RecordsSelfPaced+1",
		LetterGrade:  "A",
		PercentGrade: 0.95,
		Verified:     true,
	})
	require.NoError(t, err)
}

func TestPostRetriesServerErrors(t *testing.T) {
	calls := 0
	mock := &MockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return response(http.StatusBadGateway, ""), nil
			}
			return response(http.StatusOK, "{}"), nil
		},
	}

	err := newTestClient(mock).NotifyCertificateChange(context.Background(), CertificateEvent{
		Username:  "records",
		CourseRun: "course-v1:edX+RecordsSelfPaced+1",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestPostDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	mock := &MockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			calls++
			return response(http.StatusBadRequest, `{"detail":"bad payload"}`), nil
		},
	}

	err := newTestClient(mock).AwardCourseCertificate(context.Background(), CertificateEvent{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
	assert.Equal(t, 1, calls)
}

func TestPostGivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	mock := &MockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			calls++
			return response(http.StatusServiceUnavailable, ""), nil
		},
	}

	err := newTestClient(mock).SendGrade(context.Background(), GradeEvent{Username: "records"})
	require.Error(t, err)
	// Initial attempt plus maxRetries.
	assert.Equal(t, 3, calls)
}

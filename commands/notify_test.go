package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlms/crednotify/client"
	"github.com/openlms/crednotify/config"
	"github.com/openlms/crednotify/pkg/coursekey"
	"github.com/openlms/crednotify/store"
)

func TestBuildNotifyJob(t *testing.T) {
	now := time.Date(2018, 7, 1, 10, 42, 13, 0, time.UTC)
	keys := []coursekey.Key{coursekey.MustParse("course-v1:edX+DemoX+Demo_Course")}

	t.Run("requires a filter", func(t *testing.T) {
		_, err := buildNotifyJob(&notifyOptions{pageSize: 100}, nil, now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must specify a filter")
	})

	t.Run("courses alone satisfy the filter", func(t *testing.T) {
		job, err := buildNotifyJob(&notifyOptions{pageSize: 100}, keys, now)
		require.NoError(t, err)
		assert.Equal(t, []string{"course-v1:edX+DemoX+Demo_Course"}, job.Courses)
		assert.Nil(t, job.StartDate)
		assert.Nil(t, job.EndDate)
	})

	t.Run("user ids alone satisfy the filter", func(t *testing.T) {
		job, err := buildNotifyJob(&notifyOptions{pageSize: 100, userIDs: []int64{14, 17}}, nil, now)
		require.NoError(t, err)
		assert.Equal(t, []int64{14, 17}, job.UserIDs)
	})

	t.Run("dates are parsed as UTC", func(t *testing.T) {
		job, err := buildNotifyJob(&notifyOptions{
			pageSize:  100,
			startDate: "2018-06-01",
			endDate:   "2018-07-31 23:00:00",
		}, nil, now)
		require.NoError(t, err)
		require.NotNil(t, job.StartDate)
		require.NotNil(t, job.EndDate)
		assert.True(t, job.StartDate.Equal(time.Date(2018, 6, 1, 0, 0, 0, 0, time.UTC)))
		assert.True(t, job.EndDate.Equal(time.Date(2018, 7, 31, 23, 0, 0, 0, time.UTC)))
	})

	t.Run("bad date is an error", func(t *testing.T) {
		_, err := buildNotifyJob(&notifyOptions{pageSize: 100, startDate: "not-a-date"}, nil, now)
		require.Error(t, err)
	})

	t.Run("auto overrides dates with the last four hours", func(t *testing.T) {
		job, err := buildNotifyJob(&notifyOptions{
			pageSize:  100,
			auto:      true,
			startDate: "2018-01-01",
		}, nil, now)
		require.NoError(t, err)
		require.NotNil(t, job.StartDate)
		require.NotNil(t, job.EndDate)
		assert.True(t, job.EndDate.Equal(time.Date(2018, 7, 1, 10, 0, 0, 0, time.UTC)))
		assert.True(t, job.StartDate.Equal(time.Date(2018, 7, 1, 6, 0, 0, 0, time.UTC)))
	})

	t.Run("options are forwarded verbatim", func(t *testing.T) {
		job, err := buildNotifyJob(&notifyOptions{
			dryRun:         true,
			site:           "records.example.com",
			delay:          1.5,
			pageSize:       25,
			verbose:        true,
			notifyPrograms: true,
		}, keys, now)
		require.NoError(t, err)
		assert.True(t, job.DryRun)
		assert.Equal(t, "records.example.com", job.Site)
		assert.Equal(t, 1.5, job.Delay)
		assert.Equal(t, 25, job.PageSize)
		assert.True(t, job.Verbose)
		assert.True(t, job.NotifyPrograms)
	})
}

func TestNotifyJobSummary(t *testing.T) {
	start := time.Date(2018, 6, 1, 0, 0, 0, 0, time.UTC)
	summary := notifyJobSummary(client.NotifyJob{
		Courses:   []string{"course-v1:edX+DemoX+Demo_Course"},
		StartDate: &start,
		UserIDs:   []int64{14, 17},
		DryRun:    true,
	})
	assert.Equal(t,
		"--courses course-v1:edX+DemoX+Demo_Course --start-date 2018-06-01T00:00:00Z --user-ids 14,17 --dry-run",
		summary)

	assert.Empty(t, notifyJobSummary(client.NotifyJob{}))
}

func TestResolveCourseKeys(t *testing.T) {
	keys, err := resolveCourseKeys([]string{
		"course-v1:edX+DemoX+Demo_Course",
		"edX/RecordsSelfPaced/1",
	})
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "edX", keys[0].Org)

	_, err = resolveCourseKeys([]string{"course-v1:edX+DemoX+Demo_Course", "garbage"})
	require.Error(t, err)
	assert.ErrorIs(t, err, coursekey.ErrInvalidKey)
}

func TestParseSavedArguments(t *testing.T) {
	opts, err := parseSavedArguments(
		`--courses course-v1:edX+DemoX+Demo_Course --start-date "2020-10-20 04:00:00" --notify-programs --page-size 50`)
	require.NoError(t, err)
	assert.Equal(t, []string{"course-v1:edX+DemoX+Demo_Course"}, opts.courses)
	assert.Equal(t, "2020-10-20 04:00:00", opts.startDate)
	assert.True(t, opts.notifyPrograms)
	assert.Equal(t, 50, opts.pageSize)
	// Defaults survive for unset flags.
	assert.False(t, opts.dryRun)
	assert.Zero(t, opts.delay)
}

func TestParseSavedArgumentsAcceptsUnderscoreSpellings(t *testing.T) {
	opts, err := parseSavedArguments("--user_ids 14,17 --notify_programs --start-date 2018-06-01")
	require.NoError(t, err)
	assert.Equal(t, []int64{14, 17}, opts.userIDs)
	assert.True(t, opts.notifyPrograms)
	assert.Equal(t, "2018-06-01", opts.startDate)
}

func TestParseSavedArgumentsRejectsUnknownFlags(t *testing.T) {
	_, err := parseSavedArguments("--no-such-flag")
	require.Error(t, err)
}

func TestLoadOptionsFromDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "crednotify.db")
	ctx := context.Background()

	st, err := store.Open(dbPath)
	require.NoError(t, err)

	// Nothing saved yet counts as disabled.
	_, err = loadOptionsFromDatabase(ctx, dbPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")

	require.NoError(t, st.SaveNotifyConfig(ctx, true, "--user-ids 14,17 --dry-run"))
	require.NoError(t, st.Close())

	opts, err := loadOptionsFromDatabase(ctx, dbPath)
	require.NoError(t, err)
	assert.Equal(t, []int64{14, 17}, opts.userIDs)
	assert.True(t, opts.dryRun)
}

// runNotifyCommand executes the notify command against a stub worker API and
// returns its combined output.
func runNotifyCommand(t *testing.T, handler http.HandlerFunc, args ...string) (string, error) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	// Keep the run-history side effect inside the test sandbox.
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg = &config.Configuration{}
	cfg.Database.Path = filepath.Join(t.TempDir(), "crednotify.db")
	workerClient = client.New(srv.URL)

	cmd := newNotifyCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNotifyCommandEnqueues(t *testing.T) {
	var received client.NotifyJob
	out, err := runNotifyCommand(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/jobs", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(client.Job{ID: "job-1", State: client.JobStateQueued})
	}, "--courses", "course-v1:edX+DemoX+Demo_Course", "--notify-programs")

	require.NoError(t, err)
	assert.Contains(t, out, "Enqueued notify job job-1")
	assert.Equal(t, []string{"course-v1:edX+DemoX+Demo_Course"}, received.Courses)
	assert.True(t, received.NotifyPrograms)
	assert.Equal(t, 100, received.PageSize)
}

func TestNotifyCommandRequiresFilter(t *testing.T) {
	_, err := runNotifyCommand(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no job should be enqueued without a filter")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must specify a filter")
}

func TestNotifyCommandArgsFromDatabaseDisabled(t *testing.T) {
	_, err := runNotifyCommand(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no job should be enqueued with a disabled saved configuration")
	}, "--args-from-database")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

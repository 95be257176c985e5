package commands

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/shlex"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/openlms/crednotify/client"
	"github.com/openlms/crednotify/pkg/coursekey"
	"github.com/openlms/crednotify/pkg/history"
	"github.com/openlms/crednotify/pkg/logging"
	"github.com/openlms/crednotify/pkg/timeparse"
	"github.com/openlms/crednotify/store"
)

// autoWindow is how far back an --auto run reaches.
const autoWindow = 4 * time.Hour

type notifyOptions struct {
	dryRun           bool
	site             string
	courses          []string
	startDate        string
	endDate          string
	delay            float64
	pageSize         int
	auto             bool
	argsFromDatabase bool
	verbose          bool
	notifyPrograms   bool
	userIDs          []int64
}

// normalizeNotifyFlag maps underscore spellings like --user_ids, which older
// saved argument strings still use, onto the hyphenated flag names.
func normalizeNotifyFlag(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// addNotifyFlags registers the notify flag set. It is shared between the
// command itself and the re-parse of arguments saved in the database.
func addNotifyFlags(flags *pflag.FlagSet, opts *notifyOptions) {
	flags.SetNormalizeFunc(normalizeNotifyFlag)
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Just show a preview of what would happen")
	flags.StringVar(&opts.site, "site", "", "Site domain to notify for (if not specified, all sites are notified)")
	flags.StringSliceVar(&opts.courses, "courses", nil, "Send information only for specific course runs")
	flags.StringVar(&opts.startDate, "start-date", "", "Send information only for certificates or grades that have changed since this date")
	flags.StringVar(&opts.endDate, "end-date", "", "Send information only for certificates or grades that have changed before this date")
	flags.Float64Var(&opts.delay, "delay", 0, "Number of seconds to sleep between processing queries, so that we don't flood our queues")
	flags.IntVar(&opts.pageSize, "page-size", 100, "Number of items to query at once")
	flags.BoolVar(&opts.auto, "auto", false, "Use when running the command periodically; notifies for the last four hours")
	flags.BoolVar(&opts.argsFromDatabase, "args-from-database", false, "Use arguments from the saved notify configuration instead of the command line")
	flags.BoolVar(&opts.verbose, "verbose", false, "Run the change handlers in verbose mode")
	flags.BoolVar(&opts.notifyPrograms, "notify-programs", false, "Send program award notifications with course notification tasks")
	flags.Int64SliceVar(&opts.userIDs, "user-ids", nil, "Send information only for the given users")
}

func newNotifyCmd() *cobra.Command {
	opts := &notifyOptions{}
	var wait bool

	c := &cobra.Command{
		Use:   "notify",
		Short: "Replay certificate and grade changes to the credentials service",
		Long: "Replay certificate and grade changes without modifying database content:\n" +
			"the handlers that send data to the credentials service are triggered for\n" +
			"every record matching the filters, via one job on the notifier worker.\n\n" +
			"Examples:\n\n" +
			"  # Process all cert/grade changes for a given course:\n" +
			"  crednotify notify --courses course-v1:edX+DemoX+Demo_Course\n\n" +
			"  # Process all cert/grade changes in a given time range:\n" +
			"  crednotify notify --start-date 2018-06-01 --end-date 2018-07-31",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.argsFromDatabase {
				dbOpts, err := loadOptionsFromDatabase(cmd.Context(), cfg.Database.Path)
				if err != nil {
					return err
				}
				opts = dbOpts
			}
			logging.SetVerbose(opts.verbose)

			logging.Logger.Info("notify starting",
				"dry_run", opts.dryRun, "site", opts.site,
				"delay", opts.delay, "page_size", opts.pageSize,
				"from", stringOrNA(opts.startDate), "to", stringOrNA(opts.endDate),
				"notify_programs", opts.notifyPrograms, "user_ids", opts.userIDs,
				"execution", executionMode(opts.auto))

			logging.Logger.Info("courses specified", "count", len(opts.courses), "courses", opts.courses)
			keys, err := resolveCourseKeys(opts.courses)
			if err != nil {
				// An unparseable course key aborts the whole process.
				logging.Logger.Fatal("not a parseable course key", "err", err)
			}

			job, err := buildNotifyJob(opts, keys, time.Now())
			if err != nil {
				return err
			}

			queued, err := workerClient.EnqueueNotify(cmd.Context(), job)
			if err != nil {
				return handleNotRunningError(handleClientError(err, "Failed to enqueue notify job"))
			}
			cmd.Printf("Enqueued notify job %s\n", queued.ID)
			recordHistory(queued.ID, job)

			if !wait {
				return nil
			}
			return waitForNotifyJob(cmd, queued.ID)
		},
	}

	addNotifyFlags(c.Flags(), opts)
	c.Flags().BoolVar(&wait, "wait", false, "Block until the job finishes and report its outcome")
	return c
}

// resolveCourseKeys parses every course identifier, failing on the first one
// that does not parse.
func resolveCourseKeys(courses []string) ([]coursekey.Key, error) {
	keys := make([]coursekey.Key, 0, len(courses))
	for _, course := range courses {
		key, err := coursekey.Parse(course)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// buildNotifyJob resolves the option set into the job payload: parses the
// date window, applies --auto, and enforces that at least one filter is set.
func buildNotifyJob(opts *notifyOptions, keys []coursekey.Key, now time.Time) (client.NotifyJob, error) {
	var start, end *time.Time
	if opts.startDate != "" {
		t, err := timeparse.Parse(opts.startDate)
		if err != nil {
			return client.NotifyJob{}, err
		}
		start = &t
	}
	if opts.endDate != "" {
		t, err := timeparse.Parse(opts.endDate)
		if err != nil {
			return client.NotifyJob{}, err
		}
		end = &t
	}
	if opts.auto {
		e := now.UTC().Truncate(time.Hour)
		s := e.Add(-autoWindow)
		start, end = &s, &e
	}

	if len(keys) == 0 && start == nil && end == nil && len(opts.userIDs) == 0 {
		return client.NotifyJob{}, errors.New(
			"you must specify a filter (e.g. --courses, --start-date, or --user-ids)")
	}

	courses := make([]string, 0, len(keys))
	for _, key := range keys {
		courses = append(courses, key.String())
	}

	return client.NotifyJob{
		Courses:        courses,
		StartDate:      start,
		EndDate:        end,
		UserIDs:        opts.userIDs,
		Site:           opts.site,
		Delay:          opts.delay,
		PageSize:       opts.pageSize,
		DryRun:         opts.dryRun,
		Verbose:        opts.verbose,
		NotifyPrograms: opts.notifyPrograms,
	}, nil
}

// parseSavedArguments shell-splits a saved argument string and parses it
// through the notify flag set. Splitting allows quotes to wrap datetimes,
// like "2020-10-20 04:00:00", as if it were the command line.
func parseSavedArguments(arguments string) (*notifyOptions, error) {
	argv, err := shlex.Split(arguments)
	if err != nil {
		return nil, errors.Wrap(err, "failed to split saved arguments")
	}

	opts := &notifyOptions{}
	flags := pflag.NewFlagSet("notify", pflag.ContinueOnError)
	addNotifyFlags(flags, opts)
	if err := flags.Parse(argv); err != nil {
		return nil, errors.Wrap(err, "failed to parse saved arguments")
	}
	return opts, nil
}

func loadOptionsFromDatabase(ctx context.Context, dbPath string) (*notifyOptions, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	saved, err := st.CurrentNotifyConfig(ctx)
	if err != nil {
		return nil, err
	}
	if !saved.Enabled {
		return nil, errors.New("the saved notify configuration is disabled, but --args-from-database was requested")
	}
	return parseSavedArguments(saved.Arguments)
}

func waitForNotifyJob(cmd *cobra.Command, id string) error {
	job, err := workerClient.WaitForJob(cmd.Context(), id, time.Second)
	if err != nil {
		return handleClientError(err, "Failed waiting for notify job")
	}

	if job.Preview != "" {
		cmd.Println(job.Preview)
	}
	if job.State == client.JobStateFailed {
		return errors.Errorf("notify job %s failed: %s", job.ID, job.Error)
	}
	printStatusLine(cmd, color.New(color.FgGreen),
		"Handled changes for %d certificates and %d grades", job.Certificates, job.Grades)
	return nil
}

// recordHistory appends the run to the local history file. History is a
// convenience, so failures only warn.
func recordHistory(jobID string, job client.NotifyJob) {
	h, err := history.New()
	if err != nil {
		logging.Logger.Warn("failed to load run history", "err", err)
		return
	}
	if err := h.Append(jobID, notifyJobSummary(job)); err != nil {
		logging.Logger.Warn("failed to record run history", "err", err)
	}
}

// notifyJobSummary renders a job back into a flag-style one-liner for the
// history file.
func notifyJobSummary(job client.NotifyJob) string {
	var parts []string
	if len(job.Courses) > 0 {
		parts = append(parts, "--courses "+strings.Join(job.Courses, ","))
	}
	if job.StartDate != nil {
		parts = append(parts, "--start-date "+job.StartDate.Format(time.RFC3339))
	}
	if job.EndDate != nil {
		parts = append(parts, "--end-date "+job.EndDate.Format(time.RFC3339))
	}
	if len(job.UserIDs) > 0 {
		ids := make([]string, 0, len(job.UserIDs))
		for _, id := range job.UserIDs {
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		parts = append(parts, "--user-ids "+strings.Join(ids, ","))
	}
	if job.Site != "" {
		parts = append(parts, "--site "+job.Site)
	}
	if job.NotifyPrograms {
		parts = append(parts, "--notify-programs")
	}
	if job.DryRun {
		parts = append(parts, "--dry-run")
	}
	return strings.Join(parts, " ")
}

func executionMode(auto bool) string {
	if auto {
		return "auto"
	}
	return "manual"
}

func stringOrNA(s string) string {
	if s == "" {
		return "NA"
	}
	return s
}

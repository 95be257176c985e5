package worker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	clog "github.com/charmbracelet/log"
	"github.com/olekukonko/tablewriter"

	"github.com/openlms/crednotify/client"
	"github.com/openlms/crednotify/credentials"
	"github.com/openlms/crednotify/store"
)

// previewItems caps how many records the dry-run preview lists per section.
const previewItems = 10

// passingStatuses are the certificate statuses that count as passing for
// award notifications.
var passingStatuses = map[string]bool{
	"downloadable": true,
	"generating":   true,
}

type certInfo struct {
	mode   string
	status string
}

// runNotify executes one notify job: it finds the certificate and grade
// records matching the job's filters and re-emits them to the credentials
// service, or renders a preview when the job is a dry run.
func (s *Server) runNotify(ctx context.Context, id string, job client.NotifyJob) {
	// Guard again here: forEachPage cannot advance on a zero page size, and
	// not every caller comes through the HTTP intake.
	if job.PageSize <= 0 {
		job.PageSize = 100
	}

	jobLog := s.log.With("job", id)
	if job.Verbose {
		jobLog.SetLevel(clog.DebugLevel)
	}

	s.updateJob(id, func(j *client.Job) { j.State = client.JobStateRunning })
	jobLog.Info("notify job starting",
		"dry_run", job.DryRun, "site", job.Site,
		"from", timeOrNA(job.StartDate), "to", timeOrNA(job.EndDate),
		"courses", len(job.Courses), "user_ids", job.UserIDs,
		"page_size", job.PageSize, "delay", job.Delay,
		"notify_programs", job.NotifyPrograms)

	err := s.notify(ctx, jobLog, id, job)

	now := time.Now().UTC()
	s.updateJob(id, func(j *client.Job) {
		j.FinishedAt = &now
		if err != nil {
			j.State = client.JobStateFailed
			j.Error = err.Error()
		} else {
			j.State = client.JobStateSucceeded
		}
	})
	if err != nil {
		jobLog.Error("notify job failed", "err", err)
		return
	}
	jobLog.Info("notify job finished")
}

func (s *Server) notify(ctx context.Context, jobLog *clog.Logger, id string, job client.NotifyJob) error {
	var site *store.SiteConfiguration
	if job.Site != "" {
		sc, err := s.store.SiteConfigurationByDomain(ctx, job.Site)
		if err != nil {
			// Keep going unfiltered; a typoed site should not hide the run.
			jobLog.Error("no site configuration found", "site", job.Site, "err", err)
		} else {
			site = &sc
		}
	}

	filter := store.RecordFilter{
		CourseIDs: job.Courses,
		Start:     job.StartDate,
		End:       job.EndDate,
		UserIDs:   job.UserIDs,
	}

	certCount, err := s.store.CountCertificates(ctx, filter)
	if err != nil {
		return err
	}
	gradeCount, err := s.store.CountGrades(ctx, filter)
	if err != nil {
		return err
	}
	jobLog.Info("sending notifications", "certificates", certCount, "grades", gradeCount)

	if job.DryRun {
		preview, err := s.dryRunPreview(ctx, filter, certCount, gradeCount)
		if err != nil {
			return err
		}
		s.updateJob(id, func(j *client.Job) {
			j.Preview = preview
			j.Certificates = certCount
			j.Grades = gradeCount
		})
		// The preview must reach the operator even when nobody polls the
		// job record, so print it on the worker side too.
		jobLog.Info("dry run, nothing sent")
		fmt.Fprintln(s.previewOut(), preview)
		return nil
	}

	delay := time.Duration(job.Delay * float64(time.Second))
	courseCertInfo := make(map[string]certInfo)

	// Certificates first, so grade sends can reuse their mode and status.
	handled := 0
	err = forEachPage(ctx, certCount, job.PageSize, delay, func(offset int) error {
		certs, err := s.store.Certificates(ctx, filter, job.PageSize, offset)
		if err != nil {
			return err
		}
		for i, cert := range certs {
			n := offset + i + 1
			if site != nil && !site.HasOrg(certOrg(cert.CourseID)) {
				jobLog.Info("skipping certificate outside site orgs",
					"n", n, "course", cert.CourseID, "user", cert.Username)
				continue
			}
			jobLog.Debug("handling certificate", "n", n, "course", cert.CourseID, "user", cert.Username)

			event := credentials.CertificateEvent{
				Username:  cert.Username,
				CourseRun: cert.CourseID,
				Mode:      cert.Mode,
				Status:    cert.Status,
			}
			courseCertInfo[certKey(cert.UserID, cert.CourseID)] = certInfo{mode: cert.Mode, status: cert.Status}

			if err := s.notifier.NotifyCertificateChange(ctx, event); err != nil {
				jobLog.Error("failed to send certificate change",
					"course", cert.CourseID, "user", cert.Username, "err", err)
				continue
			}
			if job.NotifyPrograms && passingStatuses[cert.Status] {
				if err := s.notifier.AwardCourseCertificate(ctx, event); err != nil {
					jobLog.Error("failed to send certificate award",
						"course", cert.CourseID, "user", cert.Username, "err", err)
					continue
				}
			}
			handled++
		}
		return nil
	})
	if err != nil {
		return err
	}
	certsHandled := handled

	// Then grades.
	handled = 0
	err = forEachPage(ctx, gradeCount, job.PageSize, delay, func(offset int) error {
		grades, err := s.store.Grades(ctx, filter, job.PageSize, offset)
		if err != nil {
			return err
		}
		for i, grade := range grades {
			n := offset + i + 1
			if site != nil && !site.HasOrg(certOrg(grade.CourseID)) {
				jobLog.Info("skipping grade outside site orgs",
					"n", n, "course", grade.CourseID, "user", grade.UserID)
				continue
			}
			jobLog.Debug("handling grade", "n", n, "course", grade.CourseID, "user", grade.UserID)

			info := courseCertInfo[certKey(grade.UserID, grade.CourseID)]
			if !gradeInteresting(grade, info) {
				jobLog.Debug("grade not interesting, skipping",
					"course", grade.CourseID, "user", grade.UserID)
				continue
			}

			err := s.notifier.SendGrade(ctx, credentials.GradeEvent{
				Username:     grade.Username,
				CourseRun:    grade.CourseID,
				LetterGrade:  grade.LetterGrade,
				PercentGrade: grade.PercentGrade,
				Verified:     info.mode == "verified",
			})
			if err != nil {
				jobLog.Error("failed to send grade",
					"course", grade.CourseID, "user", grade.UserID, "err", err)
				continue
			}
			handled++
		}
		return nil
	})
	if err != nil {
		return err
	}
	gradesHandled := handled

	s.updateJob(id, func(j *client.Job) {
		j.Certificates = certsHandled
		j.Grades = gradesHandled
	})
	return nil
}

// gradeInteresting reports whether a grade is worth sending: the run produced
// a letter grade, or the user holds a passing certificate for it.
func gradeInteresting(grade store.Grade, info certInfo) bool {
	return grade.LetterGrade != "" || passingStatuses[info.status]
}

// forEachPage walks offsets 0, pageSize, 2*pageSize, ... below total,
// sleeping between pages so the queries do not flood the database.
func forEachPage(ctx context.Context, total, pageSize int, delay time.Duration, fn func(offset int) error) error {
	for offset := 0; offset < total; offset += pageSize {
		if delay > 0 && offset > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if err := fn(offset); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) dryRunPreview(ctx context.Context, filter store.RecordFilter, certCount, gradeCount int) (string, error) {
	var b strings.Builder
	b.WriteString("DRY-RUN: This command would have handled changes for...\n")

	certs, err := s.store.Certificates(ctx, filter, previewItems, 0)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "%d Certificates:\n", certCount)
	table := tablewriter.NewWriter(&b)
	table.SetHeader([]string{"Course Run", "User"})
	for _, cert := range certs {
		table.Append([]string{cert.CourseID, cert.Username})
	}
	table.Render()
	if certCount > previewItems {
		fmt.Fprintf(&b, "(+ %d more)\n", certCount-previewItems)
	}

	grades, err := s.store.Grades(ctx, filter, previewItems, 0)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "%d Grades:\n", gradeCount)
	table = tablewriter.NewWriter(&b)
	table.SetHeader([]string{"Course Run", "User"})
	for _, grade := range grades {
		table.Append([]string{grade.CourseID, strconv.FormatInt(grade.UserID, 10)})
	}
	table.Render()
	if gradeCount > previewItems {
		fmt.Fprintf(&b, "(+ %d more)\n", gradeCount-previewItems)
	}

	return b.String(), nil
}

func certKey(userID int64, courseID string) string {
	return strconv.FormatInt(userID, 10) + "|" + courseID
}

// certOrg extracts the organization from a course-run identifier without
// re-parsing it; the CLI already validated the keys.
func certOrg(courseID string) string {
	rest := strings.TrimPrefix(courseID, "course-v1:")
	if i := strings.IndexAny(rest, "+/"); i >= 0 {
		return rest[:i]
	}
	return rest
}

func timeOrNA(t *time.Time) string {
	if t == nil {
		return "NA"
	}
	return t.Format(time.RFC3339)
}

// Package runner drives one scan: list and extract, apply actions in live
// mode, write the reports and record the run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"inboxcleaner/internal/config"
	"inboxcleaner/internal/label"
	"inboxcleaner/internal/model"
	"inboxcleaner/internal/report"
	"inboxcleaner/internal/scan"
	"inboxcleaner/internal/store"
)

// progressEvery controls how often scan progress is logged.
const progressEvery = 50

// Mailbox is everything a run needs from the provider.
type Mailbox interface {
	scan.Source
	label.Service
}

// Ledger records finished runs. It may be nil.
type Ledger interface {
	SaveRun(ctx context.Context, run store.Run, candidates []model.Candidate) error
}

type Runner struct {
	cfg     config.Config
	mailbox Mailbox
	ledger  Ledger
	source  string
	out     io.Writer
	log     *logrus.Entry

	now func() time.Time
}

// Outcome is what a finished run produced.
type Outcome struct {
	Run    store.Run
	Report *scan.Report
	Files  report.Files
}

// New prepares a run. source names the mailbox in the ledger, out receives
// the console listing.
func New(cfg config.Config, mailbox Mailbox, ledger Ledger, source string, out io.Writer, log *logrus.Entry) *Runner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Runner{
		cfg:     cfg,
		mailbox: mailbox,
		ledger:  ledger,
		source:  source,
		out:     out,
		log:     log.WithField("pkg", "runner"),
		now:     time.Now,
	}
}

// Run scans the mailbox and acts on the result. A listing failure is
// returned before anything is written. When ctx is cancelled mid-scan the
// partial results are still reported and recorded, no actions are taken,
// and the context error is returned.
func (r *Runner) Run(ctx context.Context) (*Outcome, error) {
	run := store.Run{
		ID:        uuid.NewString(),
		StartedAt: r.now(),
		Source:    r.source,
		Query:     r.cfg.SearchQuery,
		Live:      r.cfg.Live,
	}
	log := r.log.WithField("run", run.ID)

	if !r.cfg.Live {
		fmt.Fprintln(r.out, "DRY RUN MODE - no actions will be taken")
	}
	log.WithFields(logrus.Fields{"query": r.cfg.SearchQuery, "max": r.cfg.MaxEmails}).Info("Scanning emails")

	scanner := scan.New(r.mailbox, scan.Options{
		Query:       r.cfg.SearchQuery,
		MaxMessages: r.cfg.MaxEmails,
		Workers:     r.cfg.Workers,
		Allow:       r.cfg.Whitelist,
		Deny:        r.cfg.Blacklist,
	}, log)
	scanner.OnProgress = func(p scan.Progress) {
		if p.Done%progressEvery == 0 || p.Done == p.Total {
			log.WithFields(logrus.Fields{"done": p.Done, "total": p.Total}).Info("Scan progress")
		}
	}

	rep, scanErr := scanner.Scan(ctx)
	if rep == nil {
		return nil, scanErr
	}
	if scanErr != nil {
		log.WithError(scanErr).Warn("Scan interrupted, reporting partial results")
	}
	logFailures(log, rep)

	if r.cfg.Live && scanErr == nil {
		rep.Stats.ActionsTaken = r.applyActions(ctx, log, rep)
	} else if len(rep.Candidates)+len(rep.Flagged) > 0 {
		log.Info("Dry run, no labels applied; use --live to apply them")
	}

	report.WriteSummary(r.out, rep.Stats, len(rep.Candidates))
	report.WriteListing(r.out, rep.Candidates)

	files, err := report.WriteFiles(r.cfg.OutputDir, rep.Candidates)
	if err != nil {
		log.WithError(err).Error("Writing reports failed")
	} else {
		fmt.Fprintf(r.out, "Results saved to %s and %s\n", files.Text, files.HTML)
		if len(rep.Candidates) > 0 {
			fmt.Fprintf(r.out, "Open %s in a browser for clickable unsubscribe links.\n", files.HTML)
		}
	}

	run.FinishedAt = r.now()
	run.Stats = rep.Stats
	if r.ledger != nil {
		// Recording must survive a cancelled scan.
		if err := r.ledger.SaveRun(context.WithoutCancel(ctx), run, rep.Candidates); err != nil {
			log.WithError(err).Error("Recording run failed")
		} else {
			log.Debug("Run recorded")
		}
	}

	return &Outcome{Run: run, Report: rep, Files: files}, scanErr
}

// applyActions labels every candidate and deny-listed message, then archives
// or trashes it when configured. It returns the number of provider calls
// that succeeded.
func (r *Runner) applyActions(ctx context.Context, log *logrus.Entry, rep *scan.Report) int {
	var ids []string
	for _, c := range rep.Candidates {
		ids = append(ids, c.MessageID)
	}
	for _, f := range rep.Flagged {
		ids = append(ids, f.MessageID)
	}
	if len(ids) == 0 {
		return 0
	}

	applier := label.NewApplier(r.mailbox, log)
	labelID, err := applier.EnsureLabel(ctx, r.cfg.LabelName)
	if err != nil {
		log.WithError(err).Error("Cannot prepare label, no actions taken")
		return 0
	}

	taken := 0
	for _, id := range ids {
		if err := applier.Apply(ctx, id, labelID); err != nil {
			log.WithError(err).WithField("id", id).Warn("Labeling failed")
			continue
		}
		taken++

		switch {
		case r.cfg.AutoDelete:
			err = applier.Trash(ctx, id)
		case r.cfg.AutoArchive:
			err = applier.Archive(ctx, id)
		default:
			continue
		}
		if err != nil {
			log.WithError(err).WithField("id", id).Warn("Follow-up action failed")
			continue
		}
		taken++
	}
	log.WithFields(logrus.Fields{"label": r.cfg.LabelName, "actions": taken}).Info("Actions applied")
	return taken
}

func logFailures(log *logrus.Entry, rep *scan.Report) {
	for _, res := range rep.Errors() {
		entry := log.WithError(res.Err).WithField("id", res.MessageID)
		var perr *model.ProviderError
		if errors.As(res.Err, &perr) {
			entry = entry.WithFields(logrus.Fields{
				"status":       perr.Code,
				"rate_limited": perr.RateLimited(),
			})
		}
		entry.Warn("Message skipped")
	}
}

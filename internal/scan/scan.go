// Package scan lists messages from a mailbox source and extracts unsubscribe
// candidates from each of them.
package scan

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"inboxcleaner/internal/extract"
	"inboxcleaner/internal/model"
	"inboxcleaner/internal/util"
)

// SkipAllowList is the Result.Skipped reason for allow-listed senders.
const SkipAllowList = "allow-list"

// Source declares the mailbox capabilities the scanner needs. The query is
// passed through untouched; its grammar belongs to the provider.
type Source interface {
	ListMessageIDs(ctx context.Context, query string, max int) ([]string, error)
	GetMessage(ctx context.Context, id string) (model.Message, error)
}

// Options configures one scan. There are no implicit defaults: a zero
// MaxMessages lists nothing and Workers below 1 means sequential.
type Options struct {
	Query       string
	MaxMessages int
	Workers     int
	Allow       []string // senders never reported
	Deny        []string // senders flagged even without a descriptor
}

type Progress struct {
	Done  int
	Total int
}

// Report holds every per-message result in listing order together with the
// derived candidates and counters.
type Report struct {
	Results    []model.Result
	Candidates []model.Candidate
	Flagged    []model.Result
	Stats      model.ScanStats
}

// Errors returns the results that failed.
func (r *Report) Errors() []model.Result {
	var out []model.Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

type Scanner struct {
	src   Source
	opts  Options
	log   *logrus.Entry
	allow senderSet
	deny  senderSet

	// OnProgress, when set, is called after each message. With more than one
	// worker it is called concurrently.
	OnProgress func(Progress)
}

func New(src Source, opts Options, log *logrus.Entry) *Scanner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Scanner{
		src:   src,
		opts:  opts,
		log:   log.WithField("pkg", "scan"),
		allow: newSenderSet(opts.Allow),
		deny:  newSenderSet(opts.Deny),
	}
}

// Scan lists up to MaxMessages ids matching the query and processes each one
// exactly once. A listing failure aborts the scan; per-message failures are
// recorded in the report and the scan carries on. When ctx is cancelled the
// partial report is returned along with ctx.Err().
func (s *Scanner) Scan(ctx context.Context) (*Report, error) {
	if s.opts.MaxMessages <= 0 {
		return &Report{}, nil
	}
	ids, err := s.src.ListMessageIDs(ctx, s.opts.Query, s.opts.MaxMessages)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if len(ids) > s.opts.MaxMessages {
		ids = ids[:s.opts.MaxMessages]
	}
	s.log.WithFields(logrus.Fields{"query": s.opts.Query, "messages": len(ids)}).Debug("Listed messages")

	results := make([]model.Result, len(ids))
	var done atomic.Int64
	step := func(i int, id string) {
		results[i] = s.scanOne(ctx, id)
		n := int(done.Add(1))
		if s.OnProgress != nil {
			s.OnProgress(Progress{Done: n, Total: len(ids)})
		}
	}

	if s.opts.Workers <= 1 {
		for i, id := range ids {
			step(i, id)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(s.opts.Workers)
		for i, id := range ids {
			g.Go(func() error {
				step(i, id)
				return nil
			})
		}
		_ = g.Wait()
	}

	rep := collect(results)
	return rep, ctx.Err()
}

func collect(results []model.Result) *Report {
	rep := &Report{Results: results}
	for _, r := range results {
		if r.Err != nil {
			rep.Stats.Errors++
			continue
		}
		rep.Stats.Scanned++
		switch {
		case r.Candidate != nil:
			rep.Candidates = append(rep.Candidates, *r.Candidate)
			rep.Stats.AddCandidate(*r.Candidate)
		case r.Flagged:
			rep.Flagged = append(rep.Flagged, r)
		}
	}
	return rep
}

func (s *Scanner) scanOne(ctx context.Context, id string) (res model.Result) {
	res.MessageID = id
	defer func() {
		if r := recover(); r != nil {
			res = model.Result{MessageID: id, Err: fmt.Errorf("process message %s: panic: %v", id, r)}
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	msg, err := s.src.GetMessage(ctx, id)
	if err != nil {
		res.Err = fmt.Errorf("get message %s: %w", id, err)
		return res
	}
	res.Sender = extract.Sender(msg)
	res.Subject = extract.Subject(msg)

	sender := util.NormalizeSender(res.Sender)
	if s.allow.match(sender) {
		res.Skipped = SkipAllowList
		s.log.WithField("id", id).Debug("Sender is allow-listed")
		return res
	}
	if c, ok := extract.Message(msg); ok {
		res.Candidate = &c
		return res
	}
	if s.deny.match(sender) {
		res.Flagged = true
	}
	return res
}

// Package leadsink fans submission records out to the submission log and
// the CRM mirrors.
package leadsink

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadform/internal/model"
	"github.com/sells-group/leadform/internal/store"
	"github.com/sells-group/leadform/pkg/notion"
	"github.com/sells-group/leadform/pkg/salesforce"
)

// Sink receives submission records.
type Sink interface {
	Name() string
	Record(ctx context.Context, s model.Submission) error
}

// Fanout delivers each record to every sink concurrently. A failing sink
// does not stop the others; all failures are joined into the returned error.
type Fanout struct {
	Sinks []Sink
	// Timeout bounds each sink call; zero means no extra bound.
	Timeout time.Duration
}

// New returns a fanout over the non-nil sinks.
func New(timeout time.Duration, sinks ...Sink) *Fanout {
	f := &Fanout{Timeout: timeout}
	for _, s := range sinks {
		if s != nil {
			f.Sinks = append(f.Sinks, s)
		}
	}
	return f
}

// Record delivers s to every sink.
func (f *Fanout) Record(ctx context.Context, s model.Submission) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, sink := range f.Sinks {
		g.Go(func() error {
			sctx := ctx
			if f.Timeout > 0 {
				var cancel context.CancelFunc
				sctx, cancel = context.WithTimeout(ctx, f.Timeout)
				defer cancel()
			}
			if err := sink.Record(sctx, s); err != nil {
				zap.L().Warn("leadsink: record failed",
					zap.String("sink", sink.Name()),
					zap.String("submission", s.ID),
					zap.Error(err),
				)
				mu.Lock()
				errs = append(errs, eris.Wrapf(err, "leadsink: %s", sink.Name()))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Store writes records to the submission log.
type Store struct {
	Store store.Store
}

func (Store) Name() string { return "store" }

func (s Store) Record(ctx context.Context, sub model.Submission) error {
	return s.Store.SaveSubmission(ctx, sub)
}

// Notion mirrors records into a lead database, one page per email.
type Notion struct {
	Client     notion.Client
	DatabaseID string
}

func (Notion) Name() string { return "notion" }

func (n Notion) Record(ctx context.Context, sub model.Submission) error {
	id, created, err := notion.UpsertLead(ctx, n.Client, n.DatabaseID, sub)
	if err != nil {
		return err
	}
	zap.L().Debug("leadsink: notion lead mirrored", zap.String("page", id), zap.Bool("created", created))
	return nil
}

// Salesforce mirrors successful submissions as Lead records. Failed
// attempts never reached the webhook and are not mirrored.
type Salesforce struct {
	Client salesforce.Client
}

func (Salesforce) Name() string { return "salesforce" }

func (s Salesforce) Record(ctx context.Context, sub model.Submission) error {
	if sub.Status != model.SubmissionSubmitted {
		return nil
	}
	id, created, err := salesforce.UpsertLead(ctx, s.Client, sub)
	if err != nil {
		return err
	}
	zap.L().Debug("leadsink: salesforce lead mirrored", zap.String("lead", id), zap.Bool("created", created))
	return nil
}

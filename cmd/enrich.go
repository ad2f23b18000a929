package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadform/internal/enrich"
	"github.com/sells-group/leadform/internal/model"
	"github.com/sells-group/leadform/internal/stage"
	"github.com/sells-group/leadform/internal/store"
	"github.com/sells-group/leadform/internal/wizard"
)

var (
	enrichBatchInput  string
	enrichBatchOutput string
	enrichBatchLimit  int
)

var enrichCmd = &cobra.Command{
	Use:   "enrich <email>",
	Short: "Resolve the company behind an email address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		resolver, st, err := initLookup(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		row := lookupOne(ctx, resolver, args[0])
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(row)
	},
}

var enrichBatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Resolve companies for every email in a CSV file",
	Long: `Reads a CSV with an "email" column, resolves each address concurrently,
and writes one result row per input row.

Examples:
  leadform enrich batch --input leads.csv --output enriched.csv
  leadform enrich batch --input leads.csv --limit 10`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rows, err := readEmailCSV(enrichBatchInput)
		if err != nil {
			return err
		}
		if enrichBatchLimit > 0 && len(rows) > enrichBatchLimit {
			rows = rows[:enrichBatchLimit]
		}

		resolver, st, err := initLookup(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		results := processLookups(ctx, rows, cfg.Batch.MaxConcurrentLookups, resolver)

		out, err := csvutil.Marshal(results)
		if err != nil {
			return eris.Wrap(err, "enrich batch: encode results")
		}
		if enrichBatchOutput == "" {
			_, err = cmd.OutOrStdout().Write(out)
			return err
		}
		if err := os.WriteFile(enrichBatchOutput, out, 0o644); err != nil {
			return eris.Wrapf(err, "enrich batch: write %s", enrichBatchOutput)
		}
		zap.L().Info("wrote results", zap.String("path", enrichBatchOutput), zap.Int("rows", len(results)))
		return nil
	},
}

func init() {
	enrichBatchCmd.Flags().StringVar(&enrichBatchInput, "input", "", "CSV file with an email column")
	enrichBatchCmd.Flags().StringVar(&enrichBatchOutput, "output", "", "result CSV path (default stdout)")
	enrichBatchCmd.Flags().IntVar(&enrichBatchLimit, "limit", 0, "max number of rows to process (0 = all)")
	_ = enrichBatchCmd.MarkFlagRequired("input")

	enrichCmd.AddCommand(enrichBatchCmd)
	rootCmd.AddCommand(enrichCmd)
}

// initLookup builds a resolver backed by the configured store's company
// cache. Callers close the returned store.
func initLookup(ctx context.Context) (*enrich.Resolver, store.Store, error) {
	if err := cfg.Validate("enrich"); err != nil {
		return nil, nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return initResolver(st), st, nil
}

// emailRow is one input row of a batch lookup.
type emailRow struct {
	Email string `csv:"email"`
}

// lookupRow is one resolved result.
type lookupRow struct {
	Email        string  `csv:"email" json:"email"`
	Status       string  `csv:"status" json:"status"`
	Size         string  `csv:"size" json:"size,omitempty"`
	Funding      float64 `csv:"funding" json:"funding,omitempty"`
	Stage        string  `csv:"stage" json:"stage"`
	MeetingStage string  `csv:"meeting_stage" json:"meeting_stage"`
	Error        string  `csv:"error,omitempty" json:"error,omitempty"`
}

const (
	lookupFound   = "found"
	lookupNoData  = "no_data"
	lookupFree    = "free_email"
	lookupInvalid = "invalid"
	lookupFailed  = "failed"
)

func readEmailCSV(path string) ([]emailRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich batch: read %s", path)
	}
	var rows []emailRow
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrapf(err, "enrich batch: parse %s", path)
	}
	out := rows[:0]
	for _, r := range rows {
		r.Email = strings.TrimSpace(r.Email)
		if r.Email != "" {
			out = append(out, r)
		}
	}
	return out, nil
}

// lookupOne resolves a single email and classifies the result under both
// stage profiles.
func lookupOne(ctx context.Context, resolver wizard.Resolver, email string) lookupRow {
	row := lookupRow{Email: email}
	profile, err := resolver.Resolve(ctx, email)
	switch {
	case errors.Is(err, enrich.ErrInvalidEmail):
		row.Status = lookupInvalid
	case errors.Is(err, enrich.ErrNoCompanyData):
		row.Status = lookupNoData
	case err != nil:
		row.Status = lookupFailed
		row.Error = err.Error()
	case profile.Empty() && enrich.IsFreeEmailDomain(model.EmailDomain(email)):
		row.Status = lookupFree
	case profile.Empty():
		row.Status = lookupNoData
	default:
		row.Status = lookupFound
		row.Size = profile.Size
		row.Funding = profile.Funding
	}
	row.Stage = string(stage.Portal.Profile(profile))
	row.MeetingStage = string(stage.Meeting.Profile(profile))
	return row
}

// processLookups resolves rows concurrently. Results keep input order; a
// failed lookup is recorded on its row and does not stop the batch.
func processLookups(ctx context.Context, rows []emailRow, concurrency int, resolver wizard.Resolver) []lookupRow {
	if len(rows) == 0 {
		zap.L().Info("no emails to enrich")
		return nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("emails", len(rows)),
		zap.Int("concurrency", concurrency),
	)

	results := make([]lookupRow, len(rows))
	var found, missed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, r := range rows {
		g.Go(func() error {
			res := lookupOne(gctx, resolver, r.Email)
			if res.Status == lookupFound {
				found.Add(1)
			} else {
				missed.Add(1)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("batch complete",
		zap.Int64("found", found.Load()),
		zap.Int64("missed", missed.Load()),
		zap.Int("total", len(rows)),
	)
	return results
}

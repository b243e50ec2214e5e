// Package cli holds the catalogctl maintenance commands. Commands talk to
// the catalog through Engine so they run the same against a live database
// or a test double.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	catalogapp "github.com/erp/catalog-engine/internal/application/catalog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// Engine is the catalog surface the commands drive
type Engine interface {
	Reindex(ctx context.Context, recreate bool) (*catalogapp.ReindexReport, error)
	// RecomputeSortOrder recomputes one category, or every category when
	// categoryID is zero. It returns the number of categories processed
	// and the products whose order moved.
	RecomputeSortOrder(ctx context.Context, categoryID int64) (int, []int64, error)
	SetRate(ctx context.Context, change catalogapp.RateChange) (*RateOutcome, error)
	Close(ctx context.Context) error
}

// RateOutcome reports how a rate change was delivered
type RateOutcome struct {
	Published bool                         `json:"published"`
	Result    *catalogapp.RateChangeResult `json:"result,omitempty"`
}

// Opener connects to the catalog
type Opener func(ctx context.Context) (Engine, error)

// RootOptions holds global flags for all commands
type RootOptions struct {
	Format string
	open   Opener
}

// ValidFormats lists the accepted --format values
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the catalogctl root command
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Catalog engine maintenance",
		Long:          "Run catalog maintenance against the configured database and search sink.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range ValidFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(newReindexCommand(opts))
	cmd.AddCommand(newRecomputeSortCommand(opts))
	cmd.AddCommand(newSetRateCommand(opts))
	return cmd
}

// withEngine opens the engine, runs fn and closes it. A close failure is
// reported only when fn succeeded.
func (o *RootOptions) withEngine(cmd *cobra.Command, fn func(ctx context.Context, e Engine) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := o.open(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		if cerr := e.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = fmt.Errorf("close: %w", cerr)
		}
	}()
	return fn(ctx, e)
}

func (o *RootOptions) print(w io.Writer, v any, text string) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}

func newReindexCommand(opts *RootOptions) *cobra.Command {
	var recreate bool
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the product search index from catalog storage",
		Long: `Rebuild the product search index from catalog storage.

With --recreate the index is dropped first, which also removes documents of
products that no longer exist.

Examples:
  catalogctl reindex
  catalogctl reindex --recreate --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd, func(ctx context.Context, e Engine) error {
				report, err := e.Reindex(ctx, recreate)
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), report, fmt.Sprintf(
					"reindexed %d products in %d batches (%s)", report.Products, report.Batches, report.Duration))
			})
		},
	}
	cmd.Flags().BoolVar(&recreate, "recreate", false, "drop and recreate the index first")
	return cmd
}

func newRecomputeSortCommand(opts *RootOptions) *cobra.Command {
	var categoryID int64
	cmd := &cobra.Command{
		Use:   "recompute-sort",
		Short: "Recompute default product order from sales",
		Long: `Recompute default product order from sales counts. Pinned products
keep their slot.

Examples:
  catalogctl recompute-sort
  catalogctl recompute-sort --category 12`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if categoryID < 0 {
				return fmt.Errorf("invalid category %d", categoryID)
			}
			return opts.withEngine(cmd, func(ctx context.Context, e Engine) error {
				categories, changed, err := e.RecomputeSortOrder(ctx, categoryID)
				if err != nil {
					return err
				}
				out := struct {
					Categories        int     `json:"categories"`
					ChangedProductIDs []int64 `json:"changed_product_ids"`
				}{categories, changed}
				if out.ChangedProductIDs == nil {
					out.ChangedProductIDs = []int64{}
				}
				return opts.print(cmd.OutOrStdout(), out, fmt.Sprintf(
					"recomputed %d categories, %d products moved", categories, len(changed)))
			})
		},
	}
	cmd.Flags().Int64Var(&categoryID, "category", 0, "only this category (default all)")
	return cmd
}

func newSetRateCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-rate <currency> <rate>",
		Short: "Change a currency exchange rate",
		Long: `Change the exchange rate of a currency to the default currency.

When the rate topic is configured the change is published there and applied
by the running servers; otherwise it is applied directly.

Examples:
  catalogctl set-rate usd 41.55`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rate, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid rate %q", args[1])
			}
			change := catalogapp.RateChange{Currency: args[0], Rate: rate}
			return opts.withEngine(cmd, func(ctx context.Context, e Engine) error {
				outcome, err := e.SetRate(ctx, change)
				if err != nil {
					return err
				}
				text := fmt.Sprintf("published %s rate %s", change.Currency, rate)
				if !outcome.Published && outcome.Result != nil {
					text = fmt.Sprintf("%s rate %s: %d products repriced, %d search documents updated",
						outcome.Result.Currency, outcome.Result.Rate, outcome.Result.RepricedProducts, outcome.Result.SinkDocsUpdated)
					if outcome.Result.SinkUpdateFailed {
						text += " (search update failed, run reindex)"
					}
				}
				return opts.print(cmd.OutOrStdout(), outcome, text)
			})
		},
	}
	return cmd
}

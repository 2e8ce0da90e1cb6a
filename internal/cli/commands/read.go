package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapview/internal/session"
	"github.com/leapstack-labs/leapview/pkg/navigation"
)

// ReadOptions holds options for the read command.
type ReadOptions struct {
	At    string
	From  string
	To    string
	All   bool
	Limit int
}

// NewReadCommand creates the read command.
func NewReadCommand() *cobra.Command {
	var (
		flags sourceFlags
		opts  ReadOptions
	)
	cmd := &cobra.Command{
		Use:   "read <file|manifest|@dataset>...",
		Short: "Print rows at a position, in a range or the whole dataset",
		Long: `Print rows of a dataset.

Positions are written as a row number (42), a timestamp in milliseconds
(t:1700000000000) or a category (c:name). Without --at, --from/--to or
--all the window at the start of the dataset is printed.`,
		Example: `  leapview read events.csv --at 500 --limit 10
  leapview read events.csv --from t:1700000000000 --to t:1700003600000
  leapview read @sensors --all -o csv > sensors.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			return runRead(cmd.Context(), c, args, flags, opts)
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&opts.At, "at", "", "Position to read around")
	cmd.Flags().StringVar(&opts.From, "from", "", "Range start (inclusive)")
	cmd.Flags().StringVar(&opts.To, "to", "", "Range end (exclusive)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "Read every row")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "Maximum rows to print (0 for no limit)")
	cmd.MarkFlagsMutuallyExclusive("at", "from")
	cmd.MarkFlagsMutuallyExclusive("at", "all")
	cmd.MarkFlagsMutuallyExclusive("from", "all")
	cmd.MarkFlagsRequiredTogether("from", "to")
	return cmd
}

func runRead(ctx context.Context, c *CommandContext, args []string, flags sourceFlags, opts ReadOptions) error {
	if opts.Limit < 0 {
		return errors.New("--limit must not be negative")
	}
	ds, err := c.resolveDataset(ctx, args, flags)
	if err != nil {
		return err
	}
	sess, src, err := c.open(ctx, ds)
	if err != nil {
		return err
	}
	defer sess.Close()

	var rec arrow.Record
	switch {
	case opts.All:
		rec, err = src.QueryAll(ctx)
	case opts.From != "":
		var r navigation.Range
		if r, err = parseRange(opts.From, opts.To); err != nil {
			return err
		}
		sess.Engine().SetRange(&r)
		rec, err = sess.Selection(ctx)
	default:
		if opts.At != "" {
			pos, perr := navigation.ParsePosition(opts.At)
			if perr != nil {
				return perr
			}
			if err := sess.Engine().SeekTo(pos); err != nil {
				return err
			}
		}
		rec, err = rowsAtPosition(ctx, sess, opts.Limit)
	}
	if err != nil {
		return err
	}
	defer rec.Release()

	rec = limitRecord(rec, opts.Limit)
	defer rec.Release()
	return c.Renderer.Record(rec)
}

func parseRange(from, to string) (navigation.Range, error) {
	start, err := navigation.ParsePosition(from)
	if err != nil {
		return navigation.Range{}, fmt.Errorf("--from: %w", err)
	}
	end, err := navigation.ParsePosition(to)
	if err != nil {
		return navigation.Range{}, fmt.Errorf("--to: %w", err)
	}
	r := navigation.Range{Start: start, End: end}
	if !r.SameKind() {
		return navigation.Range{}, fmt.Errorf("range %s mixes position kinds", r)
	}
	return r, nil
}

// rowsAtPosition returns rows at the engine's position. With a limit, a row
// position reads the limit rows starting at that row; other positions read
// the window around them.
func rowsAtPosition(ctx context.Context, sess *session.Session, limit int) (arrow.Record, error) {
	pos := sess.Engine().Context().Position
	if limit > 0 && pos.Kind == navigation.KindSequential {
		src := sess.Source()
		if src == nil {
			return nil, session.ErrNoSource
		}
		return src.QueryRange(ctx, navigation.Range{Start: pos, End: navigation.Sequential(pos.Index + limit)})
	}
	return sess.Current(ctx)
}

// limitRecord returns at most limit rows of rec as a new reference.
func limitRecord(rec arrow.Record, limit int) arrow.Record {
	if limit <= 0 || rec.NumRows() <= int64(limit) {
		rec.Retain()
		return rec
	}
	return rec.NewSlice(0, int64(limit))
}

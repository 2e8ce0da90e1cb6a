package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapview/internal/cli/output"
	"github.com/leapstack-labs/leapview/internal/session"
	"github.com/leapstack-labs/leapview/internal/state"
	"github.com/leapstack-labs/leapview/pkg/cache"
	"github.com/leapstack-labs/leapview/pkg/navigation"
	"github.com/leapstack-labs/leapview/pkg/source"
)

const scrubPrompt = "leapview> "

var errNotSaved = errors.New("bookmarks need a saved dataset: open it as @name or pass --save <name>")

// cacheSource is implemented by sources backed by a chunk cache.
type cacheSource interface {
	CacheStats() cache.Stats
}

// NewScrubCommand creates the interactive scrub command.
func NewScrubCommand() *cobra.Command {
	var (
		flags    sourceFlags
		saveName string
		rows     int
	)
	cmd := &cobra.Command{
		Use:     "scrub <file|manifest|@dataset>...",
		Aliases: []string{"open"},
		Short:   "Step through a dataset interactively",
		Long: `Open a dataset and move through it from a prompt: step row by row,
jump to positions, select ranges and bookmark places to come back to.

Saved datasets (@name, or --save) remember the last position between
sessions. Type help at the prompt for the list of commands.`,
		Example: `  leapview scrub events.csv
  leapview scrub @sensors
  leapview scrub logs-*.csv --save logs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			return runScrub(cmd.Context(), c, args, flags, saveName, rows)
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&saveName, "save", "", "Save the dataset under this name before opening it")
	cmd.Flags().IntVar(&rows, "rows", 10, "Rows printed by show")
	return cmd
}

func runScrub(ctx context.Context, c *CommandContext, args []string, flags sourceFlags, saveName string, rows int) error {
	ds, err := c.resolveDataset(ctx, args, flags)
	if err != nil {
		return err
	}
	sess, src, err := c.open(ctx, ds)
	if err != nil {
		return err
	}
	defer sess.Close()

	s := &scrubber{ctx: ctx, sess: sess, src: src, r: c.Renderer, rows: rows, logger: c.Logger}
	if ds.Stored != nil || saveName != "" {
		store, err := c.OpenStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		s.store = store
		s.ds = ds.Stored
		if saveName != "" {
			if err := validateDatasetName(saveName); err != nil {
				return err
			}
			absPaths(ds.Files)
			s.ds = &state.Dataset{Name: saveName, Kind: ds.Kind(), Files: ds.Files}
			if err := store.SaveDataset(ctx, s.ds); err != nil {
				return err
			}
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          scrubPrompt,
		HistoryFile:     filepath.Join(filepath.Dir(c.Cfg.StatePath), "scrub_history"),
		AutoComplete:    s.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		Stdout:          c.Renderer.Writer(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize prompt: %w", err)
	}
	defer func() { _ = rl.Close() }()

	c.Renderer.Printf("%s: %s\n", src.SourceName(), output.Count(sess.Engine().Context().TotalRows, "row"))
	c.Renderer.Muted("Type help for commands, quit to exit")
	s.start()
	defer s.finish()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		quit, err := s.exec(line)
		if err != nil {
			s.report(err)
		}
		if quit {
			return nil
		}
	}
}

// scrubber executes prompt commands against a session. It subscribes to
// the session's engine and prints the new position after every move.
type scrubber struct {
	ctx    context.Context
	sess   *session.Session
	src    source.DataSource
	r      *output.Renderer
	logger *slog.Logger
	rows   int

	// store and ds are set for saved datasets.
	store *state.SQLiteStore
	ds    *state.Dataset
}

// OnNavigationChange implements navigation.Subscriber.
func (s *scrubber) OnNavigationChange(c navigation.Context) {
	s.r.Muted(statusLine(c))
}

func statusLine(c navigation.Context) string {
	line := fmt.Sprintf("at %s of %s", describePosition(c.Position), output.Count(c.TotalRows, "row"))
	if c.Range != nil {
		line += fmt.Sprintf(", range %s", c.Range)
	}
	return line
}

// start subscribes to the engine and, for saved datasets, returns to the
// last position.
func (s *scrubber) start() {
	navigation.AddSubscriber(s.sess.Engine(), s)
	if s.store == nil || s.ds == nil {
		return
	}
	if err := s.store.MarkOpened(s.ctx, s.ds.ID); err != nil {
		s.logger.Warn("marking dataset opened", slog.Any("error", err))
	}
	pos, ok, err := s.store.LastPosition(s.ctx, s.ds.ID)
	switch {
	case err != nil:
		s.logger.Warn("reading last position", slog.Any("error", err))
	case ok:
		if err := s.sess.Engine().SeekTo(pos); err != nil {
			s.logger.Debug("last position no longer valid", slog.String("position", pos.String()), slog.Any("error", err))
		}
	}
}

// finish stores the current position of a saved dataset.
func (s *scrubber) finish() {
	if s.store == nil || s.ds == nil {
		return
	}
	pos := s.sess.Engine().Context().Position
	if err := s.store.SaveLastPosition(context.WithoutCancel(s.ctx), s.ds.ID, pos); err != nil {
		s.logger.Warn("saving last position", slog.Any("error", err))
	}
}

func (s *scrubber) report(err error) {
	if errors.Is(err, navigation.ErrAtBoundary) {
		s.r.Warning(err.Error())
		return
	}
	s.r.Error(err.Error())
}

// exec runs one prompt line. It reports whether the session should end.
func (s *scrubber) exec(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	args := fields[1:]
	engine := s.sess.Engine()

	switch strings.ToLower(fields[0]) {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		printScrubHelp(s.r.Writer())
		return false, nil
	case "next", "n":
		return false, engine.Next()
	case "prev", "previous", "p":
		return false, engine.Previous()
	case "seek", "s":
		if len(args) != 1 {
			return false, errors.New("usage: seek <position>")
		}
		pos, err := navigation.ParsePosition(args[0])
		if err != nil {
			return false, err
		}
		return false, engine.SeekTo(pos)
	case "advance", "a":
		if len(args) != 1 {
			return false, errors.New("usage: advance <steps>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return false, fmt.Errorf("invalid step count %q", args[0])
		}
		engine.Advance(n)
		return false, nil
	case "range", "r":
		return false, s.setRange(args)
	case "show":
		return false, s.show(args)
	case "selection", "sel":
		return false, s.selection()
	case "where", "ctx":
		s.where()
		return false, nil
	case "stats":
		s.stats()
		return false, nil
	case "bookmark", "mark":
		return false, s.bookmark(args)
	case "bookmarks", "marks":
		return false, s.listBookmarks()
	case "goto", "g":
		return false, s.gotoBookmark(args)
	case "forget":
		return false, s.forget(args)
	default:
		return false, fmt.Errorf("unknown command %q (type help for commands)", fields[0])
	}
}

func (s *scrubber) setRange(args []string) error {
	switch {
	case len(args) == 1 && args[0] == "clear":
		s.sess.Engine().SetRange(nil)
		return nil
	case len(args) == 2:
		r, err := parseRange(args[0], args[1])
		if err != nil {
			return err
		}
		s.sess.Engine().SetRange(&r)
		return nil
	default:
		return errors.New("usage: range <start> <end> | range clear")
	}
}

func (s *scrubber) show(args []string) error {
	n := s.rows
	if len(args) == 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid row count %q", args[0])
		}
		n = v
	}
	rec, err := rowsAtPosition(s.ctx, s.sess, n)
	if err != nil {
		return err
	}
	defer rec.Release()
	rec = limitRecord(rec, n)
	defer rec.Release()
	return s.r.Record(rec)
}

func (s *scrubber) selection() error {
	rec, err := s.sess.Selection(s.ctx)
	if err != nil {
		return err
	}
	defer rec.Release()
	return s.r.Record(rec)
}

func (s *scrubber) where() {
	c := s.sess.Engine().Context()
	s.r.KeyValue("Mode", c.Mode.String())
	s.r.KeyValue("Position", describePosition(c.Position))
	if c.Range != nil {
		s.r.KeyValue("Range", c.Range.String())
	}
	s.r.KeyValue("Rows", strconv.Itoa(c.TotalRows))
	if names := s.sess.Files().FileNames(); len(names) > 0 {
		s.r.KeyValue("Files", strings.Join(names, ", "))
	}
}

func (s *scrubber) stats() {
	if cs, ok := s.src.(cacheSource); ok {
		st := cs.CacheStats()
		s.r.KeyValue("Cached chunks", strconv.Itoa(st.Chunks))
		s.r.KeyValue("Cache hits", strconv.FormatInt(st.Hits, 10))
		s.r.KeyValue("Cache misses", strconv.FormatInt(st.Misses, 10))
		s.r.KeyValue("Evictions", strconv.FormatInt(st.Evictions, 10))
	}
	u := s.sess.Memory().Usage()
	s.r.KeyValue("Memory", fmt.Sprintf("%s of %s", formatBytes(u.Total()), formatBytes(u.LimitBytes)))
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func (s *scrubber) bookmark(args []string) error {
	if s.ds == nil {
		return errNotSaved
	}
	if len(args) != 1 || strings.HasPrefix(args[0], "_") {
		return errors.New("usage: bookmark <name> (names cannot start with _)")
	}
	c := s.sess.Engine().Context()
	b := &state.Bookmark{DatasetID: s.ds.ID, Name: args[0], Position: c.Position}
	if c.Range != nil {
		b.Position = c.Range.Start
		end := c.Range.End
		b.RangeEnd = &end
	}
	if err := s.store.SaveBookmark(s.ctx, b); err != nil {
		return err
	}
	s.r.Success("bookmarked " + b.Name)
	return nil
}

func (s *scrubber) listBookmarks() error {
	if s.ds == nil {
		return errNotSaved
	}
	marks, err := s.store.ListBookmarks(s.ctx, s.ds.ID)
	if err != nil {
		return err
	}
	if len(marks) == 0 {
		s.r.Muted("no bookmarks")
		return nil
	}
	return s.r.Table([]string{"name", "position", "range end"}, bookmarkRows(marks))
}

// gotoBookmark moves to a bookmark. Range bookmarks restore the range and
// move to its start.
func (s *scrubber) gotoBookmark(args []string) error {
	if s.ds == nil {
		return errNotSaved
	}
	if len(args) != 1 {
		return errors.New("usage: goto <bookmark>")
	}
	b, err := s.store.GetBookmark(s.ctx, s.ds.ID, args[0])
	if errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("no bookmark named %q", args[0])
	}
	if err != nil {
		return err
	}
	engine := s.sess.Engine()
	if err := engine.SeekTo(b.Position); err != nil {
		return err
	}
	if b.RangeEnd != nil {
		engine.SetRange(&navigation.Range{Start: b.Position, End: *b.RangeEnd})
	}
	return nil
}

func (s *scrubber) forget(args []string) error {
	if s.ds == nil {
		return errNotSaved
	}
	if len(args) != 1 {
		return errors.New("usage: forget <bookmark>")
	}
	if err := s.store.DeleteBookmark(s.ctx, s.ds.ID, args[0]); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return fmt.Errorf("no bookmark named %q", args[0])
		}
		return err
	}
	s.r.Success("forgot " + args[0])
	return nil
}

func (s *scrubber) bookmarkNames(string) []string {
	if s.ds == nil {
		return nil
	}
	marks, err := s.store.ListBookmarks(s.ctx, s.ds.ID)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(marks))
	for _, b := range marks {
		names = append(names, b.Name)
	}
	return names
}

func (s *scrubber) completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("next"),
		readline.PcItem("prev"),
		readline.PcItem("seek"),
		readline.PcItem("advance"),
		readline.PcItem("range", readline.PcItem("clear")),
		readline.PcItem("show"),
		readline.PcItem("selection"),
		readline.PcItem("where"),
		readline.PcItem("stats"),
		readline.PcItem("bookmark"),
		readline.PcItem("bookmarks"),
		readline.PcItem("goto", readline.PcItemDynamic(s.bookmarkNames)),
		readline.PcItem("forget", readline.PcItemDynamic(s.bookmarkNames)),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

func printScrubHelp(w io.Writer) {
	help := `
Moving:
  next, n               Next row, timestamp or category
  prev, p               Previous row, timestamp or category
  seek <pos>            Jump to a position: 42, t:<ms> or c:<name>
  advance <n>           Move n rows (clamped to the dataset)
  range <start> <end>   Select [start, end)
  range clear           Drop the selection

Looking:
  show [n]              Print rows at the current position
  selection             Print the selected range
  where                 Show mode, position, range and files
  stats                 Show cache and memory usage

Bookmarks (saved datasets):
  bookmark <name>       Remember the position or range
  bookmarks             List bookmarks
  goto <name>           Return to a bookmark
  forget <name>         Delete a bookmark

  help                  Show this help
  quit                  Exit
`
	_, _ = fmt.Fprintln(w, help)
}

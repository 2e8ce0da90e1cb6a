package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clitest "github.com/leapstack-labs/leapview/internal/cli/testutil"
	"github.com/leapstack-labs/leapview/internal/state"
	"github.com/leapstack-labs/leapview/internal/testutil"
	"github.com/leapstack-labs/leapview/pkg/navigation"
	"github.com/leapstack-labs/leapview/pkg/source"
)

// newScrubber opens path in a fresh project and returns a scrubber writing
// to a text renderer.
func newScrubber(t *testing.T, path string) (*scrubber, *clitest.TestRenderer, *CommandContext) {
	t.Helper()
	_, cfg := setupProject(t)
	tr := clitest.NewTestRendererText()
	c := &CommandContext{Cfg: cfg, Logger: testutil.NewTestLogger(t), Renderer: tr.Renderer}

	ctx := context.Background()
	ds, err := c.resolveDataset(ctx, []string{path}, sourceFlags{})
	require.NoError(t, err)
	sess, src, err := c.open(ctx, ds)
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	s := &scrubber{ctx: ctx, sess: sess, src: src, r: tr.Renderer, logger: c.Logger, rows: 10}
	return s, tr, c
}

func TestScrubber_Navigation(t *testing.T) {
	s, tr, _ := newScrubber(t, "data/people.csv")
	s.start()

	run := func(line string) error {
		quit, err := s.exec(line)
		assert.False(t, quit)
		return err
	}

	require.NoError(t, run("next"))
	assert.Contains(t, tr.Output(), "at sequential(1) of 3 rows\n")
	assert.Equal(t, navigation.Sequential(1), s.sess.Engine().Context().Position)

	require.NoError(t, run("p"))
	assert.ErrorIs(t, run("prev"), navigation.ErrAtBoundary)

	require.NoError(t, run("seek 2"))
	assert.ErrorIs(t, run("next"), navigation.ErrAtBoundary)
	assert.ErrorIs(t, run("seek t:5"), navigation.ErrModeMismatch)
	assert.ErrorIs(t, run("seek 7"), navigation.ErrOutOfBounds)

	require.NoError(t, run("advance -10"))
	assert.Equal(t, navigation.Sequential(0), s.sess.Engine().Context().Position)

	tr.Reset()
	require.NoError(t, run("show 1"))
	assert.Contains(t, tr.Output(), "Alice")
	assert.NotContains(t, tr.Output(), "Bob")

	tr.Reset()
	require.NoError(t, run("range 1 3"))
	assert.Contains(t, tr.Output(), "range sequential(1)..sequential(3)")
	require.NoError(t, run("selection"))
	assert.Contains(t, tr.Output(), "Bob")
	assert.Contains(t, tr.Output(), "Carol")
	assert.NotContains(t, tr.Output(), "Alice")

	require.NoError(t, run("range clear"))
	assert.Nil(t, s.sess.Engine().Context().Range)

	tr.Reset()
	require.NoError(t, run("where"))
	assert.Contains(t, tr.Output(), "Mode: sequential\n")
	assert.Contains(t, tr.Output(), "Rows: 3\n")

	tr.Reset()
	require.NoError(t, run("stats"))
	assert.Contains(t, tr.Output(), "Cached chunks:")
	assert.Contains(t, tr.Output(), "Memory:")

	assert.ErrorIs(t, run("bookmark here"), errNotSaved)
	assert.Error(t, run("advance x"))
	assert.Error(t, run("frobnicate"))
	require.NoError(t, run("   "))

	quit, err := s.exec("quit")
	require.NoError(t, err)
	assert.True(t, quit)
}

func TestScrubber_Report(t *testing.T) {
	s, tr, _ := newScrubber(t, "data/people.csv")

	_, err := s.exec("prev")
	s.report(err)
	_, err = s.exec("seek nope")
	s.report(err)

	assert.Contains(t, tr.ErrorOutput(), "warning: no further step in this direction")
	assert.Contains(t, tr.ErrorOutput(), `error: invalid position "nope"`)
}

func TestScrubber_Bookmarks(t *testing.T) {
	s, tr, c := newScrubber(t, "data/people.csv")
	ctx := context.Background()

	store, err := c.OpenStore(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	d := &state.Dataset{Name: "people", Kind: state.DatasetDelimited, Files: []*source.FileConfig{source.NewFileConfig("data/people.csv")}}
	require.NoError(t, store.SaveDataset(ctx, d))
	s.store, s.ds = store, d
	s.start()

	run := func(line string) {
		t.Helper()
		_, err := s.exec(line)
		require.NoError(t, err, line)
	}

	run("seek 2")
	run("bookmark last-row")
	run("range 0 2")
	run("bookmark head")
	run("range clear")
	run("seek 0")

	tr.Reset()
	run("bookmarks")
	assert.Contains(t, tr.Output(), "last-row")
	assert.Contains(t, tr.Output(), "head")

	run("goto last-row")
	assert.Equal(t, navigation.Sequential(2), s.sess.Engine().Context().Position)

	run("goto head")
	got := s.sess.Engine().Context()
	assert.Equal(t, navigation.Sequential(0), got.Position)
	require.NotNil(t, got.Range)
	assert.Equal(t, navigation.Sequential(2), got.Range.End)

	run("forget head")
	_, err = s.exec("goto head")
	assert.Error(t, err)
	_, err = s.exec("bookmark _last")
	assert.Error(t, err)

	assert.Contains(t, s.bookmarkNames(""), "last-row")

	// The position on exit is restored by the next session.
	run("seek 1")
	s.finish()
	pos, ok, err := store.LastPosition(ctx, d.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, navigation.Sequential(1), pos)

	s.sess.Engine().Advance(-5)
	s.start()
	assert.Equal(t, navigation.Sequential(1), s.sess.Engine().Context().Position)
}

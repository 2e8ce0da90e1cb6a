package navigation

import (
	"math"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapview/internal/testutil"
)

type recorder struct {
	mu       sync.Mutex
	seen     []Context
	onChange func(Context)
}

func (r *recorder) OnNavigationChange(c Context) {
	r.mu.Lock()
	r.seen = append(r.seen, c)
	r.mu.Unlock()
	if r.onChange != nil {
		r.onChange(c)
	}
}

func (r *recorder) positions() []Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Position, 0, len(r.seen))
	for _, c := range r.seen {
		out = append(out, c.Position)
	}
	return out
}

func newSequential(t *testing.T, rows int) *Engine {
	t.Helper()
	e := New(testutil.NewTestLogger(t))
	e.UpdateSpec(Spec{Mode: SequentialMode(), TotalRows: rows})
	return e
}

func TestNew_Defaults(t *testing.T) {
	e := New(nil)
	ctx := e.Context()
	assert.Equal(t, KindSequential, ctx.Mode.Kind)
	assert.Equal(t, Sequential(0), ctx.Position)
	assert.Nil(t, ctx.Range)
	assert.Equal(t, 0, ctx.TotalRows)
}

func TestEngine_UpdateSpec(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		want Position
	}{
		{
			name: "sequential",
			spec: Spec{Mode: SequentialMode(), TotalRows: 10},
			want: Sequential(0),
		},
		{
			name: "temporal",
			spec: Spec{Mode: TemporalMode(), TotalRows: 10, TemporalBounds: &Bounds{Min: 1000, Max: 2000}},
			want: Temporal(0),
		},
		{
			name: "categorical",
			spec: Spec{Mode: CategoricalMode([]string{"A", "B"})},
			want: Categorical("A"),
		},
		{
			name: "categorical without categories",
			spec: Spec{Mode: CategoricalMode(nil)},
			want: Sequential(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newSequential(t, 50)
			require.NoError(t, e.SeekTo(Sequential(42)))

			rec := &recorder{}
			AddSubscriber(e, rec)
			e.UpdateSpec(tt.spec)

			ctx := e.Context()
			assert.Equal(t, tt.want, ctx.Position)
			assert.Equal(t, tt.spec.TotalRows, ctx.TotalRows)
			assert.Equal(t, []Position{tt.want}, rec.positions())
		})
	}
}

func TestEngine_SeekTo(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		pos     Position
		wantErr error
	}{
		{name: "sequential in bounds", spec: Spec{Mode: SequentialMode(), TotalRows: 10}, pos: Sequential(9)},
		{name: "sequential past end", spec: Spec{Mode: SequentialMode(), TotalRows: 10}, pos: Sequential(10), wantErr: ErrOutOfBounds},
		{name: "sequential negative", spec: Spec{Mode: SequentialMode(), TotalRows: 10}, pos: Sequential(-1), wantErr: ErrOutOfBounds},
		{name: "sequential empty", spec: Spec{Mode: SequentialMode()}, pos: Sequential(0), wantErr: ErrOutOfBounds},
		{name: "temporal unconditional", spec: Spec{Mode: TemporalMode(), TotalRows: 1}, pos: Temporal(1 << 40)},
		{name: "categorical member", spec: Spec{Mode: CategoricalMode([]string{"A", "B"})}, pos: Categorical("B")},
		{name: "categorical unknown", spec: Spec{Mode: CategoricalMode([]string{"A", "B"})}, pos: Categorical("Z"), wantErr: ErrOutOfBounds},
		{name: "variant mismatch", spec: Spec{Mode: SequentialMode(), TotalRows: 10}, pos: Temporal(5), wantErr: ErrModeMismatch},
		{name: "categorical into temporal", spec: Spec{Mode: TemporalMode()}, pos: Categorical("A"), wantErr: ErrModeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(nil)
			e.UpdateSpec(tt.spec)
			rec := &recorder{}
			AddSubscriber(e, rec)
			before := e.Context()

			err := e.SeekTo(tt.pos)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, before.Equal(e.Context()), "rejected seek must not change state")
				assert.Empty(t, rec.positions(), "rejected seek must not notify")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.pos, e.Context().Position)
			assert.Equal(t, []Position{tt.pos}, rec.positions())
		})
	}
}

func TestEngine_NextPreviousSequential(t *testing.T) {
	e := newSequential(t, 3)

	require.NoError(t, e.Next())
	require.NoError(t, e.Next())
	err := e.Next()
	require.ErrorIs(t, err, ErrAtBoundary)
	assert.Contains(t, err.Error(), "already at end")
	assert.Equal(t, Sequential(2), e.Context().Position)

	require.NoError(t, e.Previous())
	require.NoError(t, e.Previous())
	err = e.Previous()
	require.ErrorIs(t, err, ErrAtBoundary)
	assert.Contains(t, err.Error(), "already at beginning")
	assert.Equal(t, Sequential(0), e.Context().Position)
}

func TestEngine_NextPreviousRoundTrip(t *testing.T) {
	e := newSequential(t, 100)
	for _, start := range []int{1, 17, 50, 98} {
		require.NoError(t, e.SeekTo(Sequential(start)))
		require.NoError(t, e.Next())
		require.NoError(t, e.Previous())
		assert.Equal(t, Sequential(start), e.Context().Position)
	}
}

func TestEngine_Temporal(t *testing.T) {
	e := New(nil)
	e.UpdateSpec(Spec{Mode: TemporalMode(), TotalRows: 5})

	err := e.Previous()
	require.ErrorIs(t, err, ErrAtBoundary)
	assert.Equal(t, Temporal(0), e.Context().Position)

	require.NoError(t, e.Next())
	assert.Equal(t, Temporal(1), e.Context().Position)

	require.NoError(t, e.SeekTo(Temporal(1_700_000_000_000)))
	require.NoError(t, e.Next(), "temporal has no upper bound")
	assert.Equal(t, Temporal(1_700_000_000_001), e.Context().Position)
}

func TestEngine_CategoricalScenario(t *testing.T) {
	e := New(nil)
	e.UpdateSpec(Spec{Mode: CategoricalMode([]string{"A", "B", "C"})})

	require.NoError(t, e.SeekTo(Categorical("B")))
	require.NoError(t, e.Next())
	assert.Equal(t, Categorical("C"), e.Context().Position)

	err := e.Next()
	require.ErrorIs(t, err, ErrAtBoundary)
	assert.Contains(t, err.Error(), "already at last category")
	assert.Equal(t, Categorical("C"), e.Context().Position)

	require.NoError(t, e.Previous())
	require.NoError(t, e.Previous())
	err = e.Previous()
	require.ErrorIs(t, err, ErrAtBoundary)
	assert.Contains(t, err.Error(), "already at first category")
}

func TestEngine_Advance(t *testing.T) {
	t.Run("sequential clamps and is idempotent", func(t *testing.T) {
		e := newSequential(t, 10)
		e.Advance(1_000_000)
		assert.Equal(t, Sequential(9), e.Context().Position)
		e.Advance(1_000_000)
		assert.Equal(t, Sequential(9), e.Context().Position)
	})

	t.Run("sequential saturates on huge steps", func(t *testing.T) {
		e := newSequential(t, 100)
		e.Advance(math.MaxInt)
		assert.Equal(t, Sequential(99), e.Context().Position)
		e.Advance(math.MaxInt)
		assert.Equal(t, Sequential(99), e.Context().Position)
		e.Advance(math.MinInt)
		assert.Equal(t, Sequential(0), e.Context().Position)
		e.Advance(math.MinInt)
		assert.Equal(t, Sequential(0), e.Context().Position)
	})

	t.Run("sequential rewinds to zero", func(t *testing.T) {
		e := newSequential(t, 10)
		require.NoError(t, e.SeekTo(Sequential(3)))
		e.Advance(-100)
		assert.Equal(t, Sequential(0), e.Context().Position)
	})

	t.Run("sequential empty dataset", func(t *testing.T) {
		e := newSequential(t, 0)
		e.Advance(5)
		assert.Equal(t, Sequential(0), e.Context().Position)
	})

	t.Run("categorical clamps", func(t *testing.T) {
		e := New(nil)
		e.UpdateSpec(Spec{Mode: CategoricalMode([]string{"A", "B", "C"})})
		e.Advance(2)
		assert.Equal(t, Categorical("C"), e.Context().Position)
		e.Advance(50)
		assert.Equal(t, Categorical("C"), e.Context().Position)
		e.Advance(-50)
		assert.Equal(t, Categorical("A"), e.Context().Position)
	})

	t.Run("temporal moves freely above zero", func(t *testing.T) {
		e := New(nil)
		e.UpdateSpec(Spec{Mode: TemporalMode()})
		e.Advance(250)
		assert.Equal(t, Temporal(250), e.Context().Position)
		e.Advance(-1000)
		assert.Equal(t, Temporal(0), e.Context().Position)
	})

	t.Run("temporal and categorical saturate on huge steps", func(t *testing.T) {
		e := New(nil)
		e.UpdateSpec(Spec{Mode: TemporalMode()})
		e.Advance(math.MaxInt)
		e.Advance(math.MaxInt)
		assert.Equal(t, Temporal(math.MaxInt64), e.Context().Position)
		e.Advance(math.MinInt)
		assert.Equal(t, Temporal(0), e.Context().Position)

		e.UpdateSpec(Spec{Mode: CategoricalMode([]string{"A", "B"})})
		e.Advance(math.MaxInt)
		e.Advance(math.MaxInt)
		assert.Equal(t, Categorical("B"), e.Context().Position)
		e.Advance(math.MinInt)
		assert.Equal(t, Categorical("A"), e.Context().Position)
	})
}

func TestEngine_PanickingSubscriberDoesNotStallNotifications(t *testing.T) {
	e := newSequential(t, 10)
	rec := &recorder{}
	rec.onChange = func(c Context) {
		if c.Position == Sequential(1) {
			panic("subscriber failure")
		}
	}
	AddSubscriber(e, rec)

	assert.Panics(t, func() { _ = e.Next() })
	require.NoError(t, e.Next())
	assert.Equal(t, []Position{Sequential(1), Sequential(2)}, rec.positions())
	runtime.KeepAlive(rec)
}

func TestEngine_SetRange(t *testing.T) {
	e := newSequential(t, 10)
	r := &Range{Start: Temporal(5), End: Categorical("x")}
	e.SetRange(r)

	got := e.Context().Range
	require.NotNil(t, got)
	assert.Equal(t, *r, *got, "range is stored verbatim")

	r.Start = Sequential(1)
	assert.Equal(t, Temporal(5), e.Context().Range.Start, "caller mutation must not leak in")

	e.SetRange(nil)
	assert.Nil(t, e.Context().Range)
}

func TestEngine_NotificationOrder(t *testing.T) {
	e := newSequential(t, 10)

	var order []string
	var mu sync.Mutex
	mk := func(name string) *recorder {
		return &recorder{onChange: func(Context) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}}
	}
	first, second, third := mk("first"), mk("second"), mk("third")
	AddSubscriber(e, first)
	AddSubscriber(e, second)
	AddSubscriber(e, third)

	require.NoError(t, e.Next())
	assert.Equal(t, []string{"first", "second", "third"}, order)
	runtime.KeepAlive(first)
	runtime.KeepAlive(second)
	runtime.KeepAlive(third)
}

func TestEngine_ReentrantMutationIsQueued(t *testing.T) {
	e := newSequential(t, 10)

	var log []string
	a := &recorder{}
	a.onChange = func(c Context) {
		log = append(log, "a:"+c.Position.String())
		if c.Position.Index == 1 {
			// Reading from inside a callback must not deadlock.
			_ = e.Context()
			require.NoError(t, e.Next())
		}
	}
	b := &recorder{}
	b.onChange = func(c Context) {
		log = append(log, "b:"+c.Position.String())
	}
	AddSubscriber(e, a)
	AddSubscriber(e, b)

	require.NoError(t, e.Next())

	assert.Equal(t, []string{
		"a:sequential(1)",
		"b:sequential(1)",
		"a:sequential(2)",
		"b:sequential(2)",
	}, log)
	assert.Equal(t, Sequential(2), e.Context().Position)
	runtime.KeepAlive(a)
	runtime.KeepAlive(b)
}

//go:noinline
func addTransient(e *Engine) {
	AddSubscriber(e, &recorder{seen: make([]Context, 0, 4)})
}

func TestEngine_DeadSubscribersArePrunedOnNotify(t *testing.T) {
	e := newSequential(t, 10)
	keep := &recorder{}
	AddSubscriber(e, keep)
	addTransient(e)
	require.Equal(t, 2, e.SubscriberCount())

	runtime.GC()
	runtime.GC()
	assert.Equal(t, 2, e.SubscriberCount(), "pruning only happens during notification")

	require.NoError(t, e.Next())
	assert.Equal(t, 1, e.SubscriberCount())
	assert.Equal(t, []Position{Sequential(1)}, keep.positions())
	runtime.KeepAlive(keep)
}

func TestEngine_ConcurrentAccess(t *testing.T) {
	e := newSequential(t, 1000)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 200 {
				switch (i + j) % 4 {
				case 0:
					_ = e.Next()
				case 1:
					_ = e.Previous()
				case 2:
					e.Advance(3)
				default:
					_ = e.Context()
				}
			}
		}()
	}
	wg.Wait()

	pos := e.Context().Position
	assert.Equal(t, KindSequential, pos.Kind)
	assert.GreaterOrEqual(t, pos.Index, 0)
	assert.Less(t, pos.Index, 1000)
}

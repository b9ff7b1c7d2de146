package compile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jerrors "jitopt/internal/errors"
	"jitopt/internal/eval"
	"jitopt/internal/frontend"
	"jitopt/internal/ir"
	"jitopt/internal/options"
	"jitopt/internal/phase"
)

const source = `
fn sum(a: i32[]): i32 {
    let s = 0;
    let i = 0;
    while (i < a.length) {
        s = s + a[i];
        i = i + 1;
    }
    return s;
}

fn pick(x: i32): i32 {
    if (x > 10) {
        if (x > 5) {
            return 1;
        }
        return 2;
    }
    return abs(abs(x));
}
`

func unit(t *testing.T) *frontend.Unit {
	t.Helper()
	u, errs := frontend.Compile("test.jop", source)
	require.False(t, errs.HasErrors(), "%v", errs)
	return u
}

func TestCompileOptimizesACopy(t *testing.T) {
	u := unit(t)
	g := u.Function("pick").Graph
	before := g.NodeCount()

	r := New(options.Default()).Compile(context.Background(), g)
	require.NoError(t, r.Err)
	assert.True(t, r.OK())
	assert.Equal(t, 1, r.Attempts)
	assert.Equal(t, before, g.NodeCount(), "the input graph is not modified")
	assert.Equal(t, before, r.Before)
	assert.Less(t, r.After, r.Before)
	assert.Equal(t, 1, r.Graph.Count(ir.OpIf), "x > 5 follows from x > 10")
	assert.Equal(t, 1, r.Graph.Count(ir.OpAbs))
	assert.Contains(t, r.Changed, "canonicalize")
	assert.NotEqual(t, r.ID.String(), New(options.Default()).Compile(context.Background(), g).ID.String())

	cfg := u.EvalConfig(0)
	for _, x := range []int32{-4, 7, 11} {
		ref, err := eval.Run(g, eval.Args(x), cfg)
		require.NoError(t, err)
		got, err := eval.Run(r.Graph, eval.Args(x), cfg)
		require.NoError(t, err)
		assert.True(t, eval.Equivalent(ref, got), "pick(%d)", x)
	}
}

func TestCompileLowersChecks(t *testing.T) {
	u := unit(t)
	g := u.Function("sum").Graph
	r := New(options.Default()).Compile(context.Background(), g)
	require.NoError(t, r.Err)
	assert.Contains(t, r.Changed, "lower-checks")
	assert.Positive(t, r.Graph.Count(ir.OpFixedGuard))

	arr := u.Registry.Lookup("i32[]")
	for _, args := range [][]eval.Value{
		eval.Args(eval.ArrayOf(arr, 1, 2, 3)), eval.Args(eval.ArrayOf(arr)), eval.Args(nil),
	} {
		ref, err := eval.Run(g, args, u.EvalConfig(0))
		require.NoError(t, err)
		got, err := eval.Run(r.Graph, args, u.EvalConfig(0))
		require.NoError(t, err)
		assert.True(t, eval.Equivalent(ref, got), "sum%v: %s vs %s", args, ref, got)
	}
}

// flaky bails out retryably until it has been applied fails times
func flaky(fails int, calls *int) phase.Phase {
	return &phase.Func{PhaseName: "flaky", Fn: func(*ir.Graph, *phase.Context) (bool, error) {
		*calls++
		if *calls <= fails {
			return false, jerrors.RetryableBailout(nil, "try again")
		}
		return false, nil
	}}
}

func TestRetryAfterRetryableBailout(t *testing.T) {
	var calls int
	var caps []int
	c := New(options.Default())
	c.Pipeline = func(o options.Options) *phase.Suite {
		caps = append(caps, o.ConditionalEliminationMaxIterations)
		return phase.NewSuite("test", flaky(1, &calls))
	}
	r := c.Compile(context.Background(), unit(t).Function("pick").Graph)
	require.NoError(t, r.Err)
	assert.Equal(t, 2, r.Attempts)
	assert.Equal(t, []int{8, 16}, caps, "a retry relaxes the iteration caps")
}

func TestRetriesAreBounded(t *testing.T) {
	var calls int
	opts := options.Default()
	opts.MaxRetries = 2
	c := New(opts)
	c.Pipeline = func(options.Options) *phase.Suite { return phase.NewSuite("test", flaky(100, &calls)) }
	r := c.Compile(context.Background(), unit(t).Function("pick").Graph)
	require.Error(t, r.Err)
	assert.True(t, jerrors.IsRetryable(r.Err))
	assert.Equal(t, 3, r.Attempts)
	assert.Nil(t, r.Graph)
}

func TestPermanentBailoutIsNotRetried(t *testing.T) {
	var calls int
	c := New(options.Default())
	c.Pipeline = func(options.Options) *phase.Suite {
		return phase.NewSuite("test", &phase.Func{PhaseName: "give-up", Fn: func(*ir.Graph, *phase.Context) (bool, error) {
			calls++
			return false, jerrors.PermanentBailout("unsupported")
		}})
	}
	r := c.Compile(context.Background(), unit(t).Function("pick").Graph)
	var b *jerrors.Bailout
	require.True(t, errors.As(r.Err, &b))
	assert.True(t, b.Permanent)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, r.Attempts)
}

func TestCancelledCompilation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(options.Default()).Compile(ctx, unit(t).Function("pick").Graph)
	require.Error(t, r.Err)
	assert.ErrorIs(t, r.Err, context.Canceled)
	assert.Equal(t, jerrors.ErrorBailoutPermanent, jerrors.CodeOf(r.Err))
}

func TestCancellationBetweenPhases(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var ran []string
	c := New(options.Default())
	c.Pipeline = func(options.Options) *phase.Suite {
		return phase.NewSuite("test",
			&phase.Func{PhaseName: "first", Fn: func(*ir.Graph, *phase.Context) (bool, error) {
				ran = append(ran, "first")
				cancel()
				return false, nil
			}},
			&phase.Func{PhaseName: "second", Fn: func(*ir.Graph, *phase.Context) (bool, error) {
				ran = append(ran, "second")
				return false, nil
			}},
		)
	}
	r := c.Compile(ctx, unit(t).Function("pick").Graph)
	require.Error(t, r.Err)
	assert.ErrorIs(t, r.Err, context.Canceled)
	assert.Contains(t, r.Err.Error(), "cancelled before second")
	assert.Equal(t, []string{"first"}, ran)
	assert.Equal(t, 1, r.Attempts)
}

func TestBrokenGraphFailsVerification(t *testing.T) {
	c := New(options.Default())
	c.Pipeline = func(options.Options) *phase.Suite {
		return phase.NewSuite("test", &phase.Func{PhaseName: "breaker", Fn: func(g *ir.Graph, _ *phase.Context) (bool, error) {
			orphan := g.BlackHole(g.Params()[0])
			g.SetNext(orphan, g.Return(nil))
			return true, nil
		}})
	}
	r := c.Compile(context.Background(), unit(t).Function("pick").Graph)
	require.Error(t, r.Err)
	assert.True(t, jerrors.IsVerification(r.Err))
	assert.Equal(t, jerrors.ErrorControlFlow, jerrors.CodeOf(r.Err))
	assert.Contains(t, r.Err.Error(), "breaker")
}

func TestWatchdogReportsWithoutCancelling(t *testing.T) {
	w := startWatchdog(uuid.Nil, "slow", 5*time.Millisecond)
	assert.Eventually(t, func() bool { return w.fired.Load() >= 2 }, time.Second, time.Millisecond)
	w.stop()
	w.stop()

	off := startWatchdog(uuid.Nil, "off", 0)
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, off.fired.Load())
	off.stop()
}

func TestQueue(t *testing.T) {
	u := unit(t)
	opts := options.Default()
	opts.Workers = 3
	var graphs []*ir.Graph
	for range 4 {
		graphs = append(graphs, u.Function("sum").Graph, u.Function("pick").Graph)
	}
	results := NewQueue(New(opts)).Run(context.Background(), graphs)
	require.Len(t, results, len(graphs))
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, graphs[i].Name, r.Name)
		assert.NotSame(t, graphs[i], r.Graph)
	}
	assert.NoError(t, Errors(results))
}

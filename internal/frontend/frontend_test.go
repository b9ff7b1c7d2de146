package frontend

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jitopt/internal/canon"
	"jitopt/internal/condelim"
	"jitopt/internal/deopt"
	jerrors "jitopt/internal/errors"
	"jitopt/internal/eval"
	"jitopt/internal/ir"
	"jitopt/internal/lowering"
	"jitopt/internal/options"
	"jitopt/internal/verify"
)

func compile(t *testing.T, src string) *Unit {
	t.Helper()
	u, errs := Compile("test.jop", src)
	require.False(t, errs.HasErrors(), "%v", errs)
	for _, f := range u.Functions {
		require.NoError(t, verify.Graph(f.Graph), f.Name)
	}
	return u
}

// optimize runs the optimizing phases on a copy of g
func optimize(t *testing.T, g *ir.Graph) *ir.Graph {
	t.Helper()
	opt := g.Copy()
	opts := options.Default()
	_, err := canon.Run(opt, opts)
	require.NoError(t, err)
	_, err = condelim.RunIterative(opt, opts)
	require.NoError(t, err)
	lowering.Run(opt)
	_, err = canon.Run(opt, opts)
	require.NoError(t, err)
	_, err = condelim.RunIterative(opt, opts)
	require.NoError(t, err)
	require.NoError(t, verify.Strict(opt))
	return opt
}

// sameBehavior checks that the optimized graph of fn is allowed to produce what the
// built graph produces, for every argument list
func sameBehavior(t *testing.T, u *Unit, fn string, inputs ...[]eval.Value) {
	t.Helper()
	f := u.Function(fn)
	require.NotNil(t, f)
	opt := optimize(t, f.Graph)
	cfg := u.EvalConfig(0)
	for _, args := range inputs {
		ref, err := eval.Run(f.Graph, args, cfg)
		require.NoError(t, err)
		got, err := eval.Run(opt, args, cfg)
		require.NoError(t, err)
		assert.True(t, eval.Equivalent(ref, got), "%s%v: built %s, optimized %s", fn, args, ref, got)
	}
}

func run(t *testing.T, u *Unit, fn string, args ...any) eval.Outcome {
	t.Helper()
	o, err := eval.Run(u.Function(fn).Graph, eval.Args(args...), u.EvalConfig(0))
	require.NoError(t, err)
	return o
}

func ints(vals ...int64) [][]eval.Value {
	out := make([][]eval.Value, len(vals))
	for i, v := range vals {
		out[i] = eval.Args(int32(v))
	}
	return out
}

func TestAbsOfAbs(t *testing.T) {
	u := compile(t, `fn f(x: i32): i32 { return abs(abs(x)); }`)
	g := u.Function("f").Graph
	assert.Equal(t, 2, g.Count(ir.OpAbs))

	opt := optimize(t, g)
	assert.Equal(t, 1, opt.Count(ir.OpAbs))
	sameBehavior(t, u, "f", ints(math.MinInt32, -5, 0, 7, math.MaxInt32)...)
}

func TestBranchesJoinWithPhi(t *testing.T) {
	u := compile(t, `
fn f(x: i32): i32 {
    let r = x;
    if (x < 0) {
        r = -x;
    }
    return r;
}`)
	g := u.Function("f").Graph
	assert.Equal(t, 1, g.Count(ir.OpMerge))
	assert.Equal(t, 1, g.Count(ir.OpPhi))

	assert.Equal(t, int64(5), run(t, u, "f", -5).Value.Int)
	opt := optimize(t, g)
	assert.Zero(t, opt.Count(ir.OpIf), "the diamond is an abs")
	assert.Equal(t, 1, opt.Count(ir.OpAbs))
	sameBehavior(t, u, "f", ints(math.MinInt32, -1, 0, 1)...)
}

func TestUntouchedVariablesNeedNoPhi(t *testing.T) {
	u := compile(t, `
fn f(x: i32, y: i32): i32 {
    if (x < y) {
        sink(x);
    } else {
        sink(y);
    }
    return x + y;
}`)
	g := u.Function("f").Graph
	assert.Equal(t, 1, g.Count(ir.OpMerge))
	assert.Zero(t, g.Count(ir.OpPhi))
	assert.Equal(t, 2, g.Count(ir.OpBlackHole))
}

func TestLoop(t *testing.T) {
	u := compile(t, `
fn sum(n: i32): i32 {
    let i = 0;
    let s = 0;
    while (i < n) {
        s = s + i;
        i = i + 1;
    }
    return s;
}`)
	g := u.Function("sum").Graph
	require.Equal(t, 1, g.Count(ir.OpLoopBegin))
	lb := g.NodesOf(ir.OpLoopBegin)[0]
	assert.Len(t, g.Phis(lb), 2)
	assert.Len(t, g.LoopEnds(lb), 1)
	assert.Len(t, g.LoopExits(lb), 1)
	assert.True(t, lb.Safepoint)

	assert.Equal(t, int64(45), run(t, u, "sum", 10).Value.Int)
	assert.Equal(t, int64(0), run(t, u, "sum", -3).Value.Int)
	sameBehavior(t, u, "sum", ints(-1, 0, 1, 10, 100)...)
}

func TestNestedLoopsAndEarlyExit(t *testing.T) {
	u := compile(t, `
fn find(a: i32[], key: i32): i32 {
    let i = 0;
    while (i < len(a)) {
        let j = 0;
        while (j < i) {
            j = j + 1;
        }
        if (a[i] == key) {
            return i;
        }
        i = i + 1;
    }
    return -1;
}`)
	g := u.Function("find").Graph
	assert.Equal(t, 2, g.Count(ir.OpLoopBegin))

	arr := u.Registry.Lookup("i32[]")
	require.NotNil(t, arr)
	in := eval.ArrayOf(arr, 4, 8, 15, 16)
	assert.Equal(t, int64(2), run(t, u, "find", in, 15).Value.Int)
	assert.Equal(t, int64(-1), run(t, u, "find", in, 3).Value.Int)
	assert.Equal(t, "NullPointerException", run(t, u, "find", nil, 3).Normalize().Exception)
	sameBehavior(t, u, "find",
		eval.Args(in, 16), eval.Args(in, 0), eval.Args(eval.ArrayOf(arr), 1), eval.Args(nil, 1))
}

func TestShortCircuit(t *testing.T) {
	u := compile(t, `
fn both(a: i32, b: i32): bool {
    return a > 0 && 10 / a > b;
}

fn either(a: i32, b: i32): i32 {
    if (a == 0 || b == 0) {
        return 0;
    }
    return 1;
}`)
	assert.Equal(t, int64(0), run(t, u, "both", 0, 1).Value.Int, "the division is not reached")
	assert.Equal(t, int64(1), run(t, u, "both", 2, 1).Value.Int)
	assert.Equal(t, int64(0), run(t, u, "either", 3, 0).Value.Int)
	assert.Equal(t, int64(1), run(t, u, "either", 3, 4).Value.Int)
	sameBehavior(t, u, "both", eval.Args(0, 1), eval.Args(-1, 1), eval.Args(5, 1), eval.Args(5, 3))
	sameBehavior(t, u, "either", eval.Args(0, 0), eval.Args(1, 0), eval.Args(1, 1))
}

func TestTernary(t *testing.T) {
	u := compile(t, `fn f(x: i32, y: i32): i32 { return x > y ? x - y : y - x; }`)
	assert.Equal(t, int64(3), run(t, u, "f", 1, 4).Value.Int)
	assert.Equal(t, int64(3), run(t, u, "f", 4, 1).Value.Int)
	sameBehavior(t, u, "f", eval.Args(math.MinInt32, 1), eval.Args(7, 7), eval.Args(0, -9))
}

func TestDivisionGuard(t *testing.T) {
	u := compile(t, `
fn div(x: i32, y: i32): i32 { return x / y; }
fn third(x: i32): i32 { return x / 3; }
fn rem(x: i64, y: i64): i64 { return x % y; }`)

	guards := u.Function("div").Graph.NodesOf(ir.OpFixedGuard)
	require.Len(t, guards, 1)
	assert.Equal(t, deopt.ArithmeticException, guards[0].Reason)
	assert.True(t, guards[0].Negated)
	assert.Zero(t, u.Function("third").Graph.Count(ir.OpFixedGuard), "a constant divisor cannot be zero")
	assert.Equal(t, 1, u.Function("rem").Graph.Count(ir.OpFixedGuard))

	o := run(t, u, "div", 1, 0).Normalize()
	assert.Equal(t, eval.Threw, o.Kind)
	assert.Equal(t, "ArithmeticException", o.Exception)
	assert.Equal(t, int64(math.MinInt32), run(t, u, "div", math.MinInt32, -1).Value.Int)
	sameBehavior(t, u, "div", eval.Args(7, 0), eval.Args(7, 2), eval.Args(math.MinInt32, -1))
	sameBehavior(t, u, "rem", eval.Args(int64(7), int64(0)), eval.Args(int64(-7), int64(2)))
}

func TestLoopCarriedDivisorKeepsGuard(t *testing.T) {
	u := compile(t, `
fn countdown(n: i32): i32 {
    let d = 1;
    let s = 0;
    let i = 0;
    while (i < n) {
        s = s + (100 / d) * 0;
        d = d - 1;
        i = i + 1;
    }
    return s;
}`)

	guards := u.Function("countdown").Graph.NodesOf(ir.OpFixedGuard)
	require.Len(t, guards, 1, "d is only non-zero on the first iteration")
	assert.Equal(t, deopt.ArithmeticException, guards[0].Reason)

	assert.Equal(t, int64(0), run(t, u, "countdown", 1).Value.Int)
	o := run(t, u, "countdown", 2).Normalize()
	assert.Equal(t, eval.Threw, o.Kind)
	assert.Equal(t, "ArithmeticException", o.Exception)
	sameBehavior(t, u, "countdown", ints(0, 1, 2, 5)...)
}

func TestLoopCarriedArrayKeepsNullCheck(t *testing.T) {
	u := compile(t, `
fn lengths(n: i32): i32 {
    let a = new i32[2];
    let s = 0;
    let i = 0;
    while (i < n) {
        s = s + len(a);
        a = null;
        i = i + 1;
    }
    return s;
}`)

	g := u.Function("lengths").Graph
	nullChecks := 0
	for _, gd := range g.NodesOf(ir.OpFixedGuard) {
		if gd.Reason == deopt.NullCheck {
			nullChecks++
		}
	}
	assert.Equal(t, 1, nullChecks)

	assert.Equal(t, int64(2), run(t, u, "lengths", 1).Value.Int)
	o := run(t, u, "lengths", 2).Normalize()
	assert.Equal(t, eval.Threw, o.Kind)
	assert.Equal(t, "NullPointerException", o.Exception)
	sameBehavior(t, u, "lengths", ints(0, 1, 2)...)
}

const shapes = `
class Shape { area: i32; }
final class Square extends Shape { side: i32; }
interface Named {}
class Circle extends Shape implements Named { r: i32; }
`

func TestCheckedCast(t *testing.T) {
	u := compile(t, shapes+`
fn side(s: Shape): i32 {
    let q = s as Square;
    return q.side;
}
fn widen(q: Square): Shape { return q as Shape; }
fn named(s: Shape): bool { return s instanceof Named; }`)

	g := u.Function("side").Graph
	guards := g.NodesOf(ir.OpFixedGuard)
	require.Len(t, guards, 1)
	assert.Equal(t, deopt.ClassCastException, guards[0].Reason)
	assert.Equal(t, 1, g.Count(ir.OpPi))
	assert.Zero(t, u.Function("widen").Graph.Count(ir.OpFixedGuard), "upcasts need no check")

	square := eval.NewInstance(u.Registry.Lookup("Square"))
	square.Fields[u.Registry.Lookup("Square").LookupField("side")] = eval.Int(32, 3)
	circle := eval.NewInstance(u.Registry.Lookup("Circle"))
	assert.Equal(t, int64(3), run(t, u, "side", square).Value.Int)
	assert.Equal(t, "ClassCastException", run(t, u, "side", circle).Normalize().Exception)
	assert.Equal(t, "NullPointerException", run(t, u, "side", nil).Normalize().Exception,
		"null passes the cast and fails the load")
	assert.Equal(t, int64(1), run(t, u, "named", circle).Value.Int)
	assert.Equal(t, int64(0), run(t, u, "named", nil).Value.Int)

	sameBehavior(t, u, "side", eval.Args(square), eval.Args(circle), eval.Args(nil))
	sameBehavior(t, u, "named", eval.Args(square), eval.Args(circle), eval.Args(nil))
}

func TestFieldsArraysAndAllocation(t *testing.T) {
	u := compile(t, shapes+`
const primes: i32[] = [2, 3, 5, 7, 11];

fn build(n: i32): i32 {
    let a = new i32[n];
    let i = 0;
    while (i < n) {
        a[i] = primes[i % 5] * i;
        i = i + 1;
    }
    let c = new Circle;
    c.r = a.length;
    return c.r + a[n - 1];
}`)
	g := u.Function("build").Graph
	assert.Equal(t, 1, g.Count(ir.OpNewArray))
	assert.Equal(t, 1, g.Count(ir.OpNewInstance))
	assert.Equal(t, 1, g.Count(ir.OpStoreField))

	assert.Equal(t, int64(3+2*5), run(t, u, "build", 3).Value.Int)
	assert.Equal(t, "ArrayIndexOutOfBoundsException", run(t, u, "build", 0).Normalize().Exception)
	assert.Equal(t, "NegativeArraySizeException", run(t, u, "build", -1).Normalize().Exception)
	sameBehavior(t, u, "build", ints(1, 3, 6, 0, -1)...)
}

func TestGuardsAndDeopts(t *testing.T) {
	u := compile(t, `
fn f(x: i32, y: i32): i32 {
    guard x > 0 && y > 0 else UnreachedCode/InvalidateRecompile;
    if (x > 100) {
        deopt TransferToInterpreter;
    }
    anchor;
    return x + y;
}`)
	g := u.Function("f").Graph
	guards := g.NodesOf(ir.OpFixedGuard)
	require.Len(t, guards, 2, "one guard per conjunct")
	for _, gd := range guards {
		assert.Equal(t, deopt.UnreachedCode, gd.Reason)
		assert.Equal(t, deopt.InvalidateRecompile, gd.Action)
	}
	require.Equal(t, 1, g.Count(ir.OpDeoptimize))
	assert.Equal(t, deopt.InvalidateReprofile, g.NodesOf(ir.OpDeoptimize)[0].Action)
	assert.Equal(t, 1, g.Count(ir.OpControlFlowAnchor))

	assert.Equal(t, eval.Deoptimized, run(t, u, "f", 0, 1).Kind)
	assert.Equal(t, eval.Deoptimized, run(t, u, "f", 101, 1).Kind)
	assert.Equal(t, int64(3), run(t, u, "f", 1, 2).Value.Int)
	sameBehavior(t, u, "f", eval.Args(0, 1), eval.Args(1, 0), eval.Args(101, 1), eval.Args(5, 5))
}

func TestCalls(t *testing.T) {
	u := compile(t, `
fn fact(n: i32): i32 {
    if (n <= 1) {
        return 1;
    }
    return n * call fact(n - 1);
}
fn log(v: i64) { sink(v); }
fn main(n: i32): i32 {
    call log(i2l(n));
    return call fact(n);
}`)
	assert.Equal(t, 1, u.Function("fact").Graph.Count(ir.OpInvoke))
	o := run(t, u, "main", 5)
	assert.Equal(t, int64(120), o.Value.Int)
	require.Len(t, o.Trace, 1)
	assert.Equal(t, eval.Int(64, 5), o.Trace[0])
	sameBehavior(t, u, "main", ints(0, 1, 5)...)
}

func TestBuiltins(t *testing.T) {
	u := compile(t, `
fn f(x: i32, y: i32): i32 {
    let a = min(x, y) + max(x, y);
    let b = umin(x, y) ^ umax(x, y);
    let c = ult(x, y) ? 1 : 0;
    let d = l2i(u2l(x) >>> 32) + l2i(i2l(y) >> 32);
    return a + b + c + d + opaque(x);
}`)
	sameBehavior(t, u, "f",
		eval.Args(1, 2), eval.Args(-1, 2), eval.Args(math.MinInt32, math.MaxInt32), eval.Args(0, 0))
}

func TestFloats(t *testing.T) {
	u := compile(t, `
fn f(x: f64, y: f64): bool { return x < y || x != x; }
fn g(x: f32): f32 { return abs(x) * 2.0f - x; }`)
	var in [][]eval.Value
	for _, a := range eval.Float64s {
		for _, b := range eval.Float64s {
			in = append(in, eval.Args(a, b))
		}
	}
	sameBehavior(t, u, "f", in...)
	assert.Equal(t, int64(1), run(t, u, "f", math.NaN(), 1.0).Value.Int)

	o := run(t, u, "g", float32(-1.5))
	assert.Equal(t, 32, o.Value.Bits)
	assert.Equal(t, 4.5, o.Value.Float)
}

func TestDiagnostics(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{"syntax", `fn f( { }`, jerrors.ErrorSyntax},
		{"undefined variable", `fn f(): i32 { return y; }`, jerrors.ErrorUndefinedVariable},
		{"undefined function", `fn f(): i32 { return call g(); }`, jerrors.ErrorUndefinedFunction},
		{"unknown type", `fn f(x: Foo) {}`, jerrors.ErrorUnknownType},
		{"unknown field", shapes + `fn f(s: Shape): i32 { return s.sides; }`, jerrors.ErrorFieldNotFound},
		{"mismatch", `fn f(x: i32, y: i64): i32 { return x + y; }`, jerrors.ErrorTypeMismatch},
		{"no implicit widening", `fn f(x: i32): i64 { return x; }`, jerrors.ErrorTypeMismatch},
		{"duplicate variable", `fn f() { let x = 1; let x = 2; sink(x); }`, jerrors.ErrorDuplicateDeclaration},
		{"duplicate function", `fn f() {} fn f() {}`, jerrors.ErrorDuplicateDeclaration},
		{"unknown reason", `fn f() { deopt Whatever; }`, jerrors.ErrorUnknownDeopt},
		{"unknown action", `fn f() { deopt NullCheck/Never; }`, jerrors.ErrorUnknownDeopt},
		{"argument count", `fn f(): i32 { return abs(1, 2); }`, jerrors.ErrorInvalidArguments},
		{"missing return", `fn f(x: i32): i32 { if (x > 0) { return 1; } }`, jerrors.ErrorMissingReturn},
		{"cyclic classes", `class A extends B {} class B extends A {}`, jerrors.ErrorInvalidHierarchy},
		{"final superclass", `final class A {} class B extends A {}`, jerrors.ErrorInvalidHierarchy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := Compile("bad.jop", tt.src)
			require.True(t, errs.HasErrors())
			var codes []string
			for _, e := range errs {
				codes = append(codes, e.Code)
			}
			assert.Contains(t, codes, tt.code)
		})
	}
}

func TestWarnings(t *testing.T) {
	u, errs := Compile("warn.jop", `
fn f(x: i32): i32 {
    let unused = x + 1;
    return x;
    sink(x);
}`)
	require.NotNil(t, u)
	require.False(t, errs.HasErrors())
	require.Len(t, errs, 2)
	assert.Equal(t, jerrors.WarningUnreachableCode, errs[0].Code)
	assert.Equal(t, jerrors.WarningUnusedVariable, errs[1].Code)
	assert.Equal(t, 3, errs[1].Position.Line)
}

func TestParseArgs(t *testing.T) {
	u := compile(t, shapes+`fn f(a: i32, b: i64, c: f32, d: bool, s: Shape) {}`)
	f := u.Function("f")
	assert.Equal(t, "f(a: i32, b: i64, c: f32, d: bool, s: Shape)", f.Signature())

	args, err := f.ParseArgs([]string{"-7", "0x10", "1.5", "true", "null"})
	require.NoError(t, err)
	assert.Equal(t, eval.Args(-7, int64(16), float32(1.5), true, nil), args)

	_, err = f.ParseArgs([]string{"1"})
	assert.Error(t, err)
	_, err = f.ParseArgs([]string{"x", "1", "1", "true", "null"})
	assert.Error(t, err)
}

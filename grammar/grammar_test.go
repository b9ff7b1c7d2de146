package grammar_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jitopt/grammar"
	jerrors "jitopt/internal/errors"
)

func TestShapes(t *testing.T) {
	program, _, err := grammar.ParseFile(`../examples/shapes.jop`)
	require.NoError(t, err)
	require.Len(t, program.Decls, 7)

	shape := program.Decls[0].Class
	require.NotNil(t, shape)
	assert.Equal(t, "Shape", shape.Name)
	assert.False(t, shape.Final)
	require.Len(t, shape.Fields, 1)
	assert.Equal(t, "area", shape.Fields[0].Name)
	assert.Equal(t, "i32", shape.Fields[0].Type.Name)

	square := program.Decls[1].Class
	assert.True(t, square.Final)
	assert.Equal(t, "Shape", square.Extends)

	named := program.Decls[2].Class
	assert.True(t, named.Interface)
	assert.Empty(t, named.Fields)

	circle := program.Decls[3].Class
	assert.Equal(t, []string{"Named"}, circle.Implements)
	assert.True(t, circle.Fields[0].Final)

	weights := program.Decls[4].Const
	require.NotNil(t, weights)
	assert.Equal(t, "weights", weights.Name)
	assert.Equal(t, 1, weights.Type.Dims())
	assert.Len(t, weights.Values, 4)

	side := program.Decls[5].Function
	require.NotNil(t, side)
	assert.Equal(t, "side", side.Name)
	require.Len(t, side.Params, 1)
	assert.Equal(t, "Shape", side.Params[0].Type.Name)
	assert.Equal(t, "i32", side.Result.Name)
	require.Len(t, side.Body.Stmts, 2)
	assert.NotNil(t, side.Body.Stmts[0].If)
	assert.NotNil(t, side.Body.Stmts[1].Return)

	guard := program.Decls[6].Function.Body.Stmts[0].Guard
	require.NotNil(t, guard)
	assert.Equal(t, "NullCheck", guard.Reason)
	assert.Equal(t, "InvalidateRecompile", guard.Action)
	assert.Len(t, guard.Cond.Cond.Right, 1, "one && chain")
}

func TestLoops(t *testing.T) {
	program, _, err := grammar.ParseFile(`../examples/loops.jop`)
	require.NoError(t, err)
	require.Len(t, program.Decls, 3)

	sum := program.Decls[0].Function
	require.Len(t, sum.Body.Stmts, 4)
	loop := sum.Body.Stmts[2].While
	require.NotNil(t, loop)
	assert.Len(t, loop.Body.Stmts, 2)

	clamp := program.Decls[1].Function
	ifs := clamp.Body.Stmts[0].If
	require.NotNil(t, ifs.Else)
	assert.NotNil(t, ifs.Else.If, "else if chains nest")
	ternary := clamp.Body.Stmts[1].Return.Value
	assert.NotNil(t, ternary.Then)
	assert.NotNil(t, ternary.Else)
}

func TestPrecedence(t *testing.T) {
	program, err := grammar.Parse("p.jop", `fn f(a: i32, b: i32): bool { return a + b * 2 < a << 1 && !(a == b) || -a > ~b; }`)
	require.NoError(t, err)
	e := program.Decls[0].Function.Body.Stmts[0].Return.Value
	require.Nil(t, e.Then)
	or := e.Cond
	require.Len(t, or.Right, 1)
	and := or.Left
	require.Len(t, and.Right, 1)
	rel := and.Left.Left.Left.Left.Left
	require.Len(t, rel.Right, 1)
	assert.Equal(t, "<", rel.Right[0].Op)
	add := rel.Left.Left
	require.Len(t, add.Right, 1)
	assert.Equal(t, "+", add.Right[0].Op)
	assert.Len(t, add.Right[0].Right.Right, 1, "the product binds tighter")
}

func TestLiterals(t *testing.T) {
	program, err := grammar.Parse("l.jop", `const c: i64[] = [1, -2, 0x7fL, 3L];
fn f(): f64 { return 1.5e3; }
fn g(): f32 { return 2f; }`)
	require.NoError(t, err)
	vals := program.Decls[0].Const.Values
	require.Len(t, vals, 4)
	assert.Equal(t, "1", *vals[0].Int)
	assert.True(t, vals[1].Neg)
	assert.Equal(t, "0x7fL", *vals[2].Int)

	lit := func(i int) *grammar.Literal {
		return program.Decls[i].Function.Body.Stmts[0].Return.Value.Cond.Left.Left.Left.Left.Left.Left.Left.Left.Left.Left.Postfix.Primary.Lit
	}
	assert.Equal(t, "1.5e3", *lit(1).Float)
	assert.Equal(t, "2f", *lit(2).Float)
}

func TestPostfixAndCalls(t *testing.T) {
	program, err := grammar.Parse("c.jop", `fn f(s: Shape): i32 {
    let a = new i32[4][];
    s.next.vals[2] = call g(s as Circle, len(a));
    return 0;
}`)
	require.NoError(t, err)
	stmts := program.Decls[0].Function.Body.Stmts
	require.Len(t, stmts, 3)

	alloc := stmts[0].Let.Value.String()
	assert.Equal(t, "new i32[4][]", alloc)

	assign := stmts[1].Expr
	require.NotNil(t, assign.Value)
	assert.Equal(t, "s.next.vals[2]", assign.Target.String())
	assert.Equal(t, "call g(s as Circle, len(a))", assign.Value.String())
}

func TestRoundTrip(t *testing.T) {
	program, _, err := grammar.ParseFile(`../examples/loops.jop`)
	require.NoError(t, err)
	printed := program.String()
	again, err := grammar.Parse("printed.jop", printed)
	require.NoError(t, err)
	assert.Equal(t, printed, again.String())
}

func TestSyntaxError(t *testing.T) {
	_, err := grammar.Parse("bad.jop", "fn f(x: i32): i32 {\n    return x +;\n}")
	require.Error(t, err)
	d := grammar.Diagnostic(err)
	assert.Equal(t, jerrors.ErrorSyntax, d.Code)
	assert.Equal(t, "bad.jop", d.Position.Filename)
	assert.Equal(t, 2, d.Position.Line)
	assert.NotEmpty(t, d.Message)
}

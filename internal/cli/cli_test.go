package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	shapes = filepath.Join("..", "..", "examples", "shapes.jop")
	loops  = filepath.Join("..", "..", "examples", "loops.jop")
)

// execute runs the root command with args and returns its output
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand("test")
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func decode(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func write(t *testing.T, name, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

func TestCheck(t *testing.T) {
	out, err := execute(t, "check", shapes, loops)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+shapes+": 2 functions")
	assert.Contains(t, out, "✓ "+loops+": 3 functions")
}

func TestCheckJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "check", loops)
	require.NoError(t, err)
	resp := decode(t, out)
	assert.Equal(t, "ok", resp.Status)
	files := resp.Data.([]any)
	require.Len(t, files, 1)
	fns := files[0].(map[string]any)["functions"].([]any)
	assert.Equal(t, "sum(a: i32[]): i64", fns[0])
}

func TestCheckReportsDiagnostics(t *testing.T) {
	path := write(t, "bad.jop", "fn f(): i32 {\n    return y;\n}\n")
	out, err := execute(t, "check", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "y")

	out, err = execute(t, "--format", "json", "check", path)
	require.Error(t, err)
	resp := decode(t, out)
	assert.Equal(t, "error", resp.Status)
	details := resp.Error.Details.([]any)
	require.NotEmpty(t, details)
	assert.Equal(t, float64(2), details[0].(map[string]any)["line"])
}

func TestCheckWarnings(t *testing.T) {
	path := write(t, "warn.jop", "fn f(): i32 {\n    let unused = 1;\n    return 0;\n}\n")
	out, err := execute(t, "check", path)
	require.NoError(t, err)
	assert.Contains(t, out, "W0100")
	assert.Contains(t, out, "1 warnings")
}

func TestMissingFile(t *testing.T) {
	out, err := execute(t, "check", "/nonexistent/file.jop")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
}

func TestOpt(t *testing.T) {
	out, err := execute(t, "--format", "json", "opt", "--fn", "clamp", "--before", loops)
	require.NoError(t, err)
	resp := decode(t, out)
	results := resp.Data.([]any)
	require.Len(t, results, 1)
	r := results[0].(map[string]any)
	assert.Equal(t, "clamp", r["function"])
	assert.Equal(t, float64(1), r["attempts"])
	assert.NotEmpty(t, r["graph"])
	assert.NotEmpty(t, r["input"])
	assert.NotEmpty(t, r["id"])
}

func TestOptAllFunctions(t *testing.T) {
	out, err := execute(t, "--profile", "aggressive", "opt", shapes)
	require.NoError(t, err)
	assert.Contains(t, out, "=== side")
	assert.Contains(t, out, "=== weigh")
	assert.Contains(t, out, "nodes, 1 attempts")
}

func TestOptUnknownFunction(t *testing.T) {
	out, err := execute(t, "opt", "--fn", "nope", loops)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeUnknownFunction)
}

func TestRun(t *testing.T) {
	out, err := execute(t, "run", "--optimized", loops, "main", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "main(5) returned")
	assert.Contains(t, out, "executions agree")

	out, err = execute(t, "--format", "json", "run", loops, "clamp", "12", "0", "10")
	require.NoError(t, err)
	data := decode(t, out).Data.(map[string]any)
	assert.Equal(t, "clamp(x: i32, lo: i32, hi: i32): i32", data["function"])
	assert.Nil(t, data["agrees"])
}

func TestRunBadArguments(t *testing.T) {
	_, err := execute(t, "run", loops, "clamp", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "run", loops, "clamp", "x", "0", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeArguments)
}

func TestFmt(t *testing.T) {
	path := write(t, "f.jop", "fn f(x: i32): i32 { return x+1; }")
	out, err := execute(t, "fmt", path)
	require.NoError(t, err)
	assert.Equal(t, "fn f(x: i32): i32 {\n    return x + 1;\n}\n", out)

	_, err = execute(t, "fmt", "-w", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, out, string(data))

	_, err = execute(t, "fmt", write(t, "bad.jop", "fn ("))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E0100")
}

func TestOptions(t *testing.T) {
	out, err := execute(t, "--profile", "fast", "options")
	require.NoError(t, err)
	assert.Contains(t, out, "profile: fast")
	assert.Contains(t, out, "verifyGraph: false")

	_, err = execute(t, "--profile", "nope", "options")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "check", loops)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

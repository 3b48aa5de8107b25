package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeSource writes src to a temp file and returns its path, matching how
// the teacher's own table-driven test reads fixtures off disk rather than
// compiling from an in-memory string (§6's "source file" contract).
func writeSource(t *testing.T, name, src string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

// §8's end-to-end scenarios, run as black-box invocations of run().
func TestEndToEndScenarios(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		status int
	}{
		{"hello_exit", `int main() { return 42; }`, 42},
		{"arithmetic_precedence", `int main() { return 1 + 2 * 3; }`, 7},
		{"short_circuit", `int f() { return 1; } int main() { return 0 && f() ? 100 : 7; }`, 7},
		{
			"pointer_arithmetic_arrays",
			`int main() { int *p; p = malloc(16); *p = 10; *(p+1) = 20; return p[0] + p[1]; }`,
			30,
		},
		{
			"shadowing",
			`int x; int f(int x) { return x + 1; } int main() { x = 5; return f(10) + x; }`,
			16,
		},
		{
			"enum",
			`enum { A, B = 5, C } int main() { return A + B + C; }`,
			11,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeSource(t, tt.name+".c", tt.src)
			out := &bytes.Buffer{}
			status := run([]string{path}, out)
			require.Equal(t, tt.status, status, "output:\n%s", out.String())
		})
	}
}

func TestSourceFlagCompilesWithoutRunning(t *testing.T) {
	// -s echoes a source line when its newline is reached.
	path := writeSource(t, "hello.c", "int main() { return 42; }\n")
	out := &bytes.Buffer{}
	status := run([]string{"-s", path}, out)
	require.Equal(t, 0, status)
	require.NotEmpty(t, out.String())
}

func TestDebugFlagTracesInstructions(t *testing.T) {
	path := writeSource(t, "hello.c", `int main() { return 42; }`)
	out := &bytes.Buffer{}
	status := run([]string{"-d", path}, out)
	require.Equal(t, 42, status)
	require.Contains(t, out.String(), "exit(42) cycle =")
}

func TestMissingMainIsSetupFailure(t *testing.T) {
	path := writeSource(t, "nomain.c", `int f() { return 1; }`)
	out := &bytes.Buffer{}
	status := run([]string{path}, out)
	require.Equal(t, -1, status)
	require.Contains(t, out.String(), "main() not defined")
}

func TestNoFileArgumentPrintsUsage(t *testing.T) {
	out := &bytes.Buffer{}
	status := run(nil, out)
	require.Equal(t, -1, status)
	require.Contains(t, out.String(), "usage: minicc")
}

func TestMissingSourceFileIsSetupFailure(t *testing.T) {
	out := &bytes.Buffer{}
	status := run([]string{filepath.Join(t.TempDir(), "nope.c")}, out)
	require.Equal(t, -1, status)
}

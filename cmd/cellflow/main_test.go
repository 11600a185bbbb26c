package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pumped-fn/cells-go/pkg/graphfile"
)

const demo = `
name: demo
nodes:
  - name: greeting
    kind: const
    value: hi
  - name: shout
    kind: exec
    command: tr a-z A-Z
    after: [greeting]
  - name: show
    kind: print
    after: [shout]
`

func writeGraph(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := newRootCmd(&app{logger: zap.NewNop()})
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRunSequential(t *testing.T) {
	stdout, _, err := execute(t, "run", writeGraph(t, demo))
	require.NoError(t, err)
	assert.Equal(t, "show: HI\n", stdout)
}

func TestRunConcurrentWithTrace(t *testing.T) {
	stdout, stderr, err := execute(t, "run", "--mode", "concurrent", "--concurrency", "2", "--trace", writeGraph(t, demo))
	require.NoError(t, err)
	assert.Equal(t, "show: HI\n", stdout)
	assert.Contains(t, stderr, "concurrent pass [success]")
	assert.Contains(t, stderr, "shout [success]")
}

func TestRunWithMetrics(t *testing.T) {
	stdout, _, err := execute(t, "run", "--metrics-addr", "127.0.0.1:0", writeGraph(t, demo))
	require.NoError(t, err)
	assert.Equal(t, "show: HI\n", stdout)
}

func TestRunFlowUntilDeadline(t *testing.T) {
	path := writeGraph(t, `
name: ticking
nodes:
  - name: tick
    kind: timer
    interval: 10ms
  - name: show
    kind: print
    after: [tick]
`)
	stdout, _, err := execute(t, "run", "--mode", "flow", "--for", "150ms",
		"--flow-rate", "1000", "--flow-concurrent", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "show: ")
}

func TestRunRejectsUnknownMode(t *testing.T) {
	_, _, err := execute(t, "run", "--mode", "sideways", writeGraph(t, demo))
	assert.ErrorContains(t, err, `unknown mode "sideways"`)
}

func TestRunReportsNodeFailures(t *testing.T) {
	path := writeGraph(t, `
nodes:
  - name: broken
    kind: exec
    command: "false"
`)
	_, _, err := execute(t, "run", path)
	assert.ErrorContains(t, err, "node broken")
}

func TestDot(t *testing.T) {
	stdout, _, err := execute(t, "dot", writeGraph(t, demo))
	require.NoError(t, err)
	assert.Contains(t, stdout, `digraph "demo" {`)
	assert.Contains(t, stdout, `"greeting" -> "shout";`)
}

func TestValidate(t *testing.T) {
	path := writeGraph(t, demo)
	stdout, _, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Equal(t, path+": ok (3 nodes, 0 inputs)\n", stdout)

	_, _, err = execute(t, "validate", writeGraph(t, "nodes:\n  - name: a\n    kind: bogus\n"))
	assert.ErrorIs(t, err, graphfile.ErrInvalid)

	_, _, err = execute(t, "validate")
	assert.Error(t, err)
}

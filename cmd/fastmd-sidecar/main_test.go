package main

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	fmerrors "fastmd/internal/errors"
	"fastmd/internal/render"
	"fastmd/internal/sidecar"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestServeAnswersUntilEndOfInput(t *testing.T) {
	input := `{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n" +
		`{"jsonrpc":"2.0","id":2,"method":"normalize","params":{"content":"a\r\nb"}}` + "\n"

	out, err := execute(t, input, "--workers", "2", "--log-level", "error")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{"pong":true}}`, lines[0])
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":2,"result":{"content":"a\nb","changed":true}}`, lines[1])
}

// freePort reserves an ephemeral loopback port and releases it for the caller.
func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

func TestServeWithMetricsEnabled(t *testing.T) {
	port := strconv.Itoa(freePort(t))
	input := `{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n"

	out, err := execute(t, input, "--log-level", "error", "--metrics", "--metrics-port", port)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{"pong":true}}`, strings.TrimSpace(out))

	// The scrape server is released on exit, so the port can be bound again.
	out, err = execute(t, input, "--log-level", "error", "--metrics", "--metrics-port", port)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{"pong":true}}`, strings.TrimSpace(out))
}

func TestServeStopsOnShutdown(t *testing.T) {
	input := `{"jsonrpc":"2.0","method":"shutdown"}` + "\n" +
		`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n"

	out, err := execute(t, input, "--log-level", "error")
	assert.ErrorIs(t, err, fmerrors.ErrShutdownRequested)
	assert.Empty(t, out)
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	md := filepath.Join(dir, "intro.md")
	mdx := filepath.Join(dir, "card.mdx")
	require.NoError(t, os.WriteFile(md, []byte("# Intro\n\nHello"), 0o644))
	require.NoError(t, os.WriteFile(mdx, []byte("import X from './x'\n\n# Card"), 0o644))
	outDir := filepath.Join(dir, "out")

	out, err := execute(t, "", "render", "--log-level", "error", "-o", outDir, md, mdx)
	require.NoError(t, err)
	assert.Contains(t, out, "intro.md")
	assert.Contains(t, out, "2 succeeded, 0 failed")

	code, err := os.ReadFile(filepath.Join(outDir, "intro.js"))
	require.NoError(t, err)
	assert.Contains(t, string(code), "export default")
	assert.Contains(t, string(code), "Intro</h1>")

	card, err := os.ReadFile(filepath.Join(outDir, "card.js"))
	require.NoError(t, err)
	assert.Contains(t, string(card), "import X from './x'")
	assert.NotContains(t, string(code), "import X")
}

func TestRenderCommandWritesEachOutputToItsOwnFile(t *testing.T) {
	dir := t.TempDir()
	big := filepath.Join(dir, "big.md")
	small := filepath.Join(dir, "small.mdx")

	var content strings.Builder
	content.WriteString("# Big\n\n")
	for i := 0; i < 20000; i++ {
		content.WriteString("Some *emphasis* and a [link](https://example.com) in a long paragraph.\n\n")
	}
	require.NoError(t, os.WriteFile(big, []byte(content.String()), 0o644))
	require.NoError(t, os.WriteFile(small, []byte("import Card from './card'\n\n# Small"), 0o644))
	outDir := filepath.Join(dir, "out")

	out, err := execute(t, "", "render", "--log-level", "error", "--workers", "2", "-o", outDir, big, small)
	require.NoError(t, err)
	assert.Contains(t, out, "2 succeeded, 0 failed")

	bigCode, err := os.ReadFile(filepath.Join(outDir, "big.js"))
	require.NoError(t, err)
	assert.Contains(t, string(bigCode), "// Generated from: "+big)
	assert.Contains(t, string(bigCode), "Big</h1>")
	assert.NotContains(t, string(bigCode), "import Card")

	smallCode, err := os.ReadFile(filepath.Join(outDir, "small.js"))
	require.NoError(t, err)
	assert.Contains(t, string(smallCode), "// Generated from: "+small)
	assert.Contains(t, string(smallCode), "import Card from './card'")
	assert.NotContains(t, string(smallCode), "Big</h1>")
}

func TestRenderCommandMissingFile(t *testing.T) {
	_, err := execute(t, "", "render", "--log-level", "error", filepath.Join(t.TempDir(), "absent.md"))
	assert.Error(t, err)
}

func TestDigestCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "package.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	out, err := execute(t, "", "digest", "--log-level", "error", path)
	require.NoError(t, err)

	records, err := sidecar.CollectFileRecords(t.Context(), []string{path}, 1)
	require.NoError(t, err)
	assert.Equal(t, sidecar.ComputeDigest(records), strings.TrimSpace(out))
}

func TestModuleName(t *testing.T) {
	assert.Equal(t, "intro.js", moduleName("docs/intro.md"))
	assert.Equal(t, "card.js", moduleName("card.mdx"))
	assert.Equal(t, "README.js", moduleName("README"))
}

func TestInvalidConfigRejected(t *testing.T) {
	_, err := execute(t, "", "digest", "--full-queue-policy", "drop", "x")
	assert.Error(t, err)
}

func TestEngineFlagListsRegisteredEngines(t *testing.T) {
	registry, err := render.NewRegistry(render.Options{})
	require.NoError(t, err)

	usage := newRootCommand().PersistentFlags().Lookup("engine").Usage
	for _, name := range registry.Engines() {
		assert.Contains(t, usage, name)
	}
}

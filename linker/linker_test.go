package linker_test

import (
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasmc/compiler"
	"github.com/wippyai/wasmc/errors"
	"github.com/wippyai/wasmc/internal/wasmtest"
	"github.com/wippyai/wasmc/linker"
)

// fakeLinker writes a shell script that records its arguments and runs body.
func fakeLinker(t *testing.T, body string) (string, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts unavailable")
	}
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	script := "#!/bin/sh\nprintf '%s\\n' \"$@\" > " + argsFile + "\n" + body + "\n"
	path := filepath.Join(dir, "fake-ld")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path, argsFile
}

func TestArgv(t *testing.T) {
	c := linker.Command{Path: "ld", Args: []string{"-z", "now"}}
	assert.Equal(t,
		[]string{"ld", "-z", "now", "in.o", "-shared", "-o", "out.so"},
		c.Argv("in.o", "out.so"))
	assert.Equal(t, []string{"ld", "a.o", "-shared", "-o", "b.so"}, linker.Default.Argv("a.o", "b.so"))
}

func TestLinkSuccess(t *testing.T) {
	path, argsFile := fakeLinker(t, "exit 0")
	core, logs := observer.New(zap.DebugLevel)

	c := linker.Command{Path: path}.WithLogger(zap.New(core))
	require.NoError(t, c.Link(context.Background(), "guest.o", "guest.so"))

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "guest.o\n-shared\n-o\nguest.so\n", string(args))
	assert.Equal(t, 1, logs.FilterMessage("running linker").Len())
}

func TestLinkFailure(t *testing.T) {
	path, _ := fakeLinker(t, "echo 'undefined symbol: host_sqrt' >&2\nexit 3")

	err := linker.Command{Path: path}.Link(context.Background(), "guest.o", "guest.so")
	require.Error(t, err)

	var le *linker.LinkError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 3, le.ExitStatus)
	assert.Contains(t, le.Stderr, "undefined symbol: host_sqrt")
	assert.Contains(t, err.Error(), "exit status 3")
	assert.ErrorIs(t, err, &errors.Error{Kind: errors.KindLink})
	assert.NotErrorIs(t, err, &errors.Error{Kind: errors.KindIO})
}

func TestLinkMissingBinary(t *testing.T) {
	c := linker.Command{Path: filepath.Join(t.TempDir(), "no-such-ld")}
	err := c.Link(context.Background(), "a.o", "a.so")

	var le *linker.LinkError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, -1, le.ExitStatus)
	assert.NotNil(t, le.Cause)
}

func TestLinkCanceled(t *testing.T) {
	path, _ := fakeLinker(t, "exec sleep 5")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := linker.Command{Path: path}.Link(ctx, "a.o", "a.so")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, context.DeadlineExceeded))
}

func TestLinkSOWithSystemLinker(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("ELF output requires linux")
	}
	if _, err := exec.LookPath("ld"); err != nil {
		t.Skip("ld not in PATH")
	}

	c, err := compiler.New(context.Background(), wasmtest.Add(), compiler.DefaultOptLevel, nil, compiler.DefaultHeapSettings())
	if err != nil {
		t.Skipf("host target unsupported: %v", err)
	}
	obj, err := c.ObjectFile(context.Background())
	require.NoError(t, err)

	dir := t.TempDir()
	objPath := filepath.Join(dir, "add.o")
	soPath := filepath.Join(dir, "add.so")
	require.NoError(t, obj.Write(objPath))
	require.NoError(t, linker.LinkSO(context.Background(), objPath, soPath))

	info, err := os.Stat(soPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

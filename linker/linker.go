package linker

import (
	"bytes"
	"context"
	"os/exec"

	"go.uber.org/zap"
)

// Linker links a relocatable object into a shared library.
type Linker interface {
	Link(ctx context.Context, objPath, soPath string) error
}

// Command runs an external linker as
// "<Path> <Args...> <obj> -shared -o <so>".
type Command struct {
	Logger *zap.Logger
	Path   string
	Args   []string
}

// Default is the system linker resolved through PATH.
var Default = Command{Path: "ld"}

// LinkSO links objPath into soPath with Default.
func LinkSO(ctx context.Context, objPath, soPath string) error {
	return Default.Link(ctx, objPath, soPath)
}

// WithLogger returns a copy of c that logs through l.
func (c Command) WithLogger(l *zap.Logger) Command {
	c.Logger = l
	return c
}

// Argv returns the full command line for linking objPath into soPath.
func (c Command) Argv(objPath, soPath string) []string {
	argv := make([]string, 0, len(c.Args)+5)
	argv = append(argv, c.Path)
	argv = append(argv, c.Args...)
	return append(argv, objPath, "-shared", "-o", soPath)
}

// Link runs the linker and waits for it. A non-zero exit or a failure to
// start the process returns a *LinkError carrying the linker's stderr.
func (c Command) Link(ctx context.Context, objPath, soPath string) error {
	log := c.Logger
	if log == nil {
		log = zap.NewNop()
	}
	argv := c.Argv(objPath, soPath)
	log.Debug("running linker", zap.Strings("argv", argv))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return nil
	}

	le := &LinkError{
		Argv:       argv,
		Stderr:     stderr.String(),
		ExitStatus: -1,
		Cause:      err,
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		le.ExitStatus = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		le.Cause = ctxErr
	}
	log.Debug("linker failed",
		zap.Int("exit_status", le.ExitStatus),
		zap.String("stderr", le.Stderr))
	return le
}

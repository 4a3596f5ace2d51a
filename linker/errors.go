package linker

import (
	"fmt"
	"strings"

	"github.com/wippyai/wasmc/errors"
)

// LinkError is returned when the linker cannot be started or exits
// non-zero.
type LinkError struct {
	Cause      error
	Stderr     string
	Argv       []string
	ExitStatus int
}

func (e *LinkError) Error() string {
	var b strings.Builder
	b.WriteString("[link] link")
	if len(e.Argv) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(e.Argv, " "))
	}
	if e.ExitStatus >= 0 {
		fmt.Fprintf(&b, ": exit status %d", e.ExitStatus)
	} else if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		b.WriteString("\n")
		b.WriteString(s)
	}
	return b.String()
}

func (e *LinkError) Unwrap() error {
	return e.Cause
}

// Is matches *errors.Error targets of kind link.
func (e *LinkError) Is(target error) bool {
	t, ok := target.(*errors.Error)
	if !ok {
		return false
	}
	return t.Kind == errors.KindLink && (t.Phase == "" || t.Phase == errors.PhaseLink)
}

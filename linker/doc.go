// Package linker turns relocatable objects into shared libraries by
// running a system linker.
//
// # Example
//
//	if err := linker.LinkSO(ctx, "guest.o", "guest.so"); err != nil {
//	    var le *linker.LinkError
//	    if errors.As(err, &le) {
//	        fmt.Fprintln(os.Stderr, le.Stderr)
//	    }
//	}
//
// The linker inherits the caller's environment and is never retried.
package linker

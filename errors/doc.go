// Package errors provides structured error types for the wasmc compiler driver.
//
// Errors are categorized by Phase (the pipeline step that failed) and Kind
// (error category). Each error carries enough context (a file path or an
// import key) for a human to locate the failure, plus the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseConfigure, errors.KindConflict).
//		Path("env", "print").
//		Detail("bound to %q, redeclared as %q", "host_print", "other_print").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotFound(errors.PhaseLoad, path, cause)
//	err := errors.InvalidHeap("min reserved size %d exceeds max %d", min, max)
//
// Configuration-class errors (load, patch, configure phases and invalid
// heap settings) leave a driver usable; IsConfiguration reports the class.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors

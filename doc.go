// Package wasmc compiles WebAssembly modules ahead of time into native
// relocatable objects and shared libraries.
//
// A Driver is configured in stages and then consumed by exactly one
// output operation:
//
//	d, err := wasmc.New("guest.wasm", wasmc.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := d.WithBindings(bindings.Env(map[string]string{"print": "host_print"})); err != nil {
//	    log.Fatal(err)
//	}
//	d.WithOptLevel(compiler.OptSpeed)
//	if err := d.ObjectFile(ctx, "guest.o"); err != nil {
//	    log.Fatal(err)
//	}
//
// Every setting also has a chaining form that returns the driver:
//
//	d, err = d.Bindings(b)
//	d = d.OptLevel(compiler.OptNone).GuardSize(64 << 10)
//
// # Package Layout
//
//	wasmc/          Driver: configuration and output operations
//	├── wasm/       Module decoding, re-encoding and instruction views
//	├── loader/     Module ingestion from a filesystem
//	├── bindings/   Import to host symbol registry and bindings files
//	├── patch/      Builtin patching from a native object
//	├── object/     ELF writer and native symbol reader
//	├── compiler/   Compiler handle, heap settings and the native backend
//	├── linker/     Shared library linking through the system linker
//	├── config/     Layered file, environment and flag configuration
//	├── errors/     Structured errors with phase and kind
//	└── cmd/wasmc/  Command line interface
//
// # Errors
//
// Configuration calls return errors that leave the driver usable; they
// are classified by errors.IsConfiguration. Output operations consume the
// driver whether they succeed or not, and any later call returns
// ErrConsumed.
package wasmc

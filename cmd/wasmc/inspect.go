package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasmc"
	"github.com/wippyai/wasmc/config"
	"github.com/wippyai/wasmc/loader"
	"github.com/wippyai/wasmc/wasm"
)

func newInspectCmd() *cobra.Command {
	var interactive bool
	cmd := &cobra.Command{
		Use:   "inspect <module.wasm>",
		Short: "Show a module's imports, their host symbols and its exports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, err := newLogger(conf.LogLevel.String)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			info, err := inspectModule(args[0], conf, log)
			if err != nil {
				return err
			}
			if interactive && term.IsTerminal(int(os.Stdout.Fd())) {
				return runInteractive(info)
			}
			printInfo(cmd.OutOrStdout(), info)
			return nil
		},
	}
	cmd.Flags().AddFlagSet(config.FlagSet())
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "browse imports in a terminal UI")
	return cmd
}

type exportInfo struct {
	name string
	kind string
	typ  string
}

type moduleInfo struct {
	path    string
	memory  string
	imports []wasmc.Import
	exports []exportInfo
	size    int
}

func (m *moduleInfo) unresolved() int {
	n := 0
	for _, imp := range m.imports {
		if imp.Kind == "func" && !imp.Resolved() {
			n++
		}
	}
	return n
}

func inspectModule(path string, conf config.Config, log *zap.Logger) (*moduleInfo, error) {
	m, err := loader.LoadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := newDriver(path, conf, log)
	if err != nil {
		return nil, err
	}

	info := &moduleInfo{
		path:    path,
		size:    len(m.Encode()),
		imports: d.Imports(),
	}
	if mem, ok := m.Memory(); ok {
		info.memory = memoryString(mem)
	}
	for _, e := range m.Exports() {
		ei := exportInfo{name: e.Name, kind: e.KindName()}
		if e.Kind == wasm.KindFunc {
			if ft, ok := m.FuncType(e.Idx); ok {
				ei.typ = ft.String()
			}
		}
		info.exports = append(info.exports, ei)
	}
	return info, nil
}

func memoryString(mem wasm.MemoryType) string {
	lo := humanize.IBytes(mem.Limits.Min * wasm.PageSize)
	if mem.Limits.Max == nil {
		return fmt.Sprintf("%d pages (%s), unbounded", mem.Limits.Min, lo)
	}
	hi := humanize.IBytes(*mem.Limits.Max * wasm.PageSize)
	return fmt.Sprintf("%d-%d pages (%s-%s)", mem.Limits.Min, *mem.Limits.Max, lo, hi)
}

func importStatus(imp wasmc.Import) string {
	switch {
	case imp.Kind != "func":
		return "-"
	case imp.Builtin:
		return imp.Symbol + " (builtin)"
	case imp.Resolved():
		return imp.Symbol
	default:
		return "UNRESOLVED"
	}
}

func printInfo(w io.Writer, info *moduleInfo) {
	fmt.Fprintf(w, "Module: %s (%s)\n", info.path, humanize.Bytes(uint64(info.size)))
	if info.memory != "" {
		fmt.Fprintf(w, "Memory: %s\n", info.memory)
	}

	fmt.Fprintf(w, "\nImports (%d, %d unresolved):\n", len(info.imports), info.unresolved())
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, imp := range info.imports {
		fmt.Fprintf(tw, "  %s/%s\t%s\t%s\t%s\n", imp.Namespace, imp.Field, imp.Kind, imp.Type, importStatus(imp))
	}
	tw.Flush()

	fmt.Fprintf(w, "\nExports (%d):\n", len(info.exports))
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range info.exports {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", e.name, e.kind, strings.TrimSpace(e.typ))
	}
	tw.Flush()
}

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/xyproto/env/v2"

	"github.com/raymyers/ralph-backend/pkg/backend"
	"github.com/raymyers/ralph-backend/pkg/emit"
	"github.com/raymyers/ralph-backend/pkg/ltl"
	"github.com/raymyers/ralph-backend/pkg/target"
	"github.com/raymyers/ralph-backend/pkg/vir"
)

var version = "0.1.0"

// options holds the command line settings of one invocation
type options struct {
	targetFile string

	// Dumps
	dVIR    bool
	dLive   bool
	dInterf bool
	dAlloc  bool
	dSel    bool
	dSched  bool
	dAsm    bool

	jobs         int
	timeout      time.Duration
	strictDeps   bool
	latencyGated bool
	verify       bool
	spillWarn    int // percent
}

// dump describes one -dxxx flag: the file extension it writes and how to
// render a compiled function
type dump struct {
	name   string
	ext    string
	flag   func(o *options) *bool
	desc   string
	render func(w io.Writer, res *backend.Result, tgt *target.Target)
}

var dumps = []dump{
	{"dvir", ".vir", func(o *options) *bool { return &o.dVIR }, "Dump input IR", func(w io.Writer, res *backend.Result, _ *target.Target) {
		vir.NewPrinter(w).PrintFunction(res.Func)
	}},
	{"dlive", ".live", func(o *options) *bool { return &o.dLive }, "Dump liveness sets", func(w io.Writer, res *backend.Result, _ *target.Target) {
		res.Liveness.Print(w, res.Func)
	}},
	{"dinterf", ".interf", func(o *options) *bool { return &o.dInterf }, "Dump interference graph", func(w io.Writer, res *backend.Result, _ *target.Target) {
		res.Graph.Print(w, res.Func.Name)
	}},
	{"dalloc", ".alloc", func(o *options) *bool { return &o.dAlloc }, "Dump register allocation", func(w io.Writer, res *backend.Result, _ *target.Target) {
		res.Coloring.Print(w, res.Func.Name)
	}},
	{"dsel", ".sel", func(o *options) *bool { return &o.dSel }, "Dump selected instructions before scheduling", func(w io.Writer, res *backend.Result, _ *target.Target) {
		ltl.NewPrinter(w).PrintFunction(res.Selected)
	}},
	{"dsched", ".sched", func(o *options) *bool { return &o.dSched }, "Dump block schedules", printSchedules},
	{"dasm", ".s", func(o *options) *bool { return &o.dAsm }, "Dump assembly (default)", func(w io.Writer, res *backend.Result, tgt *target.Target) {
		emit.NewWriter(w, emit.NewTextEncoder(tgt)).WriteFunction(res.Scheduled)
	}},
}

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	// Accept single-dash dump flags like -dasm
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Fprintf(os.Stderr, "ralph-backend: %s\n", line)
		}
		return 1
	}
	return 0
}

// normalizeFlags converts single-dash dump flags like -dlive to --dlive
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = arg
		for _, d := range dumps {
			if arg == "-"+d.name {
				result[i] = "--" + d.name
				break
			}
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "ralph-backend [file]",
		Short: "ralph-backend allocates registers and schedules instructions",
		Long: `ralph-backend reads functions in virtual-register form (YAML),
computes liveness, builds the interference graph, colors it onto the
target's registers with spilling, and list-schedules every block.
Each stage can be dumped with a -dxxx flag.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return compile(cmd.Context(), args[0], opts, out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	bindFlags(rootCmd.Flags(), opts)
	return rootCmd
}

// bindFlags registers the flags. Defaults come from the environment.
func bindFlags(fs *pflag.FlagSet, opts *options) {
	for _, d := range dumps {
		fs.BoolVar(d.flag(opts), d.name, false, d.desc)
	}
	fs.StringVar(&opts.targetFile, "target", env.Str("RALPH_TARGET"), "Target description file (YAML); built-in arm64 if empty [$RALPH_TARGET]")
	fs.IntVarP(&opts.jobs, "jobs", "j", env.Int("RALPH_JOBS", runtime.NumCPU()), "Functions compiled in parallel [$RALPH_JOBS]")
	fs.DurationVar(&opts.timeout, "timeout", 0, "Time budget for the whole program (0 for none)")
	fs.BoolVar(&opts.strictDeps, "strict-deps", false, "Also order write-after-read, write-after-write and memory operations")
	fs.BoolVar(&opts.latencyGated, "latency-gated", false, "Release dependents only when their operands are complete")
	fs.BoolVar(&opts.verify, "verify", false, "Check allocation invariants")
	fs.IntVar(&opts.spillWarn, "spill-warn", env.Int("RALPH_SPILL_WARN", 25), "Warn when more than this percentage of registers spill [$RALPH_SPILL_WARN]")
}

func loadTarget(path string) (*target.Target, error) {
	if path == "" {
		return target.Default(), nil
	}
	return target.LoadFile(path)
}

// compile runs the backend on a file and writes the requested dumps.
// Functions that compiled are dumped even when others failed.
func compile(ctx context.Context, filename string, opts *options, out, errOut io.Writer) error {
	tgt, err := loadTarget(opts.targetFile)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading %s: %w", filename, err)
	}
	prog, err := vir.DecodeProgram(data)
	if err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	results, compileErr := backend.CompileProgram(ctx, prog.Functions, tgt, backend.Options{
		Jobs:           opts.jobs,
		Timeout:        opts.timeout,
		Warn:           errOut,
		SpillWarnRatio: float64(opts.spillWarn) / 100,
		StrictDeps:     opts.strictDeps,
		GateOnLatency:  opts.latencyGated,
		Verify:         opts.verify,
	})
	if results == nil {
		return compileErr
	}

	selected := false
	for _, d := range dumps {
		if *d.flag(opts) {
			selected = true
		}
	}
	for _, d := range dumps {
		if *d.flag(opts) || (!selected && d.name == "dasm") {
			if err := writeDump(filename, d, results, tgt, out); err != nil {
				return err
			}
		}
	}
	return compileErr
}

// writeDump renders every successful result, writes it to the sibling
// file of filename with the dump's extension and also prints it to out
func writeDump(filename string, d dump, results []*backend.Result, tgt *target.Target, out io.Writer) error {
	var buf bytes.Buffer
	first := true
	for _, res := range results {
		if res == nil {
			continue
		}
		if !first {
			fmt.Fprintln(&buf)
		}
		first = false
		d.render(&buf, res, tgt)
	}

	outputFilename := outputFilename(filename, d.ext)
	if err := os.WriteFile(outputFilename, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("error creating %s: %w", outputFilename, err)
	}
	_, err := out.Write(buf.Bytes())
	return err
}

// outputFilename returns the dump file for filename: prog.yaml -> prog.s
func outputFilename(filename, ext string) string {
	for _, in := range []string{".yaml", ".yml"} {
		if strings.HasSuffix(filename, in) {
			return filename[:len(filename)-len(in)] + ext
		}
	}
	return filename + ext
}

// printSchedules writes the schedule of every block of a function
func printSchedules(w io.Writer, res *backend.Result, _ *target.Target) {
	fmt.Fprintf(w, "%s() {\n", res.Func.Name)
	for _, b := range res.Selected.Blocks {
		fmt.Fprintf(w, "  b%d:\n", b.ID)
		res.Schedules[b.ID].Print(w, b.Body)
		if b.Term != nil {
			fmt.Fprintf(w, "    last: %s\n", ltl.FormatInstruction(b.Term))
		}
	}
	fmt.Fprintln(w, "}")
}

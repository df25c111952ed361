package main

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/xyproto/env/v2"
)

const sumProgram = `functions:
  - name: sum
    blocks:
      - id: 1
        instrs:
          - v1 = mov 0
          - v2 = mov 10
          - jmp -> b2
      - id: 2
        instrs:
          - v1 = add v1, v2
          - v2 = sub v2, 1
          - br v2 -> b2, b3
      - id: 3
        instrs:
          - ret v1
`

func writeProgram(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prog.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write program: %v", err)
	}
	return path
}

func TestVersion(t *testing.T) {
	if version == "" {
		t.Error("version should not be empty")
	}
}

func TestFlagsExist(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)

	expectedFlags := []string{
		"dvir", "dlive", "dinterf", "dalloc", "dsel", "dsched", "dasm",
		"target", "jobs", "timeout", "strict-deps", "latency-gated", "verify", "spill-warn",
	}
	for _, flagName := range expectedFlags {
		if cmd.Flags().Lookup(flagName) == nil {
			t.Errorf("expected flag --%s to exist", flagName)
		}
	}
}

func TestEnvironmentDefaults(t *testing.T) {
	// env caches the environment; reload it once the variables are restored
	t.Cleanup(env.Load)
	t.Setenv("RALPH_JOBS", "3")
	t.Setenv("RALPH_SPILL_WARN", "40")
	t.Setenv("RALPH_TARGET", "custom.yaml")
	env.Load()

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	flags := cmd.Flags()

	tests := []struct {
		flag string
		want string
	}{
		{"jobs", "3"},
		{"spill-warn", "40"},
		{"target", "custom.yaml"},
	}
	for _, tt := range tests {
		if got := flags.Lookup(tt.flag).DefValue; got != tt.want {
			t.Errorf("--%s default = %q, want %q", tt.flag, got, tt.want)
		}
	}
}

func TestNormalizeFlags(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"single dash dump", []string{"-dasm", "f.yaml"}, []string{"--dasm", "f.yaml"}},
		{"several dumps", []string{"-dlive", "-dsched", "f.yaml"}, []string{"--dlive", "--dsched", "f.yaml"}},
		{"double dash untouched", []string{"--dalloc", "f.yaml"}, []string{"--dalloc", "f.yaml"}},
		{"other flags untouched", []string{"-j", "2", "--verify"}, []string{"-j", "2", "--verify"}},
		{"unknown single dash", []string{"-dfoo"}, []string{"-dfoo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeFlags(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("normalizeFlags(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestOutputFilename(t *testing.T) {
	tests := []struct {
		in   string
		ext  string
		want string
	}{
		{"prog.yaml", ".s", "prog.s"},
		{"dir/prog.yml", ".live", "dir/prog.live"},
		{"prog", ".alloc", "prog.alloc"},
	}
	for _, tt := range tests {
		if got := outputFilename(tt.in, tt.ext); got != tt.want {
			t.Errorf("outputFilename(%q, %q) = %q, want %q", tt.in, tt.ext, got, tt.want)
		}
	}
}

func TestDumpsWriteFiles(t *testing.T) {
	tests := []struct {
		flag string
		ext  string
		want []string
	}{
		{"--dvir", ".vir", []string{"sum() {", "  b2:", "    v1 = add v1, v2", "br v2 -> b2, b3", "entry: b1"}},
		{"--dlive", ".live", []string{"sum: ", "b2: in {v1, v2} out {v1, v2}", "b3: in {v1} out {}"}},
		{"--dinterf", ".interf", []string{"sum: 2 nodes, 1 edges", "v1: {v2}"}},
		{"--dalloc", ".alloc", []string{"sum: 0 spilled, 0 stack slots", "v1 -> x"}},
		{"--dsel", ".sel", []string{"sum() {", "br x", "entry: b1"}},
		{"--dsched", ".sched", []string{"sum() {", "cycles", "last: ret"}},
		{"--dasm", ".s", []string{".Lsum_1:", "\tcbnz\t", "\tret"}},
	}

	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			path := writeProgram(t, sumProgram)
			var out, errOut bytes.Buffer
			cmd := newRootCmd(&out, &errOut)
			cmd.SetArgs([]string{tt.flag, path})
			if err := cmd.Execute(); err != nil {
				t.Fatalf("execute: %v\nStderr: %s", err, errOut.String())
			}

			for _, want := range tt.want {
				if !strings.Contains(out.String(), want) {
					t.Errorf("stdout missing %q:\n%s", want, out.String())
				}
			}

			file := strings.TrimSuffix(path, ".yaml") + tt.ext
			content, err := os.ReadFile(file)
			if err != nil {
				t.Fatalf("dump file not written: %v", err)
			}
			if string(content) != out.String() {
				t.Errorf("%s differs from stdout", file)
			}
		})
	}
}

func TestDefaultDumpIsAsm(t *testing.T) {
	path := writeProgram(t, sumProgram)
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), ".Lsum_1:") {
		t.Errorf("expected assembly output, got:\n%s", out.String())
	}
	if _, err := os.Stat(strings.TrimSuffix(path, ".yaml") + ".s"); err != nil {
		t.Errorf("assembly file not written: %v", err)
	}
}

func TestDeterministicOutput(t *testing.T) {
	path := writeProgram(t, sumProgram)
	run := func() string {
		var out, errOut bytes.Buffer
		cmd := newRootCmd(&out, &errOut)
		cmd.SetArgs([]string{"--dlive", "--dinterf", "--dalloc", "--dsched", "--dasm", "-j", "4", path})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("execute: %v", err)
		}
		return out.String()
	}
	first := run()
	for i := 0; i < 5; i++ {
		if got := run(); got != first {
			t.Fatalf("run %d differs from the first", i)
		}
	}
}

func TestMissingFile(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing.yaml")})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "error reading") {
		t.Errorf("err = %v, want a read error", err)
	}
}

func TestBadTarget(t *testing.T) {
	path := writeProgram(t, sumProgram)
	targetFile := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(targetFile, []byte("general: [x0]\nfloat: [x0]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"--target", targetFile, path})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "both") {
		t.Errorf("err = %v, want overlapping pools error", err)
	}
}

func TestTimeoutFlag(t *testing.T) {
	path := writeProgram(t, sumProgram)
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"--timeout", time.Minute.String(), "--verify", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
}

func TestNoArgsShowsHelp(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "Usage:") {
		t.Errorf("expected help output, got:\n%s", out.String())
	}
}

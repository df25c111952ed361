package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// E2ETestSpec represents a single end-to-end test case
type E2ETestSpec struct {
	Name         string   `yaml:"name"`
	Input        string   `yaml:"input"`
	Target       string   `yaml:"target,omitempty"`       // Target description written to a file
	Args         []string `yaml:"args,omitempty"`         // Extra command line arguments
	Expect       []string `yaml:"expect"`                 // Strings that must appear in output
	ExpectOrder  []string `yaml:"expect_order"`           // Strings that must appear in this order
	ExpectNot    []string `yaml:"expect_not"`             // Strings that must NOT appear in output
	ExpectErr    []string `yaml:"expect_err"`             // Strings that must appear on stderr
	ExpectErrNot []string `yaml:"expect_err_not"`         // Strings that must NOT appear on stderr
	ExpectError  string   `yaml:"expect_error,omitempty"` // Substring of the returned error
	Skip         string   `yaml:"skip,omitempty"`
}

// E2ETestFile represents the e2e.yaml file structure
type E2ETestFile struct {
	Tests []E2ETestSpec `yaml:"tests"`
}

func TestE2EYAML(t *testing.T) {
	data, err := os.ReadFile("../../testdata/e2e.yaml")
	if err != nil {
		t.Fatalf("e2e.yaml not found: %v", err)
	}

	var testFile E2ETestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse e2e.yaml: %v", err)
	}
	if len(testFile.Tests) == 0 {
		t.Fatal("e2e.yaml has no tests")
	}

	for _, tc := range testFile.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			if tc.Skip != "" {
				t.Skip(tc.Skip)
			}

			tmpDir := t.TempDir()
			input := filepath.Join(tmpDir, "test.yaml")
			if err := os.WriteFile(input, []byte(tc.Input), 0644); err != nil {
				t.Fatalf("failed to write test file: %v", err)
			}

			args := append([]string{}, tc.Args...)
			if tc.Target != "" {
				targetFile := filepath.Join(tmpDir, "target.yaml")
				if err := os.WriteFile(targetFile, []byte(tc.Target), 0644); err != nil {
					t.Fatalf("failed to write target file: %v", err)
				}
				args = append(args, "--target", targetFile)
			}
			args = append(args, input)

			var out, errOut bytes.Buffer
			cmd := newRootCmd(&out, &errOut)
			cmd.SetArgs(args)
			err := cmd.Execute()

			if tc.ExpectError != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tc.ExpectError)
				}
				if !strings.Contains(err.Error(), tc.ExpectError) {
					t.Errorf("error %q does not contain %q", err, tc.ExpectError)
				}
			} else if err != nil {
				t.Fatalf("ralph-backend failed: %v\nStderr: %s", err, errOut.String())
			}

			output := out.String()
			for _, exp := range tc.Expect {
				if !strings.Contains(output, exp) {
					t.Errorf("expected output to contain %q\nGot:\n%s", exp, output)
				}
			}

			pos := 0
			for _, exp := range tc.ExpectOrder {
				idx := strings.Index(output[pos:], exp)
				if idx < 0 {
					t.Errorf("expected %q after offset %d\nGot:\n%s", exp, pos, output)
					break
				}
				pos += idx + len(exp)
			}

			for _, notExp := range tc.ExpectNot {
				if strings.Contains(output, notExp) {
					t.Errorf("expected output NOT to contain %q\nGot:\n%s", notExp, output)
				}
			}

			stderr := errOut.String()
			for _, exp := range tc.ExpectErr {
				if !strings.Contains(stderr, exp) {
					t.Errorf("expected stderr to contain %q\nGot:\n%s", exp, stderr)
				}
			}
			for _, notExp := range tc.ExpectErrNot {
				if strings.Contains(stderr, notExp) {
					t.Errorf("expected stderr NOT to contain %q\nGot:\n%s", notExp, stderr)
				}
			}
		})
	}
}

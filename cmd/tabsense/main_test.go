package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cognicore/tabsense/pkg/tabsense/config"
	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
)

const feedbackCSV = "name,team,feedback\nAlice,red,\"Great job\"\nBob,blue,\"Needs improvement\"\nCara,red,\"Terrible support\"\n"

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--log-level", "error", "--no-cache"))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestEnrichStdinToStdout(t *testing.T) {
	t.Chdir(t.TempDir())

	out, errOut, err := run(t, feedbackCSV, "enrich", "--column", "feedback")
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if lines[0] != "name,team,feedback,sentiment,sentimentScore" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if len(lines) != 4 {
		t.Fatalf("expected 3 data rows, got %d", len(lines)-1)
	}
	if !strings.HasPrefix(lines[1], "Alice,red,Great job,Positive,") {
		t.Fatalf("unexpected first row %q", lines[1])
	}
	if !strings.HasPrefix(lines[3], "Cara,red,Terrible support,Negative,") {
		t.Fatalf("unexpected last row %q", lines[3])
	}
	if !strings.Contains(errOut, "sentiment: 3 rows, 0 failed") {
		t.Fatalf("missing report in stderr: %q", errOut)
	}
}

func TestEnrichFilesWithSummary(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	in := filepath.Join(dir, "feedback.csv")
	if err := os.WriteFile(in, []byte(feedbackCSV), 0644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "enriched.csv")
	summary := filepath.Join(dir, "summary.csv")

	_, _, err := run(t, "", "enrich", "--in", in, "--out", out, "--column", "feedback",
		"--select", "team,feedback", "--id", "team", "--summary-out", summary)
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}

	enriched, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(enriched), "team,feedback,sentiment,sentimentScore\n") {
		t.Fatalf("unexpected enriched output:\n%s", enriched)
	}

	data, err := os.ReadFile(summary)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "team,rows,sentimentScore,Positive,Neutral,Negative,Unknown" {
		t.Fatalf("unexpected summary header %q", lines[0])
	}
	if len(lines) != 3 || !strings.HasPrefix(lines[1], "red,2,") || !strings.HasPrefix(lines[2], "blue,1,") {
		t.Fatalf("unexpected summary:\n%s", data)
	}
}

func TestEnrichErrors(t *testing.T) {
	t.Chdir(t.TempDir())

	if _, _, err := run(t, feedbackCSV, "enrich", "--column", "missing"); !errors.Is(err, internalerr.ErrUnknownColumn) {
		t.Fatalf("expected ErrUnknownColumn, got %v", err)
	}
	if _, _, err := run(t, feedbackCSV, "enrich", "--column", "feedback", "--id", "team"); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig without --summary-out, got %v", err)
	}
	if _, _, err := run(t, feedbackCSV, "enrich", "--column", "feedback", "--mode", "remote"); !errors.Is(err, internalerr.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if _, _, err := run(t, "", "enrich", "--column", "feedback"); !errors.Is(err, internalerr.ErrParse) {
		t.Fatalf("expected ErrParse for empty input, got %v", err)
	}
}

func TestBuildLogger(t *testing.T) {
	if _, err := buildLogger(configLog("debug", true)); err != nil {
		t.Fatalf("buildLogger: %v", err)
	}
	if _, err := buildLogger(configLog("loud", false)); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func configLog(level string, dev bool) config.LogConfig {
	return config.LogConfig{Level: level, Development: dev}
}

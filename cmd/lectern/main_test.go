package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "lectern dev") {
		t.Errorf("expected output to contain 'lectern dev', got: %s", out)
	}
	if !strings.Contains(out, "commit: none") {
		t.Errorf("expected output to contain 'commit: none', got: %s", out)
	}
}

func TestVersionCmdWithCustomValues(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.0.0", "abc123", "2026-01-01"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "lectern 1.0.0") {
		t.Errorf("expected output to contain 'lectern 1.0.0', got: %s", out)
	}
	if !strings.Contains(out, "built: 2026-01-01") {
		t.Errorf("expected output to contain 'built: 2026-01-01', got: %s", out)
	}
}

func TestRootCmdHelp(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("help command failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Lectern") {
		t.Errorf("expected help output to contain 'Lectern', got: %s", out)
	}
	if !strings.Contains(out, "--config") {
		t.Errorf("expected help output to list the --config flag, got: %s", out)
	}
}

func TestRootCmdSubcommands(t *testing.T) {
	cmd := newRootCmd()
	have := make(map[string]bool)
	for _, c := range cmd.Commands() {
		have[c.Name()] = true
	}
	for _, want := range []string{
		"version", "db", "channel", "video", "ingest", "status", "search",
		"bias", "optimize", "queue", "index", "dashboard", "daemon",
	} {
		if !have[want] {
			t.Errorf("missing subcommand %q", want)
		}
	}
}

func TestQueueSubcommands(t *testing.T) {
	cmd := newQueueCmd()
	have := make(map[string]bool)
	for _, c := range cmd.Commands() {
		have[c.Name()] = true
	}
	for _, want := range []string{"list", "approve", "reject", "propose", "execute-approved"} {
		if !have[want] {
			t.Errorf("missing queue subcommand %q", want)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"nope"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

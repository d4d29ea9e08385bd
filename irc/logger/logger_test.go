// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestManager(t *testing.T, method, types, level string) (*Manager, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	config := LoggingConfig{Method: method, TypeString: types, LevelString: level, Writer: &buf}
	if err := config.Resolve(); err != nil {
		t.Fatal(err)
	}
	manager, err := NewManager([]LoggingConfig{config})
	if err != nil {
		t.Fatal(err)
	}
	return manager, &buf
}

func TestResolve(t *testing.T) {
	config := LoggingConfig{Method: "stderr file", Filename: "x.log", TypeString: "* -userinput -useroutput", LevelString: "Warning"}
	if err := config.Resolve(); err != nil {
		t.Fatal(err)
	}
	if !config.MethodStderr || !config.MethodFile || config.MethodStdout {
		t.Errorf("bad methods: %+v", config)
	}
	if config.Level != LogWarning {
		t.Errorf("expected warning level, got %d", config.Level)
	}
	if len(config.Types) != 1 || config.Types[0] != "*" {
		t.Errorf("bad types: %v", config.Types)
	}
	if len(config.ExcludedTypes) != 2 {
		t.Errorf("bad excluded types: %v", config.ExcludedTypes)
	}

	bad := []LoggingConfig{
		{Method: "carrier-pigeon"},
		{Method: "file"},
		{Method: "stdout", LevelString: "loud"},
		{Method: "stdout", TypeString: "-relay"},
	}
	for _, config := range bad {
		if err := config.Resolve(); err == nil {
			t.Errorf("expected error resolving %+v", config)
		}
	}
}

func TestTypeFiltering(t *testing.T) {
	manager, buf := newTestManager(t, "none", "relay registry", "debug")

	manager.Info(TypeRelay, "posted", "session-1")
	manager.Info(TypeConnect, "should not appear")
	manager.Warning("relay-client", "aliased")

	out := buf.String()
	if !strings.Contains(out, "posted : session-1") {
		t.Errorf("missing relay line: %q", out)
	}
	if strings.Contains(out, "should not appear") {
		t.Errorf("connect line leaked: %q", out)
	}
	if !strings.Contains(out, "aliased") {
		t.Errorf("alias was not resolved: %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	manager, buf := newTestManager(t, "none", "*", "warn")
	manager.Debug(TypeServer, "debug line")
	manager.Info(TypeServer, "info line")
	manager.Error(TypeServer, "error line")

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Errorf("low levels leaked: %q", out)
	}
	if !strings.Contains(out, " : error : server     : error line") {
		t.Errorf("bad error line: %q", out)
	}
}

func TestExclusions(t *testing.T) {
	manager, buf := newTestManager(t, "none", "* -userinput -useroutput", "debug")
	if manager.IsLoggingRawIO() {
		t.Error("raw io should be off when both io types are excluded")
	}
	manager.Debug(TypeUserInput, "secret line")
	manager.Debug(TypeSession, "visible")
	if strings.Contains(buf.String(), "secret line") {
		t.Errorf("excluded type leaked: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("missing line: %q", buf.String())
	}

	rawIO, _ := newTestManager(t, "none", "*", "debug")
	if !rawIO.IsLoggingRawIO() {
		t.Error("raw io should be on for * at debug")
	}
}

func TestFileSink(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "relayd.log")
	config := LoggingConfig{Method: "file", Filename: filename, LevelString: "info"}
	if err := config.Resolve(); err != nil {
		t.Fatal(err)
	}
	manager, err := NewManager([]LoggingConfig{config})
	if err != nil {
		t.Fatal(err)
	}
	manager.Info(TypeDatastore, "opened")
	manager.Close()

	contents, err := os.ReadFile(filename)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(contents), "opened") {
		t.Errorf("file sink missing line: %q", contents)
	}
}

func TestApplyConfigReplacesSinks(t *testing.T) {
	manager, first := newTestManager(t, "none", "*", "info")

	var second bytes.Buffer
	config := LoggingConfig{Method: "none", LevelString: "info", Writer: &second}
	if err := config.Resolve(); err != nil {
		t.Fatal(err)
	}
	if err := manager.ApplyConfig([]LoggingConfig{config}); err != nil {
		t.Fatal(err)
	}
	manager.Info(TypeRehash, "after")
	if first.Len() != 0 || !strings.Contains(second.String(), "after") {
		t.Errorf("rehash did not switch sinks: %q / %q", first.String(), second.String())
	}
}

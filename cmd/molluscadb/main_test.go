package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"molluscadb/internal/auth"
	"molluscadb/internal/config"
)

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := "log:\n  level: error\n" +
		"storage:\n  driver: sqlite\n  sqlitepath: " + filepath.Join(dir, "state.db") + "\n" +
		"blob:\n  driver: fs\n  root: " + filepath.Join(dir, "archive") + "\n"
	path := filepath.Join(dir, "molluscadb.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path, dir
}

func TestImportThenExport(t *testing.T) {
	cfg, dir := writeConfig(t)
	csvPath := filepath.Join(dir, "primers.csv")
	if err := os.WriteFile(csvPath, []byte("name,sequence\nITS1,TCCGTAGG\nITS4,TCCTCCGC\n"), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	var out, errOut bytes.Buffer
	if code := run([]string{"--config", cfg, "import", "primers", csvPath}, &out, &errOut); code != 0 {
		t.Fatalf("import exit %d: %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "imported 2 primers records, skipped 0") {
		t.Fatalf("unexpected import output %q", out.String())
	}

	out.Reset()
	target := filepath.Join(dir, "out.csv")
	if code := run([]string{"--config", cfg, "export", "primers", target, "--archive"}, &out, &errOut); code != 0 {
		t.Fatalf("export exit %d: %s", code, errOut.String())
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %q", data)
	}
	if !strings.Contains(out.String(), "wrote 2 rows") || !strings.Contains(out.String(), "archived as exports/primers/") {
		t.Fatalf("unexpected export output %q", out.String())
	}
	archived, err := filepath.Glob(filepath.Join(dir, "archive", "exports", "primers", "*.csv"))
	if err != nil || len(archived) != 1 {
		t.Fatalf("expected one archived export, got %v (%v)", archived, err)
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	cfg, _ := writeConfig(t)
	cases := [][]string{
		{"--config", cfg, "import", "nope", "x.csv"},
		{"--config", cfg, "import", "primers", "missing.csv"},
		{"--config", cfg, "export", "nope"},
		{"--config", "/does/not/exist.yaml", "export", "primers"},
		{"unknown"},
	}
	for _, args := range cases {
		var out, errOut bytes.Buffer
		if code := run(args, &out, &errOut); code != 1 {
			t.Fatalf("expected exit 1 for %v, got %d", args, code)
		}
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(config.LogSettings{Level: "debug", Format: "json"}, &buf).Debug("hello", "k", "v")
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"k":"v"`) {
		t.Fatalf("expected json line, got %q", buf.String())
	}
	buf.Reset()
	newLogger(config.LogSettings{Level: "warn", Format: "text"}, &buf).Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
	newLogger(config.LogSettings{Level: "bogus"}, &buf).Info("shown")
	if !strings.Contains(buf.String(), "msg=shown") {
		t.Fatalf("expected info fallback, got %q", buf.String())
	}
}

func TestProviderFollowsAuthMode(t *testing.T) {
	if _, ok := provider(config.HTTPSettings{AuthMode: "static", StaticEmail: "a@b.c"}).(auth.StaticProvider); !ok {
		t.Fatalf("expected static provider")
	}
	p, ok := provider(config.HTTPSettings{AuthMode: "header", AuthHeader: "X-User"}).(auth.TrustedHeaderProvider)
	if !ok || p.Header != "X-User" {
		t.Fatalf("expected header provider, got %#v", p)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	settings := config.Settings{
		HTTP: config.HTTPSettings{
			Addr:        "127.0.0.1:0",
			AuthMode:    "static",
			StaticEmail: "dev@lab.test",
			SessionTTL:  time.Minute,
		},
		Storage: config.StorageSettings{Driver: "memory"},
		Log:     config.LogSettings{Trace: true, AuditEntries: 10},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	var trace bytes.Buffer
	if err := serve(ctx, settings, slog.New(slog.DiscardHandler), &trace); err != nil {
		t.Fatalf("serve: %v", err)
	}
}

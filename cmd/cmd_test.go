package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"Pogger/pkg/recording/archive"
	"Pogger/pkg/recording/recorder"
)

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	content := "# comment\nPOGGER_TEST_A=plain\nPOGGER_TEST_B=\"quoted value\"\nPOGGER_TEST_C=from-file\nnot a pair\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	t.Setenv("POGGER_TEST_A", "")
	t.Setenv("POGGER_TEST_B", "")
	t.Setenv("POGGER_TEST_C", "from-shell")

	loadDotEnv()

	if got := os.Getenv("POGGER_TEST_A"); got != "plain" {
		t.Fatalf("POGGER_TEST_A = %q", got)
	}
	if got := os.Getenv("POGGER_TEST_B"); got != "quoted value" {
		t.Fatalf("POGGER_TEST_B = %q", got)
	}
	if got := os.Getenv("POGGER_TEST_C"); got != "from-shell" {
		t.Fatalf("shell value overridden: %q", got)
	}
}

func TestRunDemo_RecordsArchiveAndFigure(t *testing.T) {
	base := t.TempDir()
	if err := runDemo(base, false); err != nil {
		t.Fatalf("runDemo: %v", err)
	}

	entries, err := recorder.NewRunIndex(base, "demo").Load()
	if err != nil {
		t.Fatalf("load run index: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 run, got %d", len(entries))
	}

	snap, err := archive.Load(entries[0].Archive)
	if err != nil {
		t.Fatalf("load archive: %v", err)
	}
	d, ok := snap.Datasets["data/arange"]
	if !ok {
		t.Fatalf("missing data/arange, have %v", snap.Datasets)
	}
	if len(d.Shape) != 1 || d.Shape[0] != 10 {
		t.Fatalf("unexpected shape %v", d.Shape)
	}
	if d.Units == nil || *d.Units != "T" {
		t.Fatalf("unexpected units %v", d.Units)
	}
	var values []float64
	if err := d.Decode(&values); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if values[9] != 9 {
		t.Fatalf("unexpected values %v", values)
	}

	a, ok := snap.Attr("data", "string")
	if !ok {
		t.Fatal("missing string attribute")
	}
	var s string
	if err := a.Decode(&s); err != nil || s != "hello" {
		t.Fatalf("string attribute = %q (%v)", s, err)
	}
	if _, ok := snap.Attr("data", "string_units"); ok {
		t.Fatal("string should carry no unit")
	}

	figs, err := filepath.Glob(filepath.Join(filepath.Dir(entries[0].Archive), "figures", "*_hello.svg"))
	if err != nil || len(figs) != 1 {
		t.Fatalf("expected one exported svg, got %v (%v)", figs, err)
	}

	logData, err := os.ReadFile(entries[0].Log)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(logData), "hello\n") {
		t.Fatalf("log missing demo output: %q", logData)
	}
}

func TestInspectAndRunsCommands(t *testing.T) {
	base := t.TempDir()
	if err := runDemo(base, false); err != nil {
		t.Fatalf("runDemo: %v", err)
	}
	entries, err := recorder.NewRunIndex(base, "demo").Load()
	if err != nil || len(entries) != 1 {
		t.Fatalf("load run index: %v (%d entries)", err, len(entries))
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		archivePathFlag = ""
	})

	rootCmd.SetArgs([]string{"inspect", entries[0].Archive})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, want := range []string{"data/", "arange  float64[10]  [T]", `@string = "hello"`} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("inspect output missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	rootCmd.SetArgs([]string{"runs", "--archive-path", base, "--name", "demo"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(out.String(), entries[0].RunID) {
		t.Fatalf("runs output missing run id:\n%s", out.String())
	}
}

package recorder

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"Pogger/pkg/logger"
	"Pogger/pkg/recording/archive"
	"Pogger/pkg/recording/figure"
	"Pogger/pkg/recording/schema"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var testStart = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestRecorder(t *testing.T) (*Recorder, *figure.Manager) {
	t.Helper()
	figs := figure.NewManager()
	r, err := New(Options{
		BaseDir:      t.TempDir(),
		Name:         "test",
		Now:          func() time.Time { return testStart },
		Figures:      figs,
		DisableStdio: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, figs
}

func load(t *testing.T, r *Recorder) *archive.Snapshot {
	t.Helper()
	snap, err := archive.Load(r.Paths().Archive)
	require.NoError(t, err)
	return snap
}

func exportedFiles(t *testing.T, r *Recorder) []string {
	t.Helper()
	entries, err := os.ReadDir(r.Paths().Figures)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func arange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func xAndLabel() (any, error) {
	return schema.Tuple{arange(10), "hello"}, nil
}

func TestCall_EmptyContext(t *testing.T) {
	r, _ := newTestRecorder(t)

	got, err := r.Call(schema.Names("x", "label"), schema.NoUnits, xAndLabel)
	require.NoError(t, err)
	require.Equal(t, schema.Tuple{arange(10), "hello"}, got)

	snap := load(t, r)
	ds, ok := snap.Datasets["data/x"]
	require.True(t, ok)
	var x []int
	require.NoError(t, ds.Decode(&x))
	require.Equal(t, arange(10), x)

	attr, ok := snap.Attr("data", "label")
	require.True(t, ok)
	var label string
	require.NoError(t, attr.Decode(&label))
	require.Equal(t, "hello", label)
}

func TestCall_ContextScopesWrites(t *testing.T) {
	r, _ := newTestRecorder(t)

	_, err := r.Call(schema.Names("x", "label"), schema.NoUnits, xAndLabel)
	require.NoError(t, err)

	r.SetContext("alpha")
	require.Equal(t, "alpha", r.Context())
	_, err = r.Call(schema.Names("x", "label"), schema.Units("T", ""), func() (any, error) {
		return schema.Tuple{[]int{7}, "bye"}, nil
	})
	require.NoError(t, err)

	snap := load(t, r)
	require.True(t, snap.HasGroup("data/alpha"))

	var x []int
	require.NoError(t, snap.Datasets["data/alpha/x"].Decode(&x))
	require.Equal(t, []int{7}, x)
	require.Equal(t, "T", *snap.Datasets["data/alpha/x"].Units)

	require.NoError(t, snap.Datasets["data/x"].Decode(&x))
	require.Equal(t, arange(10), x, "earlier context untouched")

	var label string
	attr, _ := snap.Attr("data/alpha", "label")
	require.NoError(t, attr.Decode(&label))
	require.Equal(t, "bye", label)
	attr, _ = snap.Attr("data", "label")
	require.NoError(t, attr.Decode(&label))
	require.Equal(t, "hello", label)

	r.SetContext("")
	require.Equal(t, "", r.Context())
}

func TestCall_SchemaMismatchStillExports(t *testing.T) {
	r, figs := newTestRecorder(t)
	figs.New("plot")

	got, err := r.Call(schema.Names("x"), schema.NoUnits, func() (any, error) {
		return arange(3), nil
	})
	require.True(t, errors.Is(err, ErrSchemaMismatch), "got %v", err)
	require.Equal(t, arange(3), got, "return value passes through")

	snap := load(t, r)
	require.Empty(t, snap.Datasets)
	require.Equal(t, []string{"data"}, snap.Groups)
	require.Len(t, exportedFiles(t, r), 2)
}

func TestCall_FigureExportedOnceUnderFirstContext(t *testing.T) {
	r, figs := newTestRecorder(t)
	figs.New("lmao")

	noop := func() (any, error) { return nil, nil }

	r.SetContext("first/run")
	_, err := r.Call(schema.Names("x"), schema.NoUnits, noop)
	require.NoError(t, err)

	r.SetContext("second")
	_, err = r.Call(schema.Names("x"), schema.NoUnits, noop)
	require.NoError(t, err)

	prefix := r.Paths().Name
	require.Equal(t, []string{
		prefix + "_first-run_lmao.png",
		prefix + "_first-run_lmao.svg",
	}, exportedFiles(t, r))
}

func TestCall_FailureStillExportsAndReturnsOriginalError(t *testing.T) {
	r, figs := newTestRecorder(t)
	figs.New("partial")
	boom := errors.New("boom")

	got, err := r.Call(schema.Names("x", "label"), schema.NoUnits, func() (any, error) {
		return schema.Tuple{arange(2), "half"}, boom
	})
	require.Equal(t, boom, err)
	require.Equal(t, schema.Tuple{arange(2), "half"}, got)

	snap := load(t, r)
	require.Empty(t, snap.Datasets, "failed call result is absent")
	require.Len(t, exportedFiles(t, r), 2)
}

func TestCall_PanicStillExportsAndRepanics(t *testing.T) {
	r, figs := newTestRecorder(t)
	figs.New("before-panic")

	require.PanicsWithValue(t, "kaput", func() {
		_, _ = r.Call(schema.Names("x"), schema.NoUnits, func() (any, error) {
			panic("kaput")
		})
	})
	require.Len(t, exportedFiles(t, r), 2)
}

func TestCall_WriteConflictIsLocalToLeaf(t *testing.T) {
	r, _ := newTestRecorder(t)

	_, err := r.Call(schema.Names("x"), schema.NoUnits, func() (any, error) {
		return schema.Tuple{arange(3)}, nil
	})
	require.NoError(t, err)

	_, err = r.Call(schema.Names("x", "y"), schema.NoUnits, func() (any, error) {
		return schema.Tuple{5, "ok"}, nil
	})
	require.True(t, errors.Is(err, ErrWriteConflict), "got %v", err)

	snap := load(t, r)
	_, ok := snap.Attr("data", "y")
	require.True(t, ok, "sibling leaf still written")
	_, ok = snap.Attr("data", "x")
	require.False(t, ok)
}

func TestCall_ExportFailureDoesNotBlockOthers(t *testing.T) {
	r, figs := newTestRecorder(t)
	figs.New("bad/label")
	figs.New("good")

	_, err := r.Call(schema.Names("x"), schema.NoUnits, func() (any, error) { return nil, nil })
	require.True(t, errors.Is(err, ErrExportFailed), "got %v", err)

	prefix := r.Paths().Name
	require.Equal(t, []string{prefix + "_good.png", prefix + "_good.svg"}, exportedFiles(t, r))

	// The failed figure is retried on the next call.
	_, err = r.Call(schema.Names("x"), schema.NoUnits, func() (any, error) { return nil, nil })
	require.True(t, errors.Is(err, ErrExportFailed))
}

func TestCall_FigureLabelCannotEscape(t *testing.T) {
	r, figs := newTestRecorder(t)
	figs.New("/../../../escaped")

	_, err := r.Call(schema.Names("x"), schema.NoUnits, func() (any, error) { return nil, nil })
	require.True(t, errors.Is(err, ErrExportFailed))
	require.True(t, errors.Is(err, ErrPathEscape), "got %v", err)
}

func TestRecord_Generic(t *testing.T) {
	r, _ := newTestRecorder(t)

	measure := Record(r, schema.Names("t", "v"), schema.Units("s", "V"), func() (schema.Tuple, error) {
		return schema.Tuple{[]float64{0, 0.5}, 3.3}, nil
	})
	got, err := measure()
	require.NoError(t, err)
	require.Equal(t, schema.Tuple{[]float64{0, 0.5}, 3.3}, got)

	scaled := RecordWith(r, schema.Leaf("scaled"), schema.NoUnits, func(k float64) ([]float64, error) {
		return []float64{k, 2 * k}, nil
	})
	r.SetContext("k2")
	vals, err := scaled(2)
	require.NoError(t, err)
	require.Equal(t, []float64{2, 4}, vals)

	snap := load(t, r)
	require.Contains(t, snap.Datasets, "data/t")
	require.Contains(t, snap.Datasets, "data/k2/scaled")
	attr, ok := snap.Attr("data", "v_units")
	require.True(t, ok)
	var u string
	require.NoError(t, attr.Decode(&u))
	require.Equal(t, "V", u)
}

func TestNew_StorageUnavailable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	r, err := New(Options{BaseDir: blocker, Name: "test", DisableStdio: true, Figures: figure.NewManager()})
	require.Nil(t, r)
	require.True(t, errors.Is(err, ErrStorageUnavailable), "got %v", err)
}

func TestNew_AppendsRunIndex(t *testing.T) {
	base := t.TempDir()
	for i := 0; i < 2; i++ {
		r, err := New(Options{
			BaseDir:      base,
			Name:         "idx",
			Now:          func() time.Time { return testStart.Add(time.Duration(i) * time.Second) },
			Figures:      figure.NewManager(),
			DisableStdio: true,
		})
		require.NoError(t, err)
		require.NoError(t, r.Close())
	}

	entries, err := NewRunIndex(base, "idx").Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NotEqual(t, entries[0].RunID, entries[1].RunID)
	require.FileExists(t, entries[1].Archive)
}

func TestNew_CapturesStdio(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	origOut, origErr := os.Stdout, os.Stderr
	t.Cleanup(func() { os.Stdout, os.Stderr = origOut, origErr })

	sink, err := os.Create(filepath.Join(dir, "terminal"))
	require.NoError(t, err)
	defer sink.Close()
	os.Stdout = sink

	r, err := New(Options{BaseDir: dir, Name: "tee", Figures: figure.NewManager()})
	require.NoError(t, err)

	fmt.Println("measurement done")
	require.NoError(t, r.Close())
	require.Same(t, sink, os.Stdout)

	logged, err := os.ReadFile(r.Paths().Log)
	require.NoError(t, err)
	require.Contains(t, string(logged), "measurement done\n")

	shown, err := os.ReadFile(sink.Name())
	require.NoError(t, err)
	require.Equal(t, "measurement done\n", string(shown))
}

func TestNewPaths_Layout(t *testing.T) {
	p := NewPaths("/base", "exp", testStart)
	require.Equal(t, filepath.Join("/base", "exp", "2024", "01", "02", "03-04-05"), p.Dir)
	require.Equal(t, "2024-01-02T03-04-05_exp", p.Name)
	require.Equal(t, filepath.Join(p.Dir, p.Name+".db"), p.Archive)
	require.Equal(t, filepath.Join(p.Dir, p.Name+".log"), p.Log)
	require.Equal(t, filepath.Join(p.Dir, "figures"), p.Figures)
}

func TestNew_VerboseConfirmsWrites(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, logger.WARN, "pogger")
	t.Cleanup(func() { logger.InitWithWriter(io.Discard, logger.WARN, "") })

	figs := figure.NewManager()
	r, err := New(Options{
		BaseDir:      t.TempDir(),
		Name:         "verbose",
		Verbose:      true,
		Now:          func() time.Time { return testStart },
		Figures:      figs,
		DisableStdio: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	figs.New("trace")
	_, err = r.Call(schema.Names("x", "label"), schema.NoUnits, xAndLabel)
	require.NoError(t, err)

	out := buf.String()
	for _, want := range []string{"Recording started", "Array written", "Value written", "Figure exported", "data/x"} {
		require.Contains(t, out, want)
	}
}

func TestCall_FlushesCapturedOutput(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	origOut, origErr := os.Stdout, os.Stderr
	t.Cleanup(func() { os.Stdout, os.Stderr = origOut, origErr })

	term, err := os.Create(filepath.Join(dir, "terminal"))
	require.NoError(t, err)
	defer term.Close()
	os.Stdout = term

	r, err := New(Options{BaseDir: dir, Name: "flush", Figures: figure.NewManager()})
	require.NoError(t, err)

	_, err = r.Call(schema.Names("n"), schema.NoUnits, func() (any, error) {
		fmt.Println("step 1")
		fmt.Println("step 2")
		return schema.Tuple{2}, nil
	})
	require.NoError(t, err)

	// Both destinations hold the call's output before Close.
	logged, err := os.ReadFile(r.Paths().Log)
	require.NoError(t, err)
	require.Equal(t, "step 1\nstep 2\n", string(logged))
	shown, err := os.ReadFile(term.Name())
	require.NoError(t, err)
	require.Equal(t, "step 1\nstep 2\n", string(shown))

	require.NoError(t, r.Close())
}

const exitBaseEnv = "POGGER_RECORDER_EXIT_BASE"

// exitAfterRecordedCall runs in a child process: one recorded call that
// prints, then an exit that skips Close.
func exitAfterRecordedCall(base string) {
	r, err := New(Options{BaseDir: base, Name: "exit", Figures: figure.NewManager()})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	_, _ = r.Call(schema.Names("n"), schema.NoUnits, func() (any, error) {
		for i := 0; i < 5; i++ {
			fmt.Printf("reading %d\n", i)
		}
		return schema.Tuple{5}, nil
	})
	os.Exit(3)
}

func TestCall_OutputSurvivesExitWithoutClose(t *testing.T) {
	if base := os.Getenv(exitBaseEnv); base != "" {
		exitAfterRecordedCall(base)
		return
	}

	base := t.TempDir()
	cmd := exec.Command(os.Args[0], "-test.run=^TestCall_OutputSurvivesExitWithoutClose$")
	cmd.Env = append(os.Environ(), exitBaseEnv+"="+base)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	err := cmd.Run()

	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "got %v", err)
	require.Equal(t, 3, exitErr.ExitCode())

	want := "reading 0\nreading 1\nreading 2\nreading 3\nreading 4\n"
	require.Contains(t, stdout.String(), want)

	entries, err := NewRunIndex(base, "exit").Load()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	logged, err := os.ReadFile(entries[0].Log)
	require.NoError(t, err)
	require.Equal(t, want, string(logged))

	snap, err := archive.Load(entries[0].Archive)
	require.NoError(t, err)
	_, ok := snap.Attr("data", "n")
	require.True(t, ok)
}

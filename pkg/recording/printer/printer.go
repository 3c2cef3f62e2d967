// Package printer duplicates an output stream into an append-only log file.
package printer

import (
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Printer
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// appendLog is a log file that is opened, appended to and closed on every
// write, so everything up to the last completed write is on disk even if
// the process dies.
type appendLog struct {
	path string
	mu   sync.Mutex
}

func (l *appendLog) append(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "failed to open log file")
	}
	defer f.Close()

	if _, err := f.Write(p); err != nil {
		return errors.Wrap(err, "failed to append to log file")
	}
	return nil
}

// Printer is an io.Writer forwarding every chunk to its sink and to a log
// file.
type Printer struct {
	sink io.Writer
	log  *appendLog
}

// New creates a Printer over sink. The log file at logPath is truncated
// once here and only appended to afterwards.
func New(sink io.Writer, logPath string) (*Printer, error) {
	if err := os.WriteFile(logPath, nil, 0644); err != nil {
		return nil, errors.Wrapf(err, "failed to create log file %q", logPath)
	}
	return &Printer{sink: sink, log: &appendLog{path: logPath}}, nil
}

// Tee returns a Printer over another sink that appends to the same log.
// Appends from both printers are serialized.
func (p *Printer) Tee(sink io.Writer) *Printer {
	return &Printer{sink: sink, log: p.log}
}

// Path returns the log file location.
func (p *Printer) Path() string { return p.log.path }

// Write forwards b to the sink, then appends it to the log. The log gets
// the chunk even if the sink write failed.
func (p *Printer) Write(b []byte) (int, error) {
	n, err := p.sink.Write(b)
	if lerr := p.log.append(b); lerr != nil && err == nil {
		err = lerr
	}
	return n, err
}

// Flush flushes the sink when it buffers. The log needs no flushing since
// every append closes its handle.
func (p *Printer) Flush() error {
	if f, ok := p.sink.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Process-wide installation
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Installation is the process's standard output and error redirected
// through printers sharing one log file.
//
// Each stream is drained by its own goroutine, so chunks reach the
// original streams and the log shortly after they are written but not
// synchronously. Sync is the barrier: once it returns, everything written
// before the call is on both destinations. Output written between two
// Sync calls may interleave stdout and stderr in the log in a different
// order than it was produced; within one stream the order is kept. Output
// after the last Sync is only guaranteed once Uninstall returns.
//
// Only one Installation should exist per process. Installing again wraps
// the streams of the previous Installation without restoring anything.
type Installation struct {
	origStdout *os.File
	origStderr *os.File
	printer    *Printer

	// swap guards the current pipe generation.
	swap    sync.Mutex
	gen     *generation
	stopped bool

	mu  sync.Mutex
	err error
}

// generation is one pair of pipes and the pumps draining them.
type generation struct {
	stdoutW *os.File
	stderrW *os.File
	wg      sync.WaitGroup
}

// Install replaces os.Stdout and os.Stderr with pipes whose contents are
// copied both to the original streams and to the log at logPath.
func Install(logPath string) (*Installation, error) {
	inst := &Installation{
		origStdout: os.Stdout,
		origStderr: os.Stderr,
	}

	out, err := New(inst.origStdout, logPath)
	if err != nil {
		return nil, err
	}
	inst.printer = out

	gen, err := inst.start()
	if err != nil {
		return nil, err
	}
	inst.gen = gen
	os.Stdout = gen.stdoutW
	os.Stderr = gen.stderrW
	return inst, nil
}

// start opens a fresh pipe pair and launches its pumps.
func (i *Installation) start() (*generation, error) {
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create stdout pipe")
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, errors.Wrap(err, "failed to create stderr pipe")
	}

	g := &generation{stdoutW: outW, stderrW: errW}
	g.wg.Add(2)
	go i.pump(&g.wg, outR, i.printer)
	go i.pump(&g.wg, errR, i.printer.Tee(i.origStderr))
	return g, nil
}

// drain closes the write ends of g and waits until its pumps copied
// everything out.
func (g *generation) drain() {
	g.stdoutW.Close()
	g.stderrW.Close()
	g.wg.Wait()
}

// LogPath returns the log file location.
func (i *Installation) LogPath() string { return i.printer.Path() }

// Sync blocks until everything written to os.Stdout and os.Stderr before
// the call reached the original streams and the log. Capture continues on
// a fresh pipe pair. It is a no-op after Uninstall.
func (i *Installation) Sync() error {
	i.swap.Lock()
	defer i.swap.Unlock()
	if i.stopped {
		return i.firstErr()
	}

	next, err := i.start()
	if err != nil {
		return err
	}
	prev := i.gen
	i.gen = next
	os.Stdout = next.stdoutW
	os.Stderr = next.stderrW
	prev.drain()

	return i.firstErr()
}

// Uninstall restores the original streams, waits until everything written
// so far reached both destinations and returns the first copy error seen.
// Calling it again is a no-op.
func (i *Installation) Uninstall() error {
	i.swap.Lock()
	defer i.swap.Unlock()
	if !i.stopped {
		i.stopped = true
		os.Stdout = i.origStdout
		os.Stderr = i.origStderr
		i.gen.drain()
	}
	return i.firstErr()
}

// pump drains r into p until the write end is closed. Write errors are
// remembered but do not stop the drain; a stalled pipe would block the
// writers.
func (i *Installation) pump(wg *sync.WaitGroup, r *os.File, p *Printer) {
	defer wg.Done()
	defer r.Close()

	buf := make([]byte, 32*1024)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := p.Write(buf[:n]); werr != nil {
				i.setErr(werr)
			}
		}
		if rerr != nil {
			if rerr != io.EOF {
				i.setErr(rerr)
			}
			return
		}
	}
}

func (i *Installation) firstErr() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.err
}

func (i *Installation) setErr(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err == nil {
		i.err = err
	}
}

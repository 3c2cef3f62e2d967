package logger

import (
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents log levels
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case INFO:
		return zapcore.InfoLevel
	case WARN:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// ParseLevel maps a LOG_LEVEL style string onto a Level. Unknown values yield fallback.
func ParseLevel(s string, fallback Level) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	}
	return fallback
}

// Logger structure
type Logger struct {
	Level   Level
	Service string
	z       *zap.Logger
	atom    zap.AtomicLevel
}

var globalLogger *Logger

// stderrSink resolves os.Stderr at write time, so log lines follow
// whatever the process currently has installed as its error stream.
type stderrSink struct{}

func (stderrSink) Write(p []byte) (int, error) { return os.Stderr.Write(p) }
func (stderrSink) Sync() error                 { return nil }

// Init initializes the global logger on the process error stream.
func Init(level Level, serviceName string) {
	globalLogger = New(stderrSink{}, level, serviceName)
}

// InitWithWriter initializes the global logger on an arbitrary writer.
func InitWithWriter(w io.Writer, level Level, serviceName string) {
	globalLogger = New(w, level, serviceName)
}

// New builds a Logger writing console-encoded lines to w.
func New(w io.Writer, level Level, serviceName string) *Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	ws, ok := w.(zapcore.WriteSyncer)
	if !ok {
		ws = zapcore.AddSync(w)
	}
	atom := zap.NewAtomicLevelAt(level.zapLevel())
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, atom)

	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))
	if serviceName != "" {
		z = z.With(zap.String("service", serviceName))
	}
	return &Logger{Level: level, Service: serviceName, z: z, atom: atom}
}

// EnableLevel makes the global logger emit entries at level and above. It
// never makes an existing logger quieter, and keeps its writer. Without a
// global logger one is initialized on the error stream.
func EnableLevel(level Level) {
	if globalLogger == nil {
		Init(level, "pogger")
		return
	}
	if level < globalLogger.Level {
		globalLogger.Level = level
		globalLogger.atom.SetLevel(level.zapLevel())
	}
}

// Sync flushes buffered log entries of the global logger.
func Sync() error {
	if globalLogger == nil {
		return nil
	}
	return globalLogger.z.Sync()
}

// Initialized reports whether a global logger has been set up.
func Initialized() bool { return globalLogger != nil }

// Enabled reports whether the global logger emits entries at level.
func Enabled(level Level) bool {
	return globalLogger != nil && level >= globalLogger.Level
}

func (l *Logger) log(level Level, scope string, msg string, ctx map[string]interface{}) {
	if level < l.Level {
		return
	}

	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		if err, ok := ctx[k].(error); ok {
			fields = append(fields, zap.NamedError(k, err))
			continue
		}
		fields = append(fields, zap.Any(k, ctx[k]))
	}

	z := l.z.Named(scope)
	switch level {
	case DEBUG:
		z.Debug(msg, fields...)
	case INFO:
		z.Info(msg, fields...)
	case WARN:
		z.Warn(msg, fields...)
	default:
		z.Error(msg, fields...)
	}
}

// Global functions
func Info(scope string, msg string, args ...map[string]interface{}) {
	if globalLogger == nil {
		return
	}
	ctx := getCtx(args)
	globalLogger.log(INFO, scope, msg, ctx)
}

func Error(scope string, msg string, args ...map[string]interface{}) {
	if globalLogger == nil {
		return
	}
	ctx := getCtx(args)
	globalLogger.log(ERROR, scope, msg, ctx)
}

func Debug(scope string, msg string, args ...map[string]interface{}) {
	if globalLogger == nil {
		return
	}
	ctx := getCtx(args)
	globalLogger.log(DEBUG, scope, msg, ctx)
}

func Warn(scope string, msg string, args ...map[string]interface{}) {
	if globalLogger == nil {
		return
	}
	ctx := getCtx(args)
	globalLogger.log(WARN, scope, msg, ctx)
}

func getCtx(args []map[string]interface{}) map[string]interface{} {
	if len(args) > 0 {
		return args[0]
	}
	return nil
}

package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger creates a ZerologLogger writing to stdout. APP_ENV=dev
// selects the console format and LOG_LEVEL the minimum level. When LOG_FILE
// is set, JSON lines are also appended to that file, rotated at 100 MB.
func NewZerologLogger(component string) Logger {
	if path := os.Getenv("LOG_FILE"); path != "" {
		return newZerolog(os.Stdout, fileOutput(path), component)
	}
	return NewZerologLoggerTo(os.Stdout, component)
}

var (
	filesMu sync.Mutex
	files   = map[string]*lumberjack.Logger{}
)

// fileOutput shares one rotating writer per path between components.
func fileOutput(path string) io.Writer {
	filesMu.Lock()
	defer filesMu.Unlock()
	if w, ok := files[path]; ok {
		return w
	}
	w := &lumberjack.Logger{Filename: path, MaxSize: 100, MaxBackups: 5, Compress: true}
	files[path] = w
	return w
}

// NewZerologLoggerTo is NewZerologLogger with an explicit writer.
func NewZerologLoggerTo(out io.Writer, component string) Logger {
	return newZerolog(out, nil, component)
}

func newZerolog(out, file io.Writer, component string) Logger {
	if strings.ToLower(os.Getenv("APP_ENV")) == "dev" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	if file != nil {
		out = zerolog.MultiLevelWriter(out, file)
	}
	z := zerolog.New(out).Level(levelFromEnv()).With().Timestamp().Str("component", component).Logger()
	return &ZerologLogger{log: z}
}

func levelFromEnv() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL")))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// With returns a child logger carrying an extra field.
func (l *ZerologLogger) With(key string, value any) Logger {
	return &ZerologLogger{log: l.log.With().Interface(key, value).Logger()}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	ev := l.log.Debug()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}

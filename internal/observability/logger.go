// File: internal/observability/logger.go
package observability

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/flowcheck/internal/config"
)

var (
	// globalLogger stores the global logger instance safely across goroutines.
	globalLogger atomic.Pointer[zap.Logger]
	once         sync.Once
)

// ANSI color codes for the terminal.
const (
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorWhite   = "\x1b[37m"
	colorReset   = "\x1b[0m"
)

var colorMap = map[string]string{
	"red":     colorRed,
	"green":   colorGreen,
	"yellow":  colorYellow,
	"blue":    colorBlue,
	"magenta": colorMagenta,
	"cyan":    colorCyan,
	"white":   colorWhite,
}

// Initialize sets up the global zap logger from configuration, writing console
// output to consoleWriter. Only the first call has any effect.
func Initialize(cfg config.LoggerConfig, consoleWriter zapcore.WriteSyncer) {
	once.Do(func() {
		level := zap.NewAtomicLevel()
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level.SetLevel(zap.InfoLevel)
		}

		cores := []zapcore.Core{zapcore.NewCore(getEncoder(cfg), consoleWriter, level)}

		if cfg.LogFile != "" {
			path, err := homedir.Expand(cfg.LogFile)
			if err != nil {
				path = cfg.LogFile
			}
			// The file core is always JSON so CI can ingest scenario logs.
			fileWriter := zapcore.AddSync(&lumberjack.Logger{
				Filename:   path,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			})
			cores = append(cores, zapcore.NewCore(getEncoder(config.LoggerConfig{Format: "json"}), fileWriter, level))
		}

		options := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
		if cfg.AddSource {
			options = append(options, zap.AddCaller())
		}

		name := cfg.ServiceName
		if name == "" {
			name = "flowcheck"
		}
		logger := zap.New(zapcore.NewTee(cores...), options...).Named(name)
		globalLogger.Store(logger)

		zap.ReplaceGlobals(logger)
		zap.RedirectStdLog(logger)
	})
}

// InitializeLogger is Initialize with console output on a locked stdout.
func InitializeLogger(cfg config.LoggerConfig) {
	Initialize(cfg, zapcore.Lock(os.Stdout))
}

// ResetForTest clears the global logger so a test can initialize it again.
func ResetForTest() {
	globalLogger.Store(nil)
	once = sync.Once{}
}

func newColorizedLevelEncoder(colors config.ColorConfig) zapcore.LevelEncoder {
	return func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		var color string
		switch level {
		case zapcore.DebugLevel:
			color = colorMap[colors.Debug]
		case zapcore.InfoLevel:
			color = colorMap[colors.Info]
		case zapcore.WarnLevel:
			color = colorMap[colors.Warn]
		case zapcore.ErrorLevel:
			color = colorMap[colors.Error]
		case zapcore.DPanicLevel:
			color = colorMap[colors.DPanic]
		case zapcore.PanicLevel:
			color = colorMap[colors.Panic]
		case zapcore.FatalLevel:
			color = colorMap[colors.Fatal]
		}

		levelStr := strings.ToUpper(level.String())
		if color == "" {
			enc.AppendString(levelStr)
			return
		}
		enc.AppendString(fmt.Sprintf("%s%s%s", color, levelStr, colorReset))
	}
}

// getEncoder returns a colorized single-line console encoder for "console"
// and a JSON encoder for everything else.
func getEncoder(cfg config.LoggerConfig) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")

	if cfg.Format == "console" {
		encoderConfig.EncodeLevel = newColorizedLevelEncoder(cfg.Colors)
		// Suffix the component name with a dot: "flowcheck.session.wait."
		encoderConfig.EncodeName = func(loggerName string, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(loggerName + ".")
		}
		return zapcore.NewConsoleEncoder(encoderConfig)
	}

	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

// GetLogger returns the initialized global logger, or a development logger
// named "fallback" if Initialize has not run yet.
func GetLogger() *zap.Logger {
	logger := globalLogger.Load()
	if logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			return zap.NewNop()
		}
		l.Warn("Global logger requested before initialization; using fallback.")
		return l.Named("fallback")
	}
	return logger
}

// Secret logs only the length of a sensitive value, never its content.
func Secret(key, value string) zap.Field {
	return zap.Int(key+"_length", len(value))
}

// Sync flushes any buffered log entries. Applications should call this before exiting.
func Sync() {
	logger := globalLogger.Load()
	if logger == nil {
		return
	}
	if err := logger.Sync(); err != nil {
		// Syncing a terminal stdout fails on several platforms; that is not worth reporting.
		msg := err.Error()
		if !strings.Contains(msg, "sync /dev/stdout") &&
			!strings.Contains(msg, "invalid argument") &&
			!strings.Contains(msg, "operation not supported") {
			fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
		}
	}
}

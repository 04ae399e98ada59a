package logger

import (
	"io"
	"os"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 日志级别（复用zapcore定义）
type Level = zapcore.Level

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
	FatalLevel = zapcore.FatalLevel
)

// 结构化字段
type Field = zap.Field

// GetError 包装error为结构化字段
func GetError(err error) Field {
	return zap.Error(err)
}

// Logger 封装zap，支持动态调整级别
type Logger struct {
	l  *zap.Logger
	al *zap.AtomicLevel
}

// New 创建Logger
// out为nil时输出到标准错误
func New(out io.Writer, level Level) *Logger {
	if out == nil {
		out = os.Stderr
	}

	al := zap.NewAtomicLevelAt(level)
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.AddSync(out),
		al,
	)
	return &Logger{l: zap.New(core), al: &al}
}

// SetLevel 动态调整日志级别
func (l *Logger) SetLevel(level Level) {
	if l.al != nil {
		l.al.SetLevel(level)
	}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.l.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.l.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.l.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.l.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...Field) { l.l.Fatal(msg, fields...) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.l.Sugar().Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.l.Sugar().Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.l.Sugar().Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.l.Sugar().Errorf(format, args...) }
func (l *Logger) Fatalf(format string, args ...interface{}) { l.l.Sugar().Fatalf(format, args...) }

// Sync 刷出缓冲的日志
func (l *Logger) Sync() error {
	return l.l.Sync()
}

// 默认Logger，包级函数均作用于它
var (
	std = New(os.Stderr, InfoLevel)
	mu  sync.Mutex
)

// Default 获取默认Logger
func Default() *Logger {
	mu.Lock()
	defer mu.Unlock()
	return std
}

// ReplaceDefault 替换默认Logger
func ReplaceDefault(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	std = l
}

// SetLevel 调整默认Logger的级别
func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	std.SetLevel(level)
}

// Sync 刷出默认Logger缓冲的日志
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	return std.Sync()
}

func Debug(msg string, fields ...Field) { Default().Debug(msg, fields...) }
func Info(msg string, fields ...Field)  { Default().Info(msg, fields...) }
func Warn(msg string, fields ...Field)  { Default().Warn(msg, fields...) }
func Error(msg string, fields ...Field) { Default().Error(msg, fields...) }
func Fatal(msg string, fields ...Field) { Default().Fatal(msg, fields...) }

func Debugf(format string, args ...interface{}) { Default().Debugf(format, args...) }
func Infof(format string, args ...interface{})  { Default().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { Default().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { Default().Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { Default().Fatalf(format, args...) }

// NewProductionRotateByTime 按时间轮转的日志输出（每天一个文件，保留30天）
func NewProductionRotateByTime(filename string) io.Writer {
	out, err := rotatelogs.New(
		filename+".%Y%m%d",
		rotatelogs.WithLinkName(filename),
		rotatelogs.WithMaxAge(30*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return os.Stderr
	}
	return out
}

// NewProductionRotateBySize 按大小轮转的日志输出
func NewProductionRotateBySize(filename string) io.Writer {
	return &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    100, // MB
		MaxAge:     30,  // 天
		MaxBackups: 100,
		Compress:   true,
	}
}

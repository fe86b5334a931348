// 包 logger：统一初始化与获取日志器，避免各模块重复配置；级别与格式来自配置文件或环境变量
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// 默认日志器：在进程级复用；解析流水线的逐年任务可能并发调用 L()
var (
	mu            sync.Mutex
	defaultLogger *slog.Logger
)

// Setup：按环境变量 LOG_LEVEL / LOG_FORMAT 初始化默认日志器
func Setup() *slog.Logger {
	return SetupWith(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

// SetupWith：按给定级别与格式初始化默认日志器
// 约束：输出目标固定为标准错误；未知级别回退为 info，未知格式回退为 text
func SetupWith(level, format string) *slog.Logger {
	return install(newLogger(os.Stderr, level, format))
}

// Discard：丢弃全部输出，供测试使用
func Discard() *slog.Logger {
	return install(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func install(l *slog.Logger) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l
	return l
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel：解析级别文本，大小写不敏感
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// L：获取默认日志器；若未初始化则回退到 Setup
func L() *slog.Logger {
	mu.Lock()
	l := defaultLogger
	mu.Unlock()
	if l == nil {
		return Setup()
	}
	return l
}

// 包 logger：统一初始化与获取日志器，各模块通过 L() 复用同一实例；级别与格式由环境变量控制
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// 默认日志器：进程级共享，避免多处初始化造成输出格式不一致
var defaultLogger *slog.Logger

// Setup：初始化默认日志器
// 背景：解析服务与离线工具共用一套日志配置；按部署环境切换级别与 JSON/文本输出
// 约束：固定输出到标准错误；文件落盘与聚合由部署侧负责
func Setup() *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	var h slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		h = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	} else {
		h = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	}
	defaultLogger = slog.New(h)
	return defaultLogger
}

// L：获取默认日志器；未初始化时回退到 Setup
func L() *slog.Logger {
	if defaultLogger == nil {
		return Setup()
	}
	return defaultLogger
}

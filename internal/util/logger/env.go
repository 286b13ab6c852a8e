package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// 环境变量
const (
	EnvLevel     = "ATS_LOG_LEVEL"
	EnvFormat    = "ATS_LOG_FORMAT"
	EnvAddSource = "ATS_LOG_ADD_SOURCE"
)

// Format 输出格式
type Format int

const (
	// FormatText key=value 文本（默认）
	FormatText Format = iota
	// FormatJSON 每行一个 JSON 对象
	FormatJSON
)

// Config 日志配置
type Config struct {
	// Default 未单独配置的子系统使用的级别
	Default slog.Level

	// Levels 子系统级别
	Levels map[string]slog.Level

	Format    Format
	AddSource bool
}

// LevelFor 返回子系统的级别
func (c *Config) LevelFor(name string) slog.Level {
	if l, ok := c.Levels[name]; ok {
		return l
	}
	return c.Default
}

var (
	envOnce sync.Once
	envCfg  *Config
)

// ConfigFromEnv 返回从环境变量解析的配置（只解析一次）
func ConfigFromEnv() *Config {
	envOnce.Do(func() {
		envCfg = ParseConfig(os.Getenv)
	})
	return envCfg
}

// ParseConfig 用 getenv 解析配置
//
// ATS_LOG_LEVEL 形如 "ats/suggest=debug,mesh/queue=warn,info"：
// 带 "=" 的项设置子系统级别，不带的项设置默认级别，无法识别的项忽略。
func ParseConfig(getenv func(string) string) *Config {
	cfg := &Config{
		Default: slog.LevelInfo,
		Levels:  make(map[string]slog.Level),
	}

	for _, item := range strings.Split(getenv(EnvLevel), ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, lvl, scoped := strings.Cut(item, "=")
		if !scoped {
			if l, ok := parseLevel(item); ok {
				cfg.Default = l
			}
			continue
		}
		if l, ok := parseLevel(strings.TrimSpace(lvl)); ok {
			cfg.Levels[strings.TrimSpace(name)] = l
		}
	}

	if strings.EqualFold(strings.TrimSpace(getenv(EnvFormat)), "json") {
		cfg.Format = FormatJSON
	}

	switch strings.ToLower(strings.TrimSpace(getenv(EnvAddSource))) {
	case "", "0", "false", "no":
	default:
		cfg.AddSource = true
	}
	return cfg
}

// ParseLevels 解析 ATS_LOG_LEVEL 格式的级别串
func ParseLevels(levels string) *Config {
	return ParseConfig(func(key string) string {
		if key == EnvLevel {
			return levels
		}
		return os.Getenv(key)
	})
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

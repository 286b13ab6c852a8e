// Package logger 提供 go-ats 的子系统日志
//
// 每个包持有一个子系统 Logger：
//
//	var log = logger.Logger("ats/suggest")
//
//	log.Info("suggestion changed", "peer", peer.ShortString(), "out", bw.Out)
//
// 级别和格式由环境变量决定，进程内只解析一次：
//
//	ATS_LOG_LEVEL=ats/suggest=debug,mesh/queue=warn,info
//	ATS_LOG_FORMAT=json
//	ATS_LOG_ADD_SOURCE=true
//
// 输出默认写到 stderr，SetOutput 可随时切换，已创建的 Logger 同样生效。
package logger

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// subsystem 一个子系统的 Logger 及其可调级别
type subsystem struct {
	level  *slog.LevelVar
	logger *slog.Logger
}

var (
	mu         sync.Mutex
	subsystems = make(map[string]*subsystem)

	// override 由 Apply 设置，优先于环境变量
	override *Config

	outMu sync.RWMutex
	out   io.Writer = os.Stderr
)

func current() *Config {
	if override != nil {
		return override
	}
	return ConfigFromEnv()
}

// Logger 返回子系统的 Logger，同名多次调用返回同一实例
func Logger(name string) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()

	if s, ok := subsystems[name]; ok {
		return s.logger
	}

	cfg := current()
	level := new(slog.LevelVar)
	level.Set(cfg.LevelFor(name))

	s := &subsystem{
		level:  level,
		logger: slog.New(newHandler(cfg, level)).With("subsystem", name),
	}
	subsystems[name] = s
	return s.logger
}

// SetLevel 运行时调整子系统级别，子系统尚未创建时先创建
func SetLevel(name string, level slog.Level) {
	Logger(name)
	mu.Lock()
	subsystems[name].level.Set(level)
	mu.Unlock()
}

// Apply 用 cfg 重设全部子系统的级别，之后创建的子系统同样使用 cfg
//
// 格式和源码位置只影响之后创建的子系统。
func Apply(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()

	override = cfg
	for name, s := range subsystems {
		s.level.Set(cfg.LevelFor(name))
	}
}

// SetOutput 切换所有 Logger 的输出目标
func SetOutput(w io.Writer) {
	outMu.Lock()
	out = w
	outMu.Unlock()
}

// ============================================================================
//                              Handler
// ============================================================================

// writer 每次写入时读取当前输出目标
type writer struct{}

func (writer) Write(p []byte) (int, error) {
	outMu.RLock()
	w := out
	outMu.RUnlock()
	return w.Write(p)
}

func newHandler(cfg *Config, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				a.Key = "ts"
			case slog.LevelKey:
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(levelName(lvl))
				}
			}
			return a
		},
	}
	if cfg.Format == FormatJSON {
		return slog.NewJSONHandler(writer{}, opts)
	}
	return slog.NewTextHandler(writer{}, opts)
}

func levelName(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "debug"
	case l < slog.LevelWarn:
		return "info"
	case l < slog.LevelError:
		return "warn"
	default:
		return "error"
	}
}

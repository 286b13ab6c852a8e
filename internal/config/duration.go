package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration 在 JSON 中写作 "10s" 的 time.Duration
//
// 读取时也接受整数纳秒。
type Duration time.Duration

// UnmarshalJSON 解析 "10s" 或纳秒整数
func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return d.UnmarshalText([]byte(s))
	}

	var ns int64
	if err := json.Unmarshal(data, &ns); err != nil {
		return fmt.Errorf("duration: want string like \"10s\" or integer nanoseconds, got %s", data)
	}
	*d = Duration(ns)
	return nil
}

// UnmarshalText 解析 time.ParseDuration 格式
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalJSON 输出 "10s" 形式
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Duration 返回 time.Duration
func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

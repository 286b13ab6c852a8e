// Package types 定义 go-ats 的基础类型
//
// 本文件定义公共错误类型。
package types

import (
	"errors"
	"fmt"
)

// ============================================================================
//                              逻辑错误
// ============================================================================

// ErrLogic 调用方违反约定（重复添加、未知记录、非法路径等）
//
// 逻辑错误表示调用方的缺陷，而不是瞬时状态。
// 各模块以 %w 包装它，调用方用 errors.Is(err, ErrLogic) 判别。
var ErrLogic = errors.New("logic error")

// LogicErrorf 构造一个包装 ErrLogic 的错误
func LogicErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrLogic, fmt.Sprintf(format, args...))
}

// IsLogicError 检查错误是否为逻辑错误
func IsLogicError(err error) bool {
	return errors.Is(err, ErrLogic)
}

// ============================================================================
//                              通用错误
// ============================================================================

var (
	// ErrEmptyPeerID 空节点 ID
	ErrEmptyPeerID = errors.New("empty peer ID")

	// ErrClosed 组件已关闭
	ErrClosed = errors.New("closed")
)

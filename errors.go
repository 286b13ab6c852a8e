package ats

import (
	"errors"

	"github.com/dep2p/go-ats/internal/core/ats/address"
	"github.com/dep2p/go-ats/internal/core/ats/suggest"
	"github.com/dep2p/go-ats/internal/core/mesh/peers"
	"github.com/dep2p/go-ats/pkg/types"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 服务生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 服务未启动
	ErrNotStarted = errors.New("service not started")

	// ErrAlreadyStarted 服务已启动
	ErrAlreadyStarted = errors.New("service already started")

	// ErrServiceClosed 服务已关闭
	ErrServiceClosed = errors.New("service closed")

	// ErrMeshDisabled 未提供传输层，网状网络不可用
	ErrMeshDisabled = errors.New("mesh disabled")

	// ────────────────────────────────────────────────────────────────────────
	// 调用约定错误（均包装 ErrLogic）
	// ────────────────────────────────────────────────────────────────────────

	// ErrLogic 调用方违反约定
	ErrLogic = types.ErrLogic

	// ErrDuplicateAddress 重复添加地址
	ErrDuplicateAddress = address.ErrDuplicate

	// ErrUnknownAddress 地址记录不存在或已移除
	ErrUnknownAddress = address.ErrUnknownRecord

	// ErrAlreadySubscribed 节点已有推荐订阅
	ErrAlreadySubscribed = suggest.ErrAlreadySubscribed

	// ErrUnknownPeer 节点不在目录中
	ErrUnknownPeer = peers.ErrUnknownPeer
)

// IsLogicError 检查错误是否为调用方违反约定
func IsLogicError(err error) bool {
	return types.IsLogicError(err)
}

package address

import (
	"bytes"
	"fmt"
	"time"

	"github.com/mr-tron/base58"

	"github.com/dep2p/go-ats/pkg/interfaces"
	"github.com/dep2p/go-ats/pkg/types"
)

// Address 节点的一个网络地址
//
// 两个地址当且仅当节点、传输名与原始字节都相同时相等；会话不参与比较。
type Address struct {
	Peer      types.PeerID
	Transport string
	Raw       []byte
}

// Equal 地址是否相同
func (a Address) Equal(b Address) bool {
	return a.Peer == b.Peer && a.Transport == b.Transport && bytes.Equal(a.Raw, b.Raw)
}

// IsInboundOnly 没有原始地址（只能经由对端发起的会话到达）
func (a Address) IsInboundOnly() bool {
	return len(a.Raw) == 0
}

// String 返回可读表示
func (a Address) String() string {
	return fmt.Sprintf("%s/%s/%s", a.Peer.ShortString(), a.Transport, base58.Encode(a.Raw))
}

func (a Address) key() string {
	var b bytes.Buffer
	b.Write(a.Peer[:])
	b.WriteString(a.Transport)
	b.WriteByte(0)
	b.Write(a.Raw)
	return b.String()
}

// SessionID 传输层会话句柄，0 表示没有会话
type SessionID uint64

// NoSession 没有会话
const NoSession SessionID = 0

// Properties 地址的性能属性
type Properties struct {
	// Delay 往返时延
	Delay time.Duration

	// Distance 跳数
	Distance uint32

	// Scope 网络范围，决定适用的配额
	Scope types.NetworkType

	// UtilizationIn/UtilizationOut 测得的吞吐量（字节/秒）
	UtilizationIn  uint64
	UtilizationOut uint64
}

// ============================================================================
//                              Record
// ============================================================================

// Record 地址表中的一条记录
//
// 记录的可变状态由所属地址表的锁保护。
type Record struct {
	table *Table

	id      interfaces.CandidateID
	addr    Address
	session SessionID
	props   Properties

	delayAvg    average
	distanceAvg average
	quality     Quality

	alloc        types.Bandwidth
	active       bool
	inUse        bool
	blockedUntil time.Time
	destroying   bool
	removed      bool
}

// ID 返回记录标识
func (r *Record) ID() interfaces.CandidateID {
	return r.id
}

// Address 返回地址
func (r *Record) Address() Address {
	return r.addr
}

// Peer 返回所属节点
func (r *Record) Peer() types.PeerID {
	return r.addr.Peer
}

// Session 返回当前会话
func (r *Record) Session() SessionID {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()
	return r.session
}

// Properties 返回性能属性快照
func (r *Record) Properties() Properties {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()
	return r.props
}

// Allocation 返回当前分配，0/0 表示不推荐
func (r *Record) Allocation() types.Bandwidth {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()
	return r.alloc
}

// IsActive 是否为所属节点的活跃地址
func (r *Record) IsActive() bool {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()
	return r.active
}

// InUse 传输层是否报告该地址正在使用
func (r *Record) InUse() bool {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()
	return r.inUse
}

// BlockedUntil 返回屏蔽截止时间
func (r *Record) BlockedUntil() time.Time {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()
	return r.blockedUntil
}

// Removed 记录是否已从地址表中移除
func (r *Record) Removed() bool {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()
	return r.removed
}

// Info 返回记录快照
func (r *Record) Info() Info {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()
	return r.infoLocked()
}

func (r *Record) infoLocked() Info {
	return Info{
		ID:         r.id,
		Address:    r.addr,
		Session:    r.session,
		Properties: r.props,
		Quality:    r.quality,
		Bandwidth:  r.alloc,
		Active:     r.active,
		InUse:      r.inUse,
	}
}

// String 返回可读表示
func (r *Record) String() string {
	return fmt.Sprintf("address(%d %s)", r.id, r.addr)
}

// Info 地址记录快照
type Info struct {
	ID         interfaces.CandidateID
	Address    Address
	Session    SessionID
	Properties Properties
	Quality    Quality
	Bandwidth  types.Bandwidth
	Active     bool
	InUse      bool
}

package ats

import (
	"net"
	"time"
)

// ════════════════════════════════════════════════════════════════════════════
//                              地址管理
// ════════════════════════════════════════════════════════════════════════════

// AddressAdd 添加地址
//
// 同一地址重复添加返回 ErrDuplicateAddress。
func (s *Service) AddressAdd(addr Address, session SessionID, props Properties) (*AddressRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.rt.Table.Add(addr, session, props)
}

// AddressUpdate 更新地址的性能属性
func (s *Service) AddressUpdate(rec *AddressRecord, props Properties) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.rt.Table.Update(rec, props)
}

// AddressSetSession 更新地址关联的会话
func (s *Service) AddressSetSession(rec *AddressRecord, session SessionID) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.rt.Table.SetSession(rec, session)
}

// AddressInUse 报告地址开始或停止被传输层使用
//
// 正在使用的地址在求解时被视为当前地址，切换到其他地址需要明显优势。
func (s *Service) AddressInUse(rec *AddressRecord, inUse bool) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.rt.Table.SetInUse(rec, inUse)
}

// AddressType 返回地址所在的网络范围
//
// Unix 套接字与回环地址为 Loopback，本机接口网段内为 LAN，其余为 WAN。
func (s *Service) AddressType(addr net.Addr) NetworkType {
	if s.checkOpen() != nil {
		return NetworkUnspecified
	}
	return s.rt.Classifier.Classify(addr)
}

// AddressDestroy 移除地址
//
// 移除正在推荐的地址时，订阅者先收到 0/0，再收到替代地址（如果有）。
// 在推荐回调中调用时，移除在回调返回、0/0 送达之后执行。
func (s *Service) AddressDestroy(rec *AddressRecord) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.rt.Table.Destroy(rec)
}

// SessionDropped 会话断开
//
// 仅入站的地址被移除，其余地址只解除会话关联。返回移除的地址数。
func (s *Service) SessionDropped(peer PeerID, session SessionID) int {
	if s.checkOpen() != nil {
		return 0
	}
	return s.rt.Table.SessionDropped(peer, session)
}

// ListAddresses 枚举地址
//
// 每个地址回调一次，最后以 done=true 回调一次作为结束标记。
// 服务关闭后只回调结束标记。
func (s *Service) ListAddresses(filter ListFilter, fn func(info AddressInfo, done bool)) {
	if s.checkOpen() != nil {
		fn(AddressInfo{}, true)
		return
	}
	s.rt.Table.List(filter, fn)
}

// BlockAddress 在 d 时间内不再推荐该地址
func (s *Service) BlockAddress(rec *AddressRecord, d time.Duration) {
	if s.checkOpen() != nil {
		return
	}
	s.rt.Engine.BlockAddress(rec, d)
}

// ResetBackoff 解除节点全部地址的屏蔽
func (s *Service) ResetBackoff(peer PeerID) {
	if s.checkOpen() != nil {
		return
	}
	s.rt.Engine.ResetBackoff(peer)
}

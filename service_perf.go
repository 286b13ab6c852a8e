package ats

import (
	"time"
)

// ════════════════════════════════════════════════════════════════════════════
//                              偏好
// ════════════════════════════════════════════════════════════════════════════

// ChangePreference 调整节点的偏好
func (s *Service) ChangePreference(peer PeerID, prefs ...Preference) {
	if s.checkOpen() != nil {
		return
	}
	s.rt.Preferences.Change(peer, prefs...)
}

// Feedback 报告过去 window 时间内偏好被满足的程度
//
// 每个值是满足度比例：大于 1 表示需要更多，偏好被放大；小于 1 则被缩小。
func (s *Service) Feedback(peer PeerID, window time.Duration, prefs ...Preference) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.rt.Preferences.Feedback(peer, window, prefs...)
}

// Preferences 返回全部偏好记录，服务关闭后返回 nil
func (s *Service) Preferences() []PreferenceRecord {
	if s.checkOpen() != nil {
		return nil
	}
	return s.rt.Preferences.Records()
}

// ════════════════════════════════════════════════════════════════════════════
//                              带宽预留
// ════════════════════════════════════════════════════════════════════════════

// Reserve 预留 amount 字节的入站带宽
//
// 预留要么全部满足，要么 granted 为 0 并给出 retryAfter。
// amount 为负表示释放此前的预留。
func (s *Service) Reserve(peer PeerID, amount int64) (granted int64, retryAfter time.Duration) {
	if s.checkOpen() != nil {
		return 0, 0
	}
	return s.rt.Reserver.Reserve(peer, amount)
}

// ReserveAsync 预留并通过回调返回结果
//
// 回调内发起的预留在该回调返回后执行；执行前调用返回值的 Cancel 可以取消。
// 服务关闭后返回 nil，回调不会被调用。
func (s *Service) ReserveAsync(peer PeerID, amount int64, fn ReservationFunc) *ReservationRequest {
	if s.checkOpen() != nil {
		return nil
	}
	return s.rt.Reserver.ReserveAsync(peer, amount, fn)
}

// ════════════════════════════════════════════════════════════════════════════
//                              吞吐量
// ════════════════════════════════════════════════════════════════════════════

// ReportTraffic 报告与节点之间收发的字节数
func (s *Service) ReportTraffic(peer PeerID, sent, received uint64) {
	if s.checkOpen() != nil {
		return
	}
	s.rt.Sampler.RecordSent(peer, sent)
	s.rt.Sampler.RecordReceived(peer, received)
}

// TrafficStats 返回节点的吞吐量统计
func (s *Service) TrafficStats(peer PeerID) (TrafficStats, bool) {
	if s.checkOpen() != nil {
		return TrafficStats{}, false
	}
	return s.rt.Sampler.Stats(peer)
}

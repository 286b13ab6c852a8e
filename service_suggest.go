package ats

// ════════════════════════════════════════════════════════════════════════════
//                              推荐
// ════════════════════════════════════════════════════════════════════════════

// RequestSuggestion 订阅节点的推荐
//
// 存在可用地址时至少回调一次；Bandwidth 为 0/0 表示应断开。
// 回调内可以再次调用服务，这些调用在回调返回后生效。
func (s *Service) RequestSuggestion(peer PeerID, fn func(Suggestion)) (*Subscription, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.rt.Engine.RequestSuggestion(peer, fn)
}

// CancelSuggestion 取消订阅，之后不再回调
func (s *Service) CancelSuggestion(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.Cancel()
}

// CurrentSuggestion 返回节点当前的推荐
func (s *Service) CurrentSuggestion(peer PeerID) (Suggestion, bool) {
	return s.rt.Engine.Current(peer)
}

package types

import (
	"bytes"
	"time"
)

// HelloAddress Hello 中的一个传输地址
type HelloAddress struct {
	Transport  string
	Raw        []byte
	Expiration time.Time
}

// Hello 节点已知传输地址的签名集合
//
// 用于在失去直连后尝试重新建链。
type Hello struct {
	Peer      PeerID
	Addresses []HelloAddress
}

// Expiration 返回所有地址中最晚的过期时间
func (h *Hello) Expiration() time.Time {
	var exp time.Time
	for _, a := range h.Addresses {
		if a.Expiration.After(exp) {
			exp = a.Expiration
		}
	}
	return exp
}

// IsExpired 所有地址都已过期
func (h *Hello) IsExpired(now time.Time) bool {
	return !now.Before(h.Expiration())
}

// Merge 合并另一个 Hello，返回新对象
//
// 同一地址保留较晚的过期时间。
func (h *Hello) Merge(other *Hello) *Hello {
	out := &Hello{Peer: h.Peer}
	out.Addresses = append(out.Addresses, h.Addresses...)

	for _, a := range other.Addresses {
		merged := false
		for i := range out.Addresses {
			cur := &out.Addresses[i]
			if cur.Transport == a.Transport && bytes.Equal(cur.Raw, a.Raw) {
				if a.Expiration.After(cur.Expiration) {
					cur.Expiration = a.Expiration
				}
				merged = true
				break
			}
		}
		if !merged {
			out.Addresses = append(out.Addresses, a)
		}
	}
	return out
}

package address

import (
	"net"
	"sync"

	"github.com/dep2p/go-ats/pkg/types"
)

// ============================================================================
//                              网络范围识别
// ============================================================================

// InterfaceAddrsFunc 返回本机网络接口地址
type InterfaceAddrsFunc func() ([]net.Addr, error)

// Classifier 根据本机网络接口判断地址所在的网络范围
//
// 判断顺序：Unix 套接字与回环地址为 Loopback；落在任一本机接口网段内为 LAN；
// 其余为 WAN。接口网段由 Refresh 读取，需要周期性调用以跟随接口变化。
type Classifier struct {
	mu       sync.RWMutex
	networks []*net.IPNet

	addrs InterfaceAddrsFunc
}

// NewClassifier 创建范围识别器，addrs 为 nil 时使用 net.InterfaceAddrs
func NewClassifier(addrs InterfaceAddrsFunc) *Classifier {
	if addrs == nil {
		addrs = net.InterfaceAddrs
	}
	return &Classifier{addrs: addrs}
}

// Refresh 重新读取本机接口网段
//
// 读取失败时保留上次的结果。
func (c *Classifier) Refresh() error {
	addrs, err := c.addrs()
	if err != nil {
		log.Debug("list interface addresses failed", "error", err)
		return err
	}

	var networks []*net.IPNet
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		networks = append(networks, &net.IPNet{
			IP:   ipnet.IP.Mask(ipnet.Mask),
			Mask: ipnet.Mask,
		})
	}

	c.mu.Lock()
	c.networks = networks
	c.mu.Unlock()
	return nil
}

// Networks 返回当前的本机网段
func (c *Classifier) Networks() []*net.IPNet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*net.IPNet, len(c.networks))
	copy(out, c.networks)
	return out
}

// Classify 返回 addr 所在的网络范围
func (c *Classifier) Classify(addr net.Addr) types.NetworkType {
	switch a := addr.(type) {
	case *net.UnixAddr:
		return types.NetworkLoopback
	case *net.TCPAddr:
		return c.ClassifyIP(a.IP)
	case *net.UDPAddr:
		return c.ClassifyIP(a.IP)
	case *net.IPAddr:
		return c.ClassifyIP(a.IP)
	case *net.IPNet:
		return c.ClassifyIP(a.IP)
	default:
		return types.NetworkUnspecified
	}
}

// ClassifyIP 返回 ip 所在的网络范围
func (c *Classifier) ClassifyIP(ip net.IP) types.NetworkType {
	if ip == nil {
		return types.NetworkUnspecified
	}
	if ip.IsLoopback() {
		return types.NetworkLoopback
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, n := range c.networks {
		if n.Contains(ip) {
			return types.NetworkLAN
		}
	}
	return types.NetworkWAN
}

package peers

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-ats/internal/config"
	"github.com/dep2p/go-ats/internal/core/mesh/connection"
	"github.com/dep2p/go-ats/internal/core/mesh/meshpath"
	"github.com/dep2p/go-ats/internal/core/mesh/queue"
	"github.com/dep2p/go-ats/internal/core/metrics"
	"github.com/dep2p/go-ats/internal/util/logger"
	"github.com/dep2p/go-ats/pkg/interfaces"
	"github.com/dep2p/go-ats/pkg/types"
)

var log = logger.Logger("mesh/peers")

var (
	// ErrUnknownPeer 节点不在目录中
	ErrUnknownPeer = fmt.Errorf("peers: unknown peer: %w", types.ErrLogic)

	// ErrNoPath 没有可用路径且无法查询 DHT
	ErrNoPath = errors.New("peers: no path")
)

// Deps 目录的外部协作方
type Deps struct {
	// Transmitter 核心传输层（必需）
	Transmitter interfaces.Transmitter

	// Offerer Hello 投递，可为 nil
	Offerer interfaces.HelloOfferer

	// DHT 路径查询，可为 nil
	DHT interfaces.DHT

	// Clock 时钟，nil 时使用系统时钟
	Clock clock.Clock

	// Metrics 指标，可为 nil
	Metrics *metrics.Metrics
}

// Directory 节点目录
//
// 按需创建节点记录，每次访问刷新 last_contact；
// 节点数超过上限时淘汰最久未联系且未被使用的节点。
type Directory struct {
	mu sync.Mutex

	local types.PeerID
	cfg   config.MeshConfig
	deps  Deps
	clock clock.Clock

	peers map[types.PeerID]*Peer

	// DHT 结果去重
	seen *lru.Cache[string, struct{}]

	closed bool
}

// New 创建节点目录
func New(local types.PeerID, cfg config.MeshConfig, deps Deps) (*Directory, error) {
	if deps.Transmitter == nil {
		return nil, errors.New("peers: transmitter required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop()
	}
	size := cfg.SearchCacheSize
	if size <= 0 {
		size = config.DefaultSearchCacheSize
	}
	seen, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("peers: search cache: %w", err)
	}

	return &Directory{
		local: local,
		cfg:   cfg,
		deps:  deps,
		clock: deps.Clock,
		peers: make(map[types.PeerID]*Peer),
		seen:  seen,
	}, nil
}

// Local 返回本地节点
func (d *Directory) Local() types.PeerID {
	return d.local
}

// ============================================================================
//                              查找与淘汰
// ============================================================================

// Get 返回节点记录，不存在时创建
//
// 每次调用都刷新 last_contact。
func (d *Directory) Get(id types.PeerID) *Peer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.getLocked(id)
}

func (d *Directory) getLocked(id types.PeerID) *Peer {
	now := d.clock.Now()
	if p, ok := d.peers[id]; ok {
		p.lastContact = now
		return p
	}

	if d.cfg.MaxPeers > 0 && len(d.peers) >= d.cfg.MaxPeers {
		d.evictOldestLocked()
	}

	p := newPeer(d, id, now)
	d.peers[id] = p
	d.deps.Metrics.Peers.Set(float64(len(d.peers)))
	return p
}

// Lookup 返回已存在的节点记录，不刷新 last_contact
func (d *Directory) Lookup(id types.PeerID) (*Peer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.peers[id]
	return p, ok
}

// Count 返回节点数
func (d *Directory) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.peers)
}

// Iterate 遍历节点快照
func (d *Directory) Iterate(fn func(*Peer) bool) {
	d.mu.Lock()
	snapshot := make([]*Peer, 0, len(d.peers))
	for _, p := range d.peers {
		snapshot = append(snapshot, p)
	}
	d.mu.Unlock()

	for _, p := range snapshot {
		if !fn(p) {
			return
		}
	}
}

// evictOldestLocked 淘汰最久未联系的空闲节点
//
// 第一遍求未被使用节点中最小的 last_contact，
// 第二遍删除所有等于该时间的未被使用节点。
// 被使用的节点（有隧道或短路径）永不淘汰。
func (d *Directory) evictOldestLocked() {
	var (
		oldest time.Time
		found  bool
	)
	for _, p := range d.peers {
		if p.isUsed() {
			continue
		}
		if !found || p.lastContact.Before(oldest) {
			oldest, found = p.lastContact, true
		}
	}
	if !found {
		log.Warn("peer cap reached, nothing evictable", "peers", len(d.peers), "max", d.cfg.MaxPeers)
		return
	}

	for id, p := range d.peers {
		if !p.isUsed() && p.lastContact.Equal(oldest) {
			d.destroyPeerLocked(p)
			delete(d.peers, id)
			d.deps.Metrics.PeersEvicted.Inc()
			log.Debug("peer evicted", "peer", id.ShortString(), "last_contact", oldest)
		}
	}
}

// destroyPeerLocked 释放节点持有的资源（队列关闭在锁外进行）
func (d *Directory) destroyPeerLocked(p *Peer) {
	if p.search != nil {
		p.search.Stop()
		p.search = nil
	}
	p.paths.Clear()
	p.hello = nil
}

// ============================================================================
//                              路径
// ============================================================================

// addPathLocked 登记路径并记录结果
func (d *Directory) addPathLocked(p *Peer, path *meshpath.Path, trusted bool) (*meshpath.Path, error) {
	stored, err := p.paths.Add(path, trusted)
	switch {
	case err == nil:
		d.deps.Metrics.PathsAdded.WithLabelValues("stored").Inc()
	case errors.Is(err, meshpath.ErrUntrustedPath), errors.Is(err, meshpath.ErrEmptyPath):
		d.deps.Metrics.PathsAdded.WithLabelValues("rejected").Inc()
	default:
		d.deps.Metrics.PathsAdded.WithLabelValues("malformed").Inc()
		log.Error("malformed path", "peer", p.id.ShortString(), "path", path.String(), "err", err)
	}
	return stored, err
}

// AddPathToAll 把路径的每个前缀登记给沿途节点
func (d *Directory) AddPathToAll(path *meshpath.Path, confirmed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addPathToAllLocked(path, confirmed)
}

func (d *Directory) addPathToAllLocked(path *meshpath.Path, confirmed bool) {
	meshpath.AddToAll(d.local, path, confirmed, func(owner types.PeerID, prefix *meshpath.Path, trusted bool) {
		_, _ = d.addPathLocked(d.getLocked(owner), prefix, trusted)
	})
}

// ============================================================================
//                              核心层事件
// ============================================================================

// CoreConnected 核心层与 id 建立直连
//
// 登记可信直连路径并为其创建发送队列；
// 隧道正在查找路径时立即尝试建链。
func (d *Directory) CoreConnected(id types.PeerID) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	p := d.getLocked(id)
	if p.isNeighbor() {
		d.mu.Unlock()
		return
	}

	direct := meshpath.New(d.local, id)
	if id == d.local {
		direct = meshpath.New(d.local)
	}
	_, _ = d.addPathLocked(p, direct, true)

	p.conns = make(map[connection.ID]*connection.Connection)
	p.queue = queue.New(id, d.deps.Transmitter, queue.Config{
		MaxQueued: d.cfg.MaxQueuedMessages,
		Clock:     d.clock,
		Metrics:   d.deps.Metrics,
	})
	if p.hasBandwidth {
		p.queue.SetRate(p.bandwidth)
	}

	retry := p.tunnel != nil && len(p.tunnel.conns) == 0
	d.mu.Unlock()

	log.Debug("core connected", "peer", id.ShortString())
	if retry {
		_ = d.Connect(id)
	}
}

// CoreDisconnected 核心层与 id 的直连断开
//
// 弹出直连路径，通知经过该邻居的连接断开，撤销发送请求。
// 对未知节点或非邻居调用是逻辑错误。
func (d *Directory) CoreDisconnected(id types.PeerID) error {
	d.mu.Lock()
	p, ok := d.peers[id]
	if !ok {
		d.mu.Unlock()
		log.Error("disconnect from unknown peer", "peer", id.ShortString())
		return fmt.Errorf("%w: %s", ErrUnknownPeer, id.ShortString())
	}
	if !p.isNeighbor() {
		d.mu.Unlock()
		return types.LogicErrorf("disconnect: %s is not a neighbor", id.ShortString())
	}

	p.paths.PopDirect()
	conns := make([]*connection.Connection, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.conns = nil
	q := p.queue
	p.queue = nil

	// 其他节点经过本地到 id 的路径同样失效
	for _, other := range d.peers {
		other.paths.InvalidateLink(d.local, id)
	}
	d.mu.Unlock()

	log.Debug("core disconnected", "peer", id.ShortString(), "connections", len(conns))
	for _, c := range conns {
		c.NotifyBroken(id)
	}
	q.Close()
	return nil
}

// ============================================================================
//                              隧道与建链
// ============================================================================

// EnsureTunnel 确保存在到 id 的隧道，不发起建链
//
// 返回隧道当前状态。
func (d *Directory) EnsureTunnel(id types.PeerID) (TunnelState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return TunnelNew, types.ErrClosed
	}
	p := d.getLocked(id)
	if p.tunnel == nil {
		p.tunnel = newTunnel()
	}
	return p.tunnel.state, nil
}

// Connect 确保到 id 的隧道并尝试建立一条连接
//
// 有可用路径时沿代价最小的路径发出建链请求；
// 否则在 DHT 中查找路径，隧道进入 Searching。
func (d *Directory) Connect(id types.PeerID) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return types.ErrClosed
	}
	p := d.getLocked(id)
	if p.tunnel == nil {
		p.tunnel = newTunnel()
	}
	t := p.tunnel
	if len(t.conns) >= d.maxTunnelConns() {
		d.mu.Unlock()
		return nil
	}

	for {
		path := p.paths.Best(func(candidate *meshpath.Path) (uint, bool) {
			if t.usesPath(candidate) {
				return 0, false
			}
			return uint(candidate.Len()) + t.overlap(candidate), true
		})
		if path == nil {
			break
		}

		next, ok := d.firstHopLocked(path)
		if !ok {
			// 第一跳不再是邻居，该路径不能再用
			path.Invalidate()
			continue
		}

		c, err := connection.New(d.local, path, d.handleBroken)
		if err != nil {
			path.Invalidate()
			continue
		}
		if next != nil {
			_ = next.addConnectionLocked(c)
		}
		t.conns[c.ID()] = c
		t.state = TunnelWaiting
		d.mu.Unlock()

		d.sendCreate(next, c)
		return nil
	}

	if d.deps.DHT == nil {
		t.refreshState()
		d.mu.Unlock()
		return ErrNoPath
	}
	t.state = TunnelSearching
	start := p.search == nil
	d.mu.Unlock()

	if start {
		d.startSearch(id)
	}
	return nil
}

func (d *Directory) maxTunnelConns() int {
	if d.cfg.MaxTunnelConnections <= 0 {
		return config.DefaultMaxTunnelConnections
	}
	return d.cfg.MaxTunnelConnections
}

// firstHopLocked 返回路径第一跳的邻居；指向自身的路径返回 (nil, true)
func (d *Directory) firstHopLocked(path *meshpath.Path) (*Peer, bool) {
	if path.Len() < 2 {
		return nil, true
	}
	next, ok := d.peers[path.At(1)]
	if !ok || !next.isNeighbor() {
		return nil, false
	}
	return next, true
}

// sendCreate 把建链请求排入第一跳的队列
func (d *Directory) sendCreate(next *Peer, c *connection.Connection) {
	if next == nil {
		_ = c.SetState(connection.StateReady)
		return
	}
	q := next.Queue()
	if q == nil {
		return
	}
	id := c.ID()
	payload := append(id[:0:0], id[:]...)
	payload = append(payload, c.Path().Bytes()...)

	_, err := q.Add(queue.TypeConnectionCreate, payload, c, true, func(_ *queue.Entry, sent int) {
		if sent > 0 {
			_ = c.SetState(connection.StateSent)
		}
	})
	if err != nil {
		log.Warn("queue connection create failed", "conn", c.ID().String(), "err", err)
	}
}

// ConnectionAcked 建链确认到达，连接就绪
func (d *Directory) ConnectionAcked(c *connection.Connection) error {
	if err := c.SetState(connection.StateReady); err != nil {
		return err
	}
	next := c.NextHop(true)
	if next.IsEmpty() {
		return nil
	}
	if p, ok := d.Lookup(next); ok {
		if q := p.Queue(); q != nil {
			q.Unlock(c)
		}
	}
	return nil
}

// handleBroken 连接断开：在相邻跳上通知并取消排队条目，然后销毁
func (d *Directory) handleBroken(c *connection.Connection, broken types.PeerID) {
	d.mu.Lock()
	type hop struct {
		fwd bool
		q   *queue.Queue
	}
	var hops []hop
	for _, fwd := range []bool{true, false} {
		id := c.NextHop(fwd)
		if id.IsEmpty() {
			continue
		}
		p, ok := d.peers[id]
		if !ok || !p.isNeighbor() {
			continue
		}
		delete(p.conns, c.ID())
		if id != broken {
			hops = append(hops, hop{fwd: fwd, q: p.queue})
		}
	}

	var retry types.PeerID
	dest := c.Path().Last()
	if c.IsOrigin(true) {
		if p, ok := d.peers[dest]; ok && p.tunnel != nil {
			delete(p.tunnel.conns, c.ID())
			p.tunnel.refreshState()
			retry = dest
		}
	}
	d.mu.Unlock()

	for _, h := range hops {
		h.q.Cancel(c)
		id := c.ID()
		_, _ = h.q.Add(queue.TypeConnectionBroken, append(id[:0:0], id[:]...), nil, h.fwd, nil)
	}
	c.Destroy()

	if !retry.IsEmpty() {
		_ = d.Connect(retry)
	}
}

// ============================================================================
//                              带宽与 Hello
// ============================================================================

// SetBandwidth 设置到邻居的出站速率（由带宽分配结果驱动）
func (d *Directory) SetBandwidth(id types.PeerID, out uint64) {
	d.mu.Lock()
	p, ok := d.peers[id]
	if !ok {
		d.mu.Unlock()
		return
	}
	p.bandwidth, p.hasBandwidth = out, true
	q := p.queue
	d.mu.Unlock()

	if q != nil {
		q.SetRate(out)
	}
}

// TryConnect 把节点的 Hello 交给传输层
//
// 没有有效 Hello 或没有 Hello 投递方时无操作。
func (d *Directory) TryConnect(id types.PeerID) error {
	d.mu.Lock()
	p, ok := d.peers[id]
	if !ok {
		d.mu.Unlock()
		return nil
	}
	p.lastContact = d.clock.Now()
	h := p.helloLocked()
	d.mu.Unlock()

	if h == nil || d.deps.Offerer == nil {
		return nil
	}
	return d.deps.Offerer.OfferHello(h)
}

// ============================================================================
//                              关闭
// ============================================================================

// Remove 从目录中删除节点
func (d *Directory) Remove(id types.PeerID) {
	d.mu.Lock()
	p, ok := d.peers[id]
	if !ok {
		d.mu.Unlock()
		return
	}
	d.destroyPeerLocked(p)
	q := p.queue
	p.queue, p.conns = nil, nil
	delete(d.peers, id)
	d.deps.Metrics.Peers.Set(float64(len(d.peers)))
	d.mu.Unlock()

	if q != nil {
		q.Close()
	}
}

// Close 停止所有查询并关闭所有队列
func (d *Directory) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	var queues []*queue.Queue
	for _, p := range d.peers {
		d.destroyPeerLocked(p)
		if p.queue != nil {
			queues = append(queues, p.queue)
		}
	}
	d.mu.Unlock()

	for _, q := range queues {
		q.Close()
	}
	return nil
}

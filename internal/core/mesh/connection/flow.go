package connection

// initialWindow 初始允许发送的加密数据个数
const initialWindow = 64

// flowControl 单方向的包号窗口
type flowControl struct {
	lastPIDSent uint32
	lastAckRecv uint32
}

func newFlowControl() flowControl {
	return flowControl{
		lastPIDSent: ^uint32(0), // 下一个包号为 0
		lastAckRecv: initialWindow - 1,
	}
}

func (f *flowControl) canSend() bool {
	return PIDBigger(f.lastAckRecv, f.lastPIDSent)
}

func (f *flowControl) next() uint32 {
	f.lastPIDSent++
	return f.lastPIDSent
}

func (f *flowControl) ack(ack uint32) bool {
	if !PIDBigger(ack, f.lastAckRecv) {
		return false
	}
	f.lastAckRecv = ack
	return true
}

// PIDBigger 在 32 位回绕意义下判断 bigger 是否在 smaller 之后
func PIDBigger(bigger, smaller uint32) bool {
	const half = 1 << 31
	return (bigger > smaller && bigger-smaller < half) ||
		(bigger < smaller && smaller-bigger > half)
}

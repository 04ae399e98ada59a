package coap

import (
	"bytes"
	"testing"
)

// fakeDriver 脚本驱动的宿主环境
// 每次WaitEvent按脚本执行一步：注入响应包或返回超时/错误
type fakeDriver struct {
	handle *COAP_Handle

	mid   uint16
	token []byte

	sent    [][]byte
	waits   []uint32
	signals []COAP_OutSignalEnum

	script []func(d *fakeDriver) CoapError
	step   int

	txErr CoapError
}

func (d *fakeDriver) TxData(buf []byte) CoapError {
	if d.txErr != COAP_ERR_SUCCESS {
		return d.txErr
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	d.sent = append(d.sent, cp)
	return COAP_ERR_SUCCESS
}

func (d *fakeDriver) WaitEvent(timeoutMs uint32) CoapError {
	d.waits = append(d.waits, timeoutMs)
	if d.step >= len(d.script) {
		return COAP_ERR_TIMEOUT
	}
	fn := d.script[d.step]
	d.step++
	return fn(d)
}

func (d *fakeDriver) TxSignal(signal COAP_OutSignalEnum) CoapError {
	d.signals = append(d.signals, signal)
	return COAP_ERR_SUCCESS
}

func (d *fakeDriver) MessageID() uint16 {
	return d.mid
}

func (d *fakeDriver) FillToken(token []byte) CoapError {
	copy(token, d.token)
	return COAP_ERR_SUCCESS
}

func (d *fakeDriver) AllocMemBlock(size int) ([]byte, CoapError) {
	return make([]byte, size), COAP_ERR_SUCCESS
}

func (d *fakeDriver) FreeMemBlock(block []byte) {
}

func (d *fakeDriver) sawSignal(signal COAP_OutSignalEnum) bool {
	for _, s := range d.signals {
		if s == signal {
			return true
		}
	}
	return false
}

// inject 构造一个注入响应包的脚本步骤
func inject(pkt []byte) func(d *fakeDriver) CoapError {
	return func(d *fakeDriver) CoapError {
		if ret := d.handle.RxPacket(pkt); ret != COAP_ERR_SUCCESS {
			return ret
		}
		return COAP_ERR_SUCCESS
	}
}

func newUdpFixture(mid uint16, token []byte) (*COAP_Handle, *fakeDriver) {
	d := &fakeDriver{mid: mid, token: token}
	h := NewHandle("test-udp", COAP_UDP, d)
	d.handle = h
	return h, d
}

// TestUdpMinimalNon 最小NON GET：无选项、无负载、无Token、无回调
// 线上字节：50 01 12 34
func TestUdpMinimalNon(t *testing.T) {
	h, d := newUdpFixture(0x1234, nil)

	reqd := &COAP_RequestDescriptor{
		Type: COAP_TYPE_NONCON,
		Code: COAP_REQ_GET,
	}

	if err := h.SendRequest(reqd); err != COAP_ERR_SUCCESS {
		t.Fatalf("发送失败: %v", err)
	}

	if len(d.sent) != 1 {
		t.Fatalf("应只发送一次，实际%d次", len(d.sent))
	}
	if !bytes.Equal(d.sent[0], []byte{0x50, 0x01, 0x12, 0x34}) {
		t.Errorf("线上字节错误: % X", d.sent[0])
	}
	if len(d.waits) != 0 {
		t.Error("无回调的NON请求不应等待")
	}
}

// TestUdpPiggybackedResponse CON GET带Uri-Path "t"，服务端在ACK中捎带2.05
// 请求：42 01 00 05 AA BB B1 74，响应：62 45 00 05 AA BB FF 58
func TestUdpPiggybackedResponse(t *testing.T) {
	h, d := newUdpFixture(0x0005, []byte{0xAA, 0xBB})
	d.script = []func(*fakeDriver) CoapError{
		inject([]byte{0x62, 0x45, 0x00, 0x05, 0xAA, 0xBB, 0xFF, 0x58}),
	}

	invoked := 0
	reqd := &COAP_RequestDescriptor{
		Type:    COAP_TYPE_CON,
		Code:    COAP_REQ_GET,
		Tkl:     2,
		Options: []COAP_Option{{Num: uint16(COAP_URI_PATH_OPT), Len: 1, Value: []byte("t")}},
		ResponseCallback: func(reqd *COAP_RequestDescriptor, result *COAP_ResultData) {
			invoked++
			if result.RespCode != 0x45 {
				t.Errorf("响应代码应为0x45，实际%02X", result.RespCode)
			}
			if result.Options != nil {
				t.Error("捎带响应无选项")
			}
			if result.Payload.Len != 1 || result.Payload.Buffer[0] != 'X' {
				t.Error("负载应为\"X\"")
			}
		},
	}

	if err := h.SendRequest(reqd); err != COAP_ERR_SUCCESS {
		t.Fatalf("发送失败: %v", err)
	}

	if !bytes.Equal(d.sent[0], []byte{0x42, 0x01, 0x00, 0x05, 0xAA, 0xBB, 0xB1, 0x74}) {
		t.Errorf("请求字节错误: % X", d.sent[0])
	}
	if invoked != 1 {
		t.Errorf("回调应恰好调用一次，实际%d次", invoked)
	}
	if len(d.waits) != 1 || d.waits[0] != COAP_ACK_TIMEOUT_MS {
		t.Errorf("首次等待应为%dms: %v", COAP_ACK_TIMEOUT_MS, d.waits)
	}
	if !d.sawSignal(COAP_SIGNAL_ACK_DID_RECEIVE) {
		t.Error("应发出ACK到达信号")
	}
}

// TestUdpSeparateResponse 空ACK后到达分离CON响应，引擎须回发一个ACK
func TestUdpSeparateResponse(t *testing.T) {
	h, d := newUdpFixture(0x0005, []byte{0xAA, 0xBB})
	d.script = []func(*fakeDriver) CoapError{
		// 纯ACK：回显消息ID，空代码，无Token
		inject([]byte{0x60, 0x00, 0x00, 0x05}),
		// 分离CON 2.05响应：不同消息ID，Token一致
		inject([]byte{0x42, 0x45, 0x00, 0x06, 0xAA, 0xBB, 0xFF, 0x59}),
	}

	invoked := 0
	reqd := &COAP_RequestDescriptor{
		Type:    COAP_TYPE_CON,
		Code:    COAP_REQ_GET,
		Tkl:     2,
		Options: []COAP_Option{{Num: uint16(COAP_URI_PATH_OPT), Len: 1, Value: []byte("t")}},
		ResponseCallback: func(reqd *COAP_RequestDescriptor, result *COAP_ResultData) {
			invoked++
			if result.RespCode != 0x45 {
				t.Errorf("响应代码应为0x45，实际%02X", result.RespCode)
			}
			if result.Payload.Len != 1 || result.Payload.Buffer[0] != 'Y' {
				t.Error("负载应为\"Y\"")
			}
		},
	}

	if err := h.SendRequest(reqd); err != COAP_ERR_SUCCESS {
		t.Fatalf("发送失败: %v", err)
	}

	if invoked != 1 {
		t.Errorf("回调应恰好调用一次，实际%d次", invoked)
	}

	// 发送两次：请求 + 对分离CON响应的ACK（只发一次）
	if len(d.sent) != 2 {
		t.Fatalf("应发送2个包，实际%d个", len(d.sent))
	}
	if !bytes.Equal(d.sent[1], []byte{0x60, 0x00, 0x00, 0x06}) {
		t.Errorf("ACK字节错误: % X", d.sent[1])
	}
	if !d.sawSignal(COAP_SIGNAL_TX_ACK_PACKET) {
		t.Error("应发出ACK发送信号")
	}
}

// TestUdpRetransmitTimeout 无响应时共发送1+MAX_RETRANSMIT次，
// 等待时长按5000+k*6500递增，最终返回超时
func TestUdpRetransmitTimeout(t *testing.T) {
	h, d := newUdpFixture(0x0001, nil)

	reqd := &COAP_RequestDescriptor{
		Type: COAP_TYPE_CON,
		Code: COAP_REQ_GET,
	}

	if err := h.SendRequest(reqd); err != COAP_ERR_TIMEOUT {
		t.Fatalf("期望COAP_ERR_TIMEOUT，实际%v", err)
	}

	if len(d.sent) != 1+COAP_MAX_RETRANSMIT {
		t.Errorf("应共发送%d次，实际%d次", 1+COAP_MAX_RETRANSMIT, len(d.sent))
	}
	for i := 1; i < len(d.sent); i++ {
		if !bytes.Equal(d.sent[i], d.sent[0]) {
			t.Errorf("第%d次重传内容与原始请求不一致", i)
		}
	}

	wantWaits := []uint32{5000, 11500, 18000, 24500}
	if len(d.waits) != len(wantWaits) {
		t.Fatalf("应等待%d次，实际%d次", len(wantWaits), len(d.waits))
	}
	for i, w := range wantWaits {
		if d.waits[i] != w {
			t.Errorf("第%d次等待应为%dms，实际%dms", i, w, d.waits[i])
		}
	}

	if !d.sawSignal(COAP_SIGNAL_TX_RETR_PACKET) {
		t.Error("应发出重传信号")
	}
}

// TestUdpRstAnswer 服务端以RST应答，返回NRST且不调用回调
func TestUdpRstAnswer(t *testing.T) {
	h, d := newUdpFixture(0x0005, nil)
	d.script = []func(*fakeDriver) CoapError{
		inject([]byte{0x70, 0x00, 0x00, 0x05}),
	}

	invoked := false
	reqd := &COAP_RequestDescriptor{
		Type: COAP_TYPE_CON,
		Code: COAP_REQ_GET,
		ResponseCallback: func(reqd *COAP_RequestDescriptor, result *COAP_ResultData) {
			invoked = true
		},
	}

	if err := h.SendRequest(reqd); err != COAP_ERR_NRST_ANSWER {
		t.Fatalf("期望COAP_ERR_NRST_ANSWER，实际%v", err)
	}
	if invoked {
		t.Error("RST应答不应调用回调")
	}
	if !d.sawSignal(COAP_SIGNAL_NRST_DID_RECEIVE) {
		t.Error("应发出RST到达信号")
	}
}

// TestUdpAckMidMismatch ACK的消息ID与请求不一致视为无效包
func TestUdpAckMidMismatch(t *testing.T) {
	h, d := newUdpFixture(0x0005, nil)
	d.script = []func(*fakeDriver) CoapError{
		inject([]byte{0x60, 0x00, 0x00, 0x99}),
	}

	reqd := &COAP_RequestDescriptor{
		Type: COAP_TYPE_CON,
		Code: COAP_REQ_GET,
	}

	if err := h.SendRequest(reqd); err != COAP_ERR_NO_ACK {
		t.Fatalf("期望COAP_ERR_NO_ACK，实际%v", err)
	}
	if !d.sawSignal(COAP_SIGNAL_WRONG_PACKET_DID_RECEIVE) {
		t.Error("应发出无效包信号")
	}
}

// TestUdpNonWithCallback NON请求跳过ACK等待直接等响应
func TestUdpNonWithCallback(t *testing.T) {
	h, d := newUdpFixture(0x0005, []byte{0xAA, 0xBB})
	d.script = []func(*fakeDriver) CoapError{
		// NON分离响应：不同消息ID
		inject([]byte{0x52, 0x45, 0x00, 0x06, 0xAA, 0xBB, 0xFF, 0x5A}),
	}

	invoked := false
	reqd := &COAP_RequestDescriptor{
		Type: COAP_TYPE_NONCON,
		Code: COAP_REQ_GET,
		Tkl:  2,
		ResponseCallback: func(reqd *COAP_RequestDescriptor, result *COAP_ResultData) {
			invoked = true
			if result.Payload.Len != 1 || result.Payload.Buffer[0] != 'Z' {
				t.Error("负载应为\"Z\"")
			}
		},
	}

	if err := h.SendRequest(reqd); err != COAP_ERR_SUCCESS {
		t.Fatalf("发送失败: %v", err)
	}
	if !invoked {
		t.Error("回调未被调用")
	}
	if len(d.waits) != 1 || d.waits[0] != COAP_RESP_TIMEOUT_MS {
		t.Errorf("应直接等待分离响应%dms: %v", COAP_RESP_TIMEOUT_MS, d.waits)
	}

	// NON响应不欠ACK
	if len(d.sent) != 1 {
		t.Errorf("NON响应不应触发ACK，共发送%d个包", len(d.sent))
	}
}

// TestUdpSeparateTimeout ACK已到但分离响应超时，返回NO_RESP
func TestUdpSeparateTimeout(t *testing.T) {
	h, d := newUdpFixture(0x0005, nil)
	d.script = []func(*fakeDriver) CoapError{
		inject([]byte{0x60, 0x00, 0x00, 0x05}),
		// 之后脚本耗尽，WaitEvent一律返回超时
	}

	reqd := &COAP_RequestDescriptor{
		Type: COAP_TYPE_CON,
		Code: COAP_REQ_GET,
		ResponseCallback: func(reqd *COAP_RequestDescriptor, result *COAP_ResultData) {
			t.Error("超时不应调用回调")
		},
	}

	if err := h.SendRequest(reqd); err != COAP_ERR_NO_RESP {
		t.Fatalf("期望COAP_ERR_NO_RESP，实际%v", err)
	}
}

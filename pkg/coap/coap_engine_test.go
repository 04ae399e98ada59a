package coap

import (
	"testing"
)

// TestEngineBusy 同一句柄同一时刻只允许一个在途事务
func TestEngineBusy(t *testing.T) {
	h, _ := newUdpFixture(0x0001, nil)
	h.setStatus(COAP_STATUS_SENDING_PACKET)

	reqd := &COAP_RequestDescriptor{Type: COAP_TYPE_NONCON, Code: COAP_REQ_GET}
	if err := h.SendRequest(reqd); err != COAP_ERR_BUSY {
		t.Fatalf("期望COAP_ERR_BUSY，实际%v", err)
	}
}

// TestEngineEmptyCodeWithToken 空代码消息必须不带Token
func TestEngineEmptyCodeWithToken(t *testing.T) {
	h, d := newUdpFixture(0x0001, []byte{0xAA})

	reqd := &COAP_RequestDescriptor{Type: COAP_TYPE_CON, Code: COAP_CODE_EMPTY_MSG, Tkl: 1}
	if err := h.SendRequest(reqd); err != COAP_ERR_PARAM {
		t.Fatalf("期望COAP_ERR_PARAM，实际%v", err)
	}
	if len(d.sent) != 0 {
		t.Error("参数错误不应发送任何数据")
	}
}

// TestEngineInvalidTkl Token长度超过8为参数错误
func TestEngineInvalidTkl(t *testing.T) {
	h, _ := newUdpFixture(0x0001, nil)

	reqd := &COAP_RequestDescriptor{Type: COAP_TYPE_CON, Code: COAP_REQ_GET, Tkl: 9}
	if err := h.SendRequest(reqd); err != COAP_ERR_PARAM {
		t.Fatalf("期望COAP_ERR_PARAM，实际%v", err)
	}
}

// TestEngineSmsUnsupported SMS传输为预留值
func TestEngineSmsUnsupported(t *testing.T) {
	d := &fakeDriver{mid: 1}
	h := NewHandle("test-sms", COAP_SMS, d)
	d.handle = h

	reqd := &COAP_RequestDescriptor{Type: COAP_TYPE_NONCON, Code: COAP_REQ_GET}
	if err := h.SendRequest(reqd); err != COAP_ERR_PARAM {
		t.Fatalf("期望COAP_ERR_PARAM，实际%v", err)
	}
}

// TestEngineCleanupAfterFailure 任何退出路径都释放缓冲区并清除SENDING位
func TestEngineCleanupAfterFailure(t *testing.T) {
	h, d := newUdpFixture(0x0001, nil)

	// 超时失败路径
	reqd := &COAP_RequestDescriptor{Type: COAP_TYPE_CON, Code: COAP_REQ_GET}
	if err := h.SendRequest(reqd); err != COAP_ERR_TIMEOUT {
		t.Fatalf("期望COAP_ERR_TIMEOUT，实际%v", err)
	}

	if h.request.Buffer != nil || h.response.Buffer != nil {
		t.Error("事务结束后缓冲区应已释放")
	}
	if h.checkStatus(COAP_STATUS_SENDING_PACKET) {
		t.Error("事务结束后SENDING位应已清除")
	}
	if !d.sawSignal(COAP_SIGNAL_PACKET_DID_FINISH) {
		t.Error("应发出事务结束信号")
	}

	// 失败后句柄可复用
	d.script = []func(*fakeDriver) CoapError{
		inject([]byte{0x60, 0x00, 0x00, 0x01}),
	}
	d.step = 0
	if err := h.SendRequest(reqd); err != COAP_ERR_SUCCESS {
		t.Fatalf("句柄复用失败: %v", err)
	}
}

// TestEngineRequestTooLarge 组装结果超出PDU容量
func TestEngineRequestTooLarge(t *testing.T) {
	h, _ := newUdpFixture(0x0001, nil)

	payload := make([]byte, COAP_MAX_PDU_SIZE)
	reqd := &COAP_RequestDescriptor{
		Type:    COAP_TYPE_NONCON,
		Code:    COAP_REQ_POST,
		Payload: COAP_Buffer{Buffer: payload, Len: uint32(len(payload))},
	}

	if err := h.SendRequest(reqd); err != COAP_ERR_NO_FREE_MEM {
		t.Fatalf("期望COAP_ERR_NO_FREE_MEM，实际%v", err)
	}
	if h.request.Buffer != nil || h.checkStatus(COAP_STATUS_SENDING_PACKET) {
		t.Error("失败路径也应释放缓冲区并清除SENDING位")
	}
}

// TestRxByteWrongState 未在等待状态时拒绝数据
func TestRxByteWrongState(t *testing.T) {
	h, _ := newUdpFixture(0x0001, nil)

	if ret := h.RxByte(0x40); ret != COAP_ERR_WRONG_STATE {
		t.Errorf("期望COAP_ERR_WRONG_STATE，实际%v", ret)
	}
	if ret := h.RxPacket([]byte{0x40, 0x00}); ret != COAP_ERR_WRONG_STATE {
		t.Errorf("期望COAP_ERR_WRONG_STATE，实际%v", ret)
	}
}

// TestRxByteOverflow 逐字节接收的缓冲区溢出
func TestRxByteOverflow(t *testing.T) {
	h, d := newUdpFixture(0x0001, nil)
	h.response.Buffer = make([]byte, h.MaxPduSize)
	h.setStatus(COAP_STATUS_WAITING_RESP)

	for i := 0; i < h.MaxPduSize; i++ {
		if ret := h.RxByte(byte(i)); ret != COAP_ERR_SUCCESS {
			t.Fatalf("第%d字节接收失败: %v", i, ret)
		}
	}
	if ret := h.RxByte(0xFF); ret != COAP_ERR_RX_BUFF_FULL {
		t.Errorf("期望COAP_ERR_RX_BUFF_FULL，实际%v", ret)
	}
	if !d.sawSignal(COAP_SIGNAL_RESPONSE_TO_LONG) {
		t.Error("溢出应发出响应过长信号")
	}
}

// TestRxPacketOverflow 整包接收超过PDU容量
func TestRxPacketOverflow(t *testing.T) {
	h, _ := newUdpFixture(0x0001, nil)
	h.response.Buffer = make([]byte, h.MaxPduSize)
	h.setStatus(COAP_STATUS_WAITING_RESP)

	big := make([]byte, h.MaxPduSize+1)
	if ret := h.RxPacket(big); ret != COAP_ERR_RX_BUFF_FULL {
		t.Errorf("期望COAP_ERR_RX_BUFF_FULL，实际%v", ret)
	}

	ok := make([]byte, h.MaxPduSize-1)
	if ret := h.RxPacket(ok); ret != COAP_ERR_SUCCESS {
		t.Errorf("期望接收成功，实际%v", ret)
	}
	if h.response.Len != uint32(h.MaxPduSize-1) {
		t.Errorf("响应长度应为%d，实际%d", h.MaxPduSize-1, h.response.Len)
	}
}

// TestEngineTxError 传输层错误原样透传
func TestEngineTxError(t *testing.T) {
	h, d := newUdpFixture(0x0001, nil)
	d.txErr = COAP_ERR_NO_RESP

	reqd := &COAP_RequestDescriptor{Type: COAP_TYPE_NONCON, Code: COAP_REQ_GET}
	if err := h.SendRequest(reqd); err != COAP_ERR_NO_RESP {
		t.Fatalf("期望透传COAP_ERR_NO_RESP，实际%v", err)
	}
	if h.checkStatus(COAP_STATUS_SENDING_PACKET) {
		t.Error("失败路径也应清除SENDING位")
	}
}

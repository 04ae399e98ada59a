package coap

import (
	"sync"
)

// Driver 宿主环境接口
// 引擎对外只要求这些能力：发送、等待事件、信号通知、消息ID与Token生成、缓冲区分配
type Driver interface {
	// TxData 通过硬件接口发送数据（可能阻塞）
	TxData(buf []byte) CoapError

	// WaitEvent 等待事件：完整响应帧就绪时返回COAP_ERR_SUCCESS，
	// 超时返回COAP_ERR_TIMEOUT，其他错误原样透传给调用方
	WaitEvent(timeoutMs uint32) CoapError

	// TxSignal 生命周期事件通知（单向）
	TxSignal(signal COAP_OutSignalEnum) CoapError

	// MessageID 生成16位消息ID
	MessageID() uint16

	// FillToken 向token写入len(token)字节
	FillToken(token []byte) CoapError

	// AllocMemBlock 申请一块不小于size字节的缓冲区
	AllocMemBlock(size int) ([]byte, CoapError)

	// FreeMemBlock 释放缓冲区
	FreeMemBlock(block []byte)
}

// COAP_Handle 引擎句柄（每个逻辑客户端一个）
// 同一句柄同一时刻只允许一个在途事务，由SENDING状态位保证
type COAP_Handle struct {
	Name      string
	Transport COAP_ProtocolTypeEnum

	// 引擎参数，NewHandle填入包默认值后可按需覆盖
	MaxPduSize      int
	RespTimeoutMs   uint32
	AckTimeoutMs    uint32
	MaxRetransmit   uint32
	AckRandomFactor uint32

	driver Driver

	mu         sync.Mutex // 保护statusMask（RxByte/RxPacket来自传输goroutine）
	statusMask COAP_HandleStatus

	request  COAP_Buffer
	response COAP_Buffer

	// 解码选项的固定槽位，复用于每个事务，结果仅在回调期间有效
	optArena [COAP_MAX_OPTION]COAP_Option
}

// NewHandle 创建句柄
func NewHandle(name string, transport COAP_ProtocolTypeEnum, driver Driver) *COAP_Handle {
	return &COAP_Handle{
		Name:            name,
		Transport:       transport,
		MaxPduSize:      COAP_MAX_PDU_SIZE,
		RespTimeoutMs:   COAP_RESP_TIMEOUT_MS,
		AckTimeoutMs:    COAP_ACK_TIMEOUT_MS,
		MaxRetransmit:   COAP_MAX_RETRANSMIT,
		AckRandomFactor: COAP_ACK_RANDOM_FACTOR,
		driver:          driver,
	}
}

// Debug 打开/关闭调试输出
func (h *COAP_Handle) Debug(enable bool) {
	if enable {
		h.setStatus(COAP_STATUS_DEBUG_ON)
	} else {
		h.resetStatus(COAP_STATUS_DEBUG_ON)
	}
}

func (h *COAP_Handle) checkStatus(s COAP_HandleStatus) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statusMask&s != 0
}

func (h *COAP_Handle) setStatus(s COAP_HandleStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statusMask |= s
}

func (h *COAP_Handle) resetStatus(s COAP_HandleStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statusMask &^= s
}

// checkAndSetStatus 原子地检查并置位，已置位时返回false
func (h *COAP_Handle) checkAndSetStatus(s COAP_HandleStatus) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.statusMask&s != 0 {
		return false
	}
	h.statusMask |= s
	return true
}

// RxByte 逐字节接收响应数据
// 适用于串口等流式链路，包结束的判定由宿主负责（字节超时）
func (h *COAP_Handle) RxByte(b byte) CoapError {
	if !h.checkStatus(COAP_STATUS_WAITING_RESP) {
		return COAP_ERR_WRONG_STATE
	}

	if h.response.Len < uint32(h.MaxPduSize) {
		h.response.Buffer[h.response.Len] = b
		h.response.Len++

		h.driver.TxSignal(COAP_SIGNAL_RESPONSE_BYTE_DID_RECEIVE)
		return COAP_ERR_SUCCESS
	}

	h.driver.TxSignal(COAP_SIGNAL_RESPONSE_TO_LONG)
	return COAP_ERR_RX_BUFF_FULL
}

// RxPacket 接收完整响应包
func (h *COAP_Handle) RxPacket(buf []byte) CoapError {
	if !h.checkStatus(COAP_STATUS_WAITING_RESP) {
		return COAP_ERR_WRONG_STATE
	}

	n := len(buf)
	if n > h.MaxPduSize {
		n = h.MaxPduSize
	}
	copy(h.response.Buffer, buf[:n])
	h.response.Len = uint32(n)

	if len(buf) <= h.MaxPduSize {
		h.driver.TxSignal(COAP_SIGNAL_RESPONSE_DID_RECEIVE)
		return COAP_ERR_SUCCESS
	}

	h.driver.TxSignal(COAP_SIGNAL_RESPONSE_TO_LONG)
	return COAP_ERR_RX_BUFF_FULL
}

package coap

import (
	"bytes"
	"encoding/binary"
)

// CoAP over TCP变长前缀：
//
//	byte0: Len(4) | TKL(4)
//	0/1/2/4字节扩展长度（大端），Len为13/14/15时分别启用
//	随后是Code、Token、选项、负载标记+负载
const (
	coapTcpMinHeaderLen = 2

	COAP_TCP_LEN_1BYTE  = 13
	COAP_TCP_LEN_2BYTES = 14
	COAP_TCP_LEN_4BYTES = 15

	COAP_TCP_LEN_MIN = 13
	COAP_TCP_LEN_MED = 269
	COAP_TCP_LEN_MAX = 65805
)

// sendRequestTCP 流式传输的事务路径
// TCP无消息ID也无重传（流本身可靠），发送后按需等待一次响应
func (h *COAP_Handle) sendRequestTCP(reqd *COAP_RequestDescriptor) CoapError {
	var result COAP_ResultData

	// 组装请求包
	err := h.assembleRequestTCP(&h.request, reqd)
	if err != COAP_ERR_SUCCESS {
		return err
	}

	if h.checkStatus(COAP_STATUS_DEBUG_ON) {
		h.debugPrintPacket("coap >> ", h.request.Buffer, h.request.Len)
	}

	// 发送请求包
	h.driver.TxSignal(COAP_SIGNAL_PACKET_WILL_START)

	err = h.driver.TxData(h.request.Buffer[:h.request.Len])
	if err != COAP_ERR_SUCCESS {
		return err
	}

	// 按需等待响应
	if reqd.ResponseCallback == nil {
		return err
	}

	h.response.Len = 0
	h.setStatus(COAP_STATUS_WAITING_RESP)

	err = h.driver.WaitEvent(h.RespTimeoutMs)

	h.resetStatus(COAP_STATUS_WAITING_RESP)

	if err != COAP_ERR_SUCCESS {
		if err == COAP_ERR_TIMEOUT {
			err = COAP_ERR_NO_RESP
		}
		return err
	}

	if h.checkStatus(COAP_STATUS_DEBUG_ON) {
		h.debugPrintPacket("coap << ", h.response.Buffer, h.response.Len)
	}

	// 解析到达的响应包
	respMask, optStartIdx := parseResponseTCP(&h.request, &h.response)

	if respMask&COAP_RESP_INVALID_PACKET != 0 {
		h.driver.TxSignal(COAP_SIGNAL_WRONG_PACKET_DID_RECEIVE)
		return COAP_ERR_NO_RESP
	}

	// 解码选项，槽位复用句柄的固定arena，结果仅在回调期间有效
	options, payloadStartIdx, err := decodingOptions(&h.response, h.optArena[:], optStartIdx)

	if err == COAP_ERR_WRONG_OPTIONS {
		h.driver.TxSignal(COAP_SIGNAL_WRONG_PACKET_DID_RECEIVE)
		return err
	}

	// 负载边界
	if h.response.Len > payloadStartIdx {
		result.Payload.Buffer = h.response.Buffer[payloadStartIdx:h.response.Len]
		result.Payload.Len = h.response.Len - payloadStartIdx
	}

	// Code位于Token之前：optStartIdx - tkl - 1
	result.RespCode = COAP_CodeEnum(h.response.Buffer[optStartIdx-uint32(h.response.Buffer[0]&0x0F)-1])
	result.Options = options

	reqd.ResponseCallback(reqd, &result)

	if h.checkStatus(COAP_STATUS_DEBUG_ON) {
		h.debugPrintOptions("coap opt << ", result.Options)
		h.debugPrintPayload("coap pld << ", &result.Payload)
	}

	return COAP_ERR_SUCCESS
}

// assembleRequestTCP 组装CoAP over TCP请求
//
// 前缀长度取决于选项+负载的总长，而总长要等选项编码后才知道。
// 先按预测偏移 2 + tkl + (payload>10 ? 1 : 0) 写入选项，
// 算出实际档位后把选项块原地平移到 2 + tkl + extLenBytes
func (h *COAP_Handle) assembleRequestTCP(request *COAP_Buffer, reqd *COAP_RequestDescriptor) CoapError {
	opts := sortedOptions(reqd.Options)
	tkl := uint32(reqd.Tkl)

	optionsLen := encodedOptionsLength(opts)
	dataLen := optionsLen
	if reqd.Payload.Len > 0 {
		dataLen += reqd.Payload.Len + 1
	}

	// 扩展长度档位
	var lenNib byte
	var extLenBytes uint32
	switch {
	case dataLen < COAP_TCP_LEN_MIN:
		lenNib = byte(dataLen)
		extLenBytes = 0
	case dataLen < COAP_TCP_LEN_MED:
		lenNib = COAP_TCP_LEN_1BYTE
		extLenBytes = 1
	case dataLen < COAP_TCP_LEN_MAX:
		lenNib = COAP_TCP_LEN_2BYTES
		extLenBytes = 2
	default:
		lenNib = COAP_TCP_LEN_4BYTES
		extLenBytes = 4
	}

	// 预检总长度
	if coapTcpMinHeaderLen+extLenBytes+tkl+dataLen > uint32(h.MaxPduSize) {
		return COAP_ERR_NO_FREE_MEM
	}

	// 按预测偏移写入选项
	optionsShift := coapTcpMinHeaderLen + tkl
	if reqd.Payload.Len > 10 {
		optionsShift++
	}
	if len(opts) > 0 {
		encodingOptions(request.Buffer[optionsShift:], opts)
	}

	request.Buffer[0] = lenNib<<4 | reqd.Tkl

	// 预测落空时平移选项块到实际偏移
	target := coapTcpMinHeaderLen + tkl + extLenBytes
	if optionsLen > 0 && optionsShift != target {
		shiftData(request.Buffer, target, optionsShift, optionsLen)
	}

	// 扩展长度与Code
	switch extLenBytes {
	case 0:
		request.Buffer[1] = byte(reqd.Code)
	case 1:
		request.Buffer[1] = byte(dataLen - COAP_TCP_LEN_MIN)
		request.Buffer[2] = byte(reqd.Code)
	case 2:
		binary.BigEndian.PutUint16(request.Buffer[1:3], uint16(dataLen-COAP_TCP_LEN_MED))
		request.Buffer[3] = byte(reqd.Code)
	default:
		binary.BigEndian.PutUint32(request.Buffer[1:5], dataLen-COAP_TCP_LEN_MAX)
		request.Buffer[5] = byte(reqd.Code)
	}
	request.Len = coapTcpMinHeaderLen + extLenBytes

	// Token
	if tkl > 0 {
		if err := h.driver.FillToken(request.Buffer[request.Len : request.Len+tkl]); err != COAP_ERR_SUCCESS {
			return err
		}
		request.Len += tkl
	}

	request.Len += optionsLen

	// 负载
	if reqd.Payload.Len > 0 {
		request.Len += fillPayload(request.Buffer[request.Len:], &reqd.Payload)
	}

	return COAP_ERR_SUCCESS
}

// parseResponseTCP 解析流式响应，返回解析结果位掩码和选项起始下标
func parseResponseTCP(request *COAP_Buffer, response *COAP_Buffer) (uint32, uint32) {
	if response.Len < coapTcpMinHeaderLen {
		return COAP_RESP_INVALID_PACKET, 0
	}

	respMask := COAP_RESP_SEPARATE

	tkl := uint32(response.Buffer[0] & 0x0F)

	// Token长度必须与请求一致
	if response.Buffer[0]&0x0F != request.Buffer[0]&0x0F {
		return COAP_RESP_INVALID_PACKET, 0
	}

	respDataLen, respUsed, ok := extractDataLength(response.Buffer[0]>>4, response.Buffer[1:response.Len])
	if !ok {
		return COAP_RESP_INVALID_PACKET, 0
	}
	respIdx := 1 + respUsed

	_, reqUsed, ok := extractDataLength(request.Buffer[0]>>4, request.Buffer[1:request.Len])
	if !ok {
		return COAP_RESP_INVALID_PACKET, 0
	}
	reqIdx := 1 + reqUsed

	// 总长必须恰好为 前缀+Code+Token+数据
	if respIdx+1+tkl+respDataLen != response.Len {
		return COAP_RESP_INVALID_PACKET, 0
	}

	// Code
	respCode := COAP_CodeEnum(response.Buffer[respIdx])
	respIdx++

	// 响应代码类别只允许2/4/5/7
	switch COAP_ExtractClass(respCode) {
	case COAP_SUCCESS_CLASS:
		respMask |= COAP_RESP_SUCCESS_CODE
	case COAP_TCP_SIGNAL_CLASS:
		respMask |= COAP_RESP_TCP_SIGNAL_CODE
	case COAP_BAD_REQUEST_CLASS, COAP_SERVER_ERR_CLASS:
		respMask |= COAP_RESP_FAILURE_CODE
	default:
		return COAP_RESP_INVALID_PACKET, 0
	}

	// Token内容必须与请求一致（请求中Token紧随Code之后）
	if tkl > 0 {
		if !bytes.Equal(response.Buffer[respIdx:respIdx+tkl],
			request.Buffer[reqIdx+1:reqIdx+1+tkl]) {
			return COAP_RESP_INVALID_PACKET, 0
		}
	}

	return respMask, response.Len - respDataLen
}

// extractDataLength 按Len nibble解出数据长度，返回长度、消耗的扩展字节数和是否读取成功（扩展字节不足时为false）
func extractDataLength(lenNib byte, buf []byte) (uint32, uint32, bool) {
	switch lenNib {
	case COAP_TCP_LEN_1BYTE:
		if len(buf) < 1 {
			return 0, 0, false
		}
		return uint32(buf[0]) + COAP_TCP_LEN_MIN, 1, true

	case COAP_TCP_LEN_2BYTES:
		if len(buf) < 2 {
			return 0, 0, false
		}
		return uint32(binary.BigEndian.Uint16(buf[:2])) + COAP_TCP_LEN_MED, 2, true

	case COAP_TCP_LEN_4BYTES:
		if len(buf) < 4 {
			return 0, 0, false
		}
		return binary.BigEndian.Uint32(buf[:4]) + COAP_TCP_LEN_MAX, 4, true

	default:
		return uint32(lenNib), 0, true
	}
}

// shiftData 在同一缓冲区内平移选项块
// dst与src可能重叠，copy具备memmove语义，两个方向都不会踩踏数据
func shiftData(buf []byte, dst, src, n uint32) {
	copy(buf[dst:dst+n], buf[src:src+n])
}

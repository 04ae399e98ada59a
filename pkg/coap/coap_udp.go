package coap

import (
	"bytes"
	"encoding/binary"
)

// CoAP over UDP定长头部（4字节）：
//
//	byte0: Ver(2) | Type(2) | TKL(4)
//	byte1: Code
//	byte2-3: Message ID（网络字节序）
const coapUdpHeaderLen = 4

// sendRequestUDP 数据报传输的事务路径
// CON请求走可靠性状态机（等ACK、重传、捎带/分离响应），NONCON按需等待响应
func (h *COAP_Handle) sendRequestUDP(reqd *COAP_RequestDescriptor) CoapError {
	var result COAP_ResultData

	// 组装请求包
	err := h.assembleRequestUDP(&h.request, reqd)
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

	// CON消息等待ACK（带重传）
	respMask := COAP_RESP_EMPTY
	if reqd.Type == COAP_TYPE_CON {

		h.setStatus(COAP_STATUS_WAITING_RESP)
		err = h.waitingAck(&h.request)
		h.resetStatus(COAP_STATUS_WAITING_RESP)

		if err != COAP_ERR_SUCCESS {
			return err
		}

		if h.checkStatus(COAP_STATUS_DEBUG_ON) {
			h.debugPrintPacket("coap << ", h.response.Buffer, h.response.Len)
		}

		// 解析到达的ACK包
		respMask = parseResponseUDP(&h.request, &h.response)

		if respMask&COAP_RESP_ACK != 0 {
			h.driver.TxSignal(COAP_SIGNAL_ACK_DID_RECEIVE)
		} else if respMask&COAP_RESP_NRST != 0 {
			h.driver.TxSignal(COAP_SIGNAL_NRST_DID_RECEIVE)
			return COAP_ERR_NRST_ANSWER
		} else if respMask&COAP_RESP_INVALID_PACKET != 0 {
			h.driver.TxSignal(COAP_SIGNAL_WRONG_PACKET_DID_RECEIVE)
			return COAP_ERR_NO_ACK
		}
	}

	// 按需等待响应
	if reqd.ResponseCallback == nil {
		return err
	}

	if reqd.Type != COAP_TYPE_CON || respMask&COAP_RESP_PIGGYBACKED == 0 {

		// 分离响应：重新等一个完整包
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
			h.debugPrintPacket("rcv coap << ", h.response.Buffer, h.response.Len)
		}

		respMask = parseResponseUDP(&h.request, &h.response)

		if respMask&COAP_RESP_INVALID_PACKET != 0 {
			h.driver.TxSignal(COAP_SIGNAL_WRONG_PACKET_DID_RECEIVE)
			return COAP_ERR_NO_RESP
		} else if respMask&COAP_RESP_NRST != 0 {
			h.driver.TxSignal(COAP_SIGNAL_NRST_DID_RECEIVE)
			return COAP_ERR_NRST_ANSWER
		}
	}

	// 解码选项。发出的请求字节已不再需要，选项槽位复用句柄的固定arena，
	// 结果仅在回调期间有效
	optStartIdx := uint32(h.response.Buffer[0]&0x0F) + coapUdpHeaderLen
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

	result.RespCode = COAP_CodeEnum(h.response.Buffer[1])
	result.Options = options

	reqd.ResponseCallback(reqd, &result)

	if h.checkStatus(COAP_STATUS_DEBUG_ON) {
		h.debugPrintOptions("coap opt << ", result.Options)
		h.debugPrintPayload("coap pld << ", &result.Payload)
	}

	err = COAP_ERR_SUCCESS

	// 分离CON响应欠对端一个ACK，只发一次、不重传
	if respMask&COAP_RESP_NEED_SEND_ACK != 0 {
		assembleAck(&h.request, &h.response)
		h.driver.TxSignal(COAP_SIGNAL_TX_ACK_PACKET)

		err = h.driver.TxData(h.request.Buffer[:h.request.Len])
	}

	return err
}

// assembleRequestUDP 组装CoAP over UDP请求
func (h *COAP_Handle) assembleRequestUDP(request *COAP_Buffer, reqd *COAP_RequestDescriptor) CoapError {
	opts := sortedOptions(reqd.Options)

	// 预检总长度，申请到的缓冲区只有MaxPduSize字节
	total := uint32(coapUdpHeaderLen) + uint32(reqd.Tkl) + encodedOptionsLength(opts)
	if reqd.Payload.Len > 0 {
		total += reqd.Payload.Len + 1
	}
	if total > uint32(h.MaxPduSize) {
		return COAP_ERR_NO_FREE_MEM
	}

	// 头部
	request.Buffer[0] = COAP_VERSION<<6 | byte(reqd.Type)<<4 | reqd.Tkl
	request.Buffer[1] = byte(reqd.Code)
	binary.BigEndian.PutUint16(request.Buffer[2:4], h.driver.MessageID())
	request.Len = coapUdpHeaderLen

	// Token
	if reqd.Tkl > 0 {
		if err := h.driver.FillToken(request.Buffer[request.Len : request.Len+uint32(reqd.Tkl)]); err != COAP_ERR_SUCCESS {
			return err
		}
		request.Len += uint32(reqd.Tkl)
	}

	// 选项
	if len(opts) > 0 {
		request.Len += encodingOptions(request.Buffer[request.Len:], opts)
	}

	// 负载
	if reqd.Payload.Len > 0 {
		request.Len += fillPayload(request.Buffer[request.Len:], &reqd.Payload)
	}

	return COAP_ERR_SUCCESS
}

// parseResponseUDP 解析数据报响应（ACK应答或分离响应），返回解析结果位掩码
//
// RFC 7252 4.2: The Acknowledgement message MUST echo the Message ID of
// the Confirmable message and MUST carry a response or be Empty.
// The Reset message MUST echo the Message ID of the Confirmable message
// and MUST be Empty.
func parseResponseUDP(request *COAP_Buffer, response *COAP_Buffer) uint32 {
	if response.Len < coapUdpHeaderLen {
		return COAP_RESP_INVALID_PACKET
	}

	respMask := COAP_RESP_EMPTY

	respVer := response.Buffer[0] >> 6
	respType := COAP_TypeEnum(response.Buffer[0] >> 4 & 0x03)
	respTkl := response.Buffer[0] & 0x0F
	respCode := COAP_CodeEnum(response.Buffer[1])
	respMid := binary.BigEndian.Uint16(response.Buffer[2:4])

	reqVer := request.Buffer[0] >> 6
	reqTkl := request.Buffer[0] & 0x0F
	reqMid := binary.BigEndian.Uint16(request.Buffer[2:4])

	// 版本必须一致
	if respVer != reqVer {
		return COAP_RESP_INVALID_PACKET
	}

	// 按消息类型分类
	switch respType {

	case COAP_TYPE_ACK:
		respMask |= COAP_RESP_ACK

		// ACK必须回显请求的消息ID
		if respMid != reqMid {
			return COAP_RESP_INVALID_PACKET
		}

		if respCode != COAP_CODE_EMPTY_MSG {
			respMask |= COAP_RESP_PIGGYBACKED
		} else {
			// 纯ACK：空代码、无Token、恰好4字节
			if respTkl == 0 && response.Len == coapUdpHeaderLen {
				return respMask
			}
			return COAP_RESP_INVALID_PACKET
		}

	case COAP_TYPE_CON:
		respMask |= COAP_RESP_SEPARATE
		respMask |= COAP_RESP_NEED_SEND_ACK

	case COAP_TYPE_NONCON:
		respMask |= COAP_RESP_SEPARATE

	case COAP_TYPE_RESET:
		if respCode == COAP_CODE_EMPTY_MSG && respTkl == 0 && response.Len == coapUdpHeaderLen {
			return respMask | COAP_RESP_NRST
		}
		return COAP_RESP_INVALID_PACKET

	default:
		return COAP_RESP_INVALID_PACKET
	}

	// 分离响应的消息ID必须不同于请求
	if respMask&COAP_RESP_ACK == 0 {
		if respMid == reqMid {
			return COAP_RESP_INVALID_PACKET
		}
	}

	// Token长度与内容必须与请求一致
	if respTkl != reqTkl {
		return COAP_RESP_INVALID_PACKET
	}

	if response.Len < uint32(coapUdpHeaderLen+respTkl) {
		return COAP_RESP_INVALID_PACKET
	}

	if !bytes.Equal(response.Buffer[coapUdpHeaderLen:coapUdpHeaderLen+uint32(respTkl)],
		request.Buffer[coapUdpHeaderLen:coapUdpHeaderLen+uint32(reqTkl)]) {
		return COAP_RESP_INVALID_PACKET
	}

	// 响应代码类别只允许2/4/5
	switch COAP_ExtractClass(respCode) {
	case COAP_SUCCESS_CLASS:
		respMask |= COAP_RESP_SUCCESS_CODE
	case COAP_BAD_REQUEST_CLASS, COAP_SERVER_ERR_CLASS:
		respMask |= COAP_RESP_FAILURE_CODE
	default:
		return COAP_RESP_INVALID_PACKET
	}

	return respMask
}

// assembleAck 基于到达的分离CON响应组装4字节空ACK：
// 回显头部与消息ID，type置ACK，code置空，tkl置0
func assembleAck(ack *COAP_Buffer, response *COAP_Buffer) {
	ack.Buffer[0] = response.Buffer[0]>>6<<6 | byte(COAP_TYPE_ACK)<<4
	ack.Buffer[1] = byte(COAP_CODE_EMPTY_MSG)
	ack.Buffer[2] = response.Buffer[2]
	ack.Buffer[3] = response.Buffer[3]
	ack.Len = coapUdpHeaderLen
}

// waitingAck ACK等待与重传
// 第k次重传后的等待时长为 AckTimeoutMs + k * AckTimeoutMs * AckRandomFactor / 100（k=0为首次发送），
// 抖动系数固定而非每次随机，用确定性换取实现体积
func (h *COAP_Handle) waitingAck(request *COAP_Buffer) CoapError {
	var err CoapError
	retransmission := uint32(0)

	for {
		err = h.driver.WaitEvent(retransmission*(h.AckTimeoutMs*h.AckRandomFactor/100) + h.AckTimeoutMs)

		if err != COAP_ERR_TIMEOUT {
			// 数据到达或传输错误
			return err
		}

		if retransmission >= h.MaxRetransmit {
			return COAP_ERR_TIMEOUT
		}

		// 重传
		h.driver.TxSignal(COAP_SIGNAL_TX_RETR_PACKET)

		if h.checkStatus(COAP_STATUS_DEBUG_ON) {
			h.debugPrintPacket("coap retr >> ", request.Buffer, request.Len)
		}

		retransmission++
		err = h.driver.TxData(request.Buffer[:request.Len])

		if err != COAP_ERR_SUCCESS {
			return err
		}
	}
}

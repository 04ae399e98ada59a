package coap

// SendRequest 发起一次CoAP请求事务
// 阻塞到事务结束（收到结果、超时或出错）。同一句柄同一时刻只允许一个事务，
// 所有退出路径都会释放缓冲区、清除SENDING位并发出DID_FINISH信号。
func (h *COAP_Handle) SendRequest(reqd *COAP_RequestDescriptor) CoapError {
	if !h.checkAndSetStatus(COAP_STATUS_SENDING_PACKET) {
		return COAP_ERR_BUSY
	}

	err := h.initDriver(reqd)

	if err == COAP_ERR_SUCCESS {
		switch h.Transport {
		case COAP_UDP:
			err = h.sendRequestUDP(reqd)

		case COAP_TCP:
			err = h.sendRequestTCP(reqd)

		case COAP_SMS:
			fallthrough
		default:
			// 暂不支持
			err = COAP_ERR_PARAM
		}
	}

	h.deinitDriver()

	h.resetStatus(COAP_STATUS_SENDING_PACKET)
	h.driver.TxSignal(COAP_SIGNAL_PACKET_DID_FINISH)

	return err
}

// initDriver 校验描述符并申请事务缓冲区
func (h *COAP_Handle) initDriver(reqd *COAP_RequestDescriptor) CoapError {
	h.request.Len = 0
	h.response.Len = 0

	if reqd == nil || h.driver == nil {
		return COAP_ERR_PARAM
	}

	// 空代码消息必须不带Token
	if reqd.Code == COAP_CODE_EMPTY_MSG && reqd.Tkl != 0 {
		return COAP_ERR_PARAM
	}

	if reqd.Tkl > COAP_MAX_TOKEN_LEN {
		return COAP_ERR_PARAM
	}

	if h.request.Buffer == nil {
		buf, err := h.driver.AllocMemBlock(h.MaxPduSize)
		if err != COAP_ERR_SUCCESS {
			return err
		}
		h.request.Buffer = buf
	}

	if reqd.Type == COAP_TYPE_CON || reqd.ResponseCallback != nil {
		if h.response.Buffer == nil {
			buf, err := h.driver.AllocMemBlock(h.MaxPduSize)
			if err != COAP_ERR_SUCCESS {
				return err
			}
			h.response.Buffer = buf
		}
	}

	return COAP_ERR_SUCCESS
}

// deinitDriver 释放事务缓冲区
func (h *COAP_Handle) deinitDriver() {
	if h.response.Buffer != nil {
		h.driver.FreeMemBlock(h.response.Buffer)
		h.response.Buffer = nil
	}

	if h.request.Buffer != nil {
		h.driver.FreeMemBlock(h.request.Buffer)
		h.request.Buffer = nil
	}

	h.request.Len = 0
	h.response.Len = 0
}

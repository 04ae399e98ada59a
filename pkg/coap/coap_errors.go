package coap

// 错误码
// 协议层以整型错误码为返回值，同时实现error接口便于上层包装
type CoapError int

const (
	COAP_ERR_SUCCESS CoapError = iota
	COAP_ERR_BUSY
	COAP_ERR_PARAM

	COAP_ERR_NO_FREE_MEM
	COAP_ERR_TIMEOUT
	COAP_ERR_NRST_ANSWER
	COAP_ERR_NO_ACK
	COAP_ERR_NO_RESP

	COAP_ERR_RX_BUFF_FULL
	COAP_ERR_WRONG_STATE

	// COAP_ERR_NO_OPTIONS 是选项解码器的内部哨兵值（无选项、负载紧随），
	// 协调器会将其转换为options为nil的成功回调，不对外暴露
	COAP_ERR_NO_OPTIONS
	COAP_ERR_WRONG_OPTIONS
)

var coapErrorText = map[CoapError]string{
	COAP_ERR_SUCCESS:       "success",
	COAP_ERR_BUSY:          "handle is busy",
	COAP_ERR_PARAM:         "invalid parameter",
	COAP_ERR_NO_FREE_MEM:   "no free memory",
	COAP_ERR_TIMEOUT:       "timeout expired",
	COAP_ERR_NRST_ANSWER:   "reset answer received",
	COAP_ERR_NO_ACK:        "no ack received",
	COAP_ERR_NO_RESP:       "no response received",
	COAP_ERR_RX_BUFF_FULL:  "rx buffer full",
	COAP_ERR_WRONG_STATE:   "wrong state",
	COAP_ERR_NO_OPTIONS:    "no options",
	COAP_ERR_WRONG_OPTIONS: "wrong options",
}

func (e CoapError) String() string {
	if s, ok := coapErrorText[e]; ok {
		return s
	}
	return "unknown error"
}

func (e CoapError) Error() string {
	return e.String()
}

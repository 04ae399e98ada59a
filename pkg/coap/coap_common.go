package coap

// COAP_VERSION 定义CoAP版本
const COAP_VERSION = 1

// 传输协议类型
type COAP_ProtocolTypeEnum uint8

const (
	COAP_UDP COAP_ProtocolTypeEnum = 0
	COAP_TCP COAP_ProtocolTypeEnum = 1
	COAP_SMS COAP_ProtocolTypeEnum = 2 // 预留，暂不支持
)

// URI方案与默认端口
const (
	COAP_UDP_URI_SCHEME        = "coap"
	COAP_UDP_SECURE_URI_SCHEME = "coaps"
	COAP_TCP_URI_SCHEME        = "coap+tcp"
	COAP_TCP_SECURE_URI_SCHEME = "coaps+tcp"

	COAP_UDP_DEFAULT_PORT        = 5683
	COAP_UDP_DEFAULT_SECURE_PORT = 5684
	COAP_TCP_DEFAULT_PORT        = 5683
	COAP_TCP_DEFAULT_SECURE_PORT = 5684
)

// 消息类型（仅数据报传输有效）
type COAP_TypeEnum uint8

const (
	COAP_TYPE_CON    COAP_TypeEnum = 0 // 需确认消息（要求ACK/RST）
	COAP_TYPE_NONCON COAP_TypeEnum = 1 // 非确认消息（单次发送）
	COAP_TYPE_ACK    COAP_TypeEnum = 2 // 确认消息
	COAP_TYPE_RESET  COAP_TypeEnum = 3 // 复位消息（对端异常应答）
)

// 代码类别（code的高3位）
type COAP_ClassEnum uint8

const (
	COAP_REQUEST_CLASS     COAP_ClassEnum = 0
	COAP_SUCCESS_CLASS     COAP_ClassEnum = 2
	COAP_BAD_REQUEST_CLASS COAP_ClassEnum = 4
	COAP_SERVER_ERR_CLASS  COAP_ClassEnum = 5
	COAP_TCP_SIGNAL_CLASS  COAP_ClassEnum = 7
)

// 8位代码（类别3位+明细5位）
type COAP_CodeEnum uint8

// COAP_MakeCode 组合类别和明细为8位代码
func COAP_MakeCode(class COAP_ClassEnum, detail uint8) COAP_CodeEnum {
	return COAP_CodeEnum(uint8(class)<<5 | detail)
}

// COAP_ExtractClass 提取代码的类别位
func COAP_ExtractClass(code COAP_CodeEnum) COAP_ClassEnum {
	return COAP_ClassEnum(code >> 5)
}

const (
	COAP_CODE_EMPTY_MSG COAP_CodeEnum = 0

	COAP_REQ_GET  COAP_CodeEnum = 0x01
	COAP_REQ_POST COAP_CodeEnum = 0x02
	COAP_REQ_PUT  COAP_CodeEnum = 0x03
	COAP_REQ_DEL  COAP_CodeEnum = 0x04

	COAP_RESP_SUCCESS_OK_200      COAP_CodeEnum = 2<<5 | 0
	COAP_RESP_SUCCESS_CREATED_201 COAP_CodeEnum = 2<<5 | 1
	COAP_RESP_SUCCESS_DELETED_202 COAP_CodeEnum = 2<<5 | 2
	COAP_RESP_SUCCESS_VALID_203   COAP_CodeEnum = 2<<5 | 3
	COAP_RESP_SUCCESS_CHANGED_204 COAP_CodeEnum = 2<<5 | 4
	COAP_RESP_SUCCESS_CONTENT_205 COAP_CodeEnum = 2<<5 | 5

	COAP_RESP_ERROR_BAD_REQUEST_400               COAP_CodeEnum = 4<<5 | 0
	COAP_RESP_ERROR_UNAUTHORIZED_401              COAP_CodeEnum = 4<<5 | 1
	COAP_RESP_BAD_OPTION_402                      COAP_CodeEnum = 4<<5 | 2
	COAP_RESP_FORBIDDEN_403                       COAP_CodeEnum = 4<<5 | 3
	COAP_RESP_NOT_FOUND_404                       COAP_CodeEnum = 4<<5 | 4
	COAP_RESP_METHOD_NOT_ALLOWED_405              COAP_CodeEnum = 4<<5 | 5
	COAP_RESP_METHOD_NOT_ACCEPTABLE_406           COAP_CodeEnum = 4<<5 | 6
	COAP_RESP_PRECONDITION_FAILED_412             COAP_CodeEnum = 4<<5 | 12
	COAP_RESP_REQUEST_ENTITY_TOO_LARGE_413        COAP_CodeEnum = 4<<5 | 13
	COAP_RESP_UNSUPPORTED_CONTENT_FORMAT_415      COAP_CodeEnum = 4<<5 | 15

	COAP_RESP_INTERNAL_SERVER_ERROR_500   COAP_CodeEnum = 5<<5 | 0
	COAP_RESP_NOT_IMPLEMENTED_501         COAP_CodeEnum = 5<<5 | 1
	COAP_RESP_BAD_GATEWAY_502             COAP_CodeEnum = 5<<5 | 2
	COAP_RESP_SERVICE_UNAVAILABLE_503     COAP_CodeEnum = 5<<5 | 3
	COAP_RESP_GATEWAY_TIMEOUT_504         COAP_CodeEnum = 5<<5 | 4
	COAP_RESP_PROXYING_NOT_SUPPORTED_505  COAP_CodeEnum = 5<<5 | 5

	COAP_TCP_SIGNAL_700         COAP_CodeEnum = 7<<5 | 0
	COAP_TCP_SIGNAL_CSM_701     COAP_CodeEnum = 7<<5 | 1
	COAP_TCP_SIGNAL_PING_702    COAP_CodeEnum = 7<<5 | 2
	COAP_TCP_SIGNAL_PONG_703    COAP_CodeEnum = 7<<5 | 3
	COAP_TCP_SIGNAL_RELEASE_704 COAP_CodeEnum = 7<<5 | 4
	COAP_TCP_SIGNAL_ABORT_705   COAP_CodeEnum = 7<<5 | 5
)

// 选项编号
// Critical = (num & 1), UnSafe = (num & 2), NoCacheKey = ((num & 0x1e) == 0x1c)
type COAP_OptionEnum uint16

const (
	COAP_IF_MATCH_OPT       COAP_OptionEnum = 1
	COAP_URI_HOST_OPT       COAP_OptionEnum = 3
	COAP_ETAG_OPT           COAP_OptionEnum = 4
	COAP_IF_NON_MATCH_OPT   COAP_OptionEnum = 5
	COAP_URI_PORT_OPT       COAP_OptionEnum = 7
	COAP_LOCATION_PATH_OPT  COAP_OptionEnum = 8
	COAP_URI_PATH_OPT       COAP_OptionEnum = 11
	COAP_CONTENT_FORMAT_OPT COAP_OptionEnum = 12
	COAP_MAX_AGE_OPT        COAP_OptionEnum = 14
	COAP_URI_QUERY_OPT      COAP_OptionEnum = 15
	COAP_ACCEPT_OPT         COAP_OptionEnum = 17
	COAP_LOCATION_QUERY_OPT COAP_OptionEnum = 20
	COAP_BLOCK2_OPT         COAP_OptionEnum = 23 // GET分块选项
	COAP_BLOCK1_OPT         COAP_OptionEnum = 27 // POST分块选项
	COAP_PROXY_URI_OPT      COAP_OptionEnum = 35
	COAP_PROXY_SCHEME_OPT   COAP_OptionEnum = 39
	COAP_SIZE1_OPT          COAP_OptionEnum = 60
)

// 媒体类型（Content-Format选项取值）
type COAP_MediaTypeEnum uint16

const (
	COAP_TEXT_PLAIN               COAP_MediaTypeEnum = 0 // 默认值
	COAP_TEXT_XML                 COAP_MediaTypeEnum = 1
	COAP_TEXT_CSV                 COAP_MediaTypeEnum = 2
	COAP_TEXT_HTML                COAP_MediaTypeEnum = 3
	COAP_IMAGE_GIF                COAP_MediaTypeEnum = 21
	COAP_IMAGE_JPEG               COAP_MediaTypeEnum = 22
	COAP_IMAGE_PNG                COAP_MediaTypeEnum = 23
	COAP_IMAGE_TIFF               COAP_MediaTypeEnum = 24
	COAP_AUDIO_RAW                COAP_MediaTypeEnum = 25
	COAP_VIDEO_RAW                COAP_MediaTypeEnum = 26
	COAP_APPLICATION_LINK_FORMAT  COAP_MediaTypeEnum = 40
	COAP_APPLICATION_XML          COAP_MediaTypeEnum = 41
	COAP_APPLICATION_OCTET_STREAM COAP_MediaTypeEnum = 42
	COAP_APPLICATION_JSON         COAP_MediaTypeEnum = 50
	COAP_APPLICATION_CBOR         COAP_MediaTypeEnum = 60
)

// 引擎默认参数（可在句柄上按需覆盖）
const (
	COAP_MAX_PDU_SIZE      = 96   // PDU缓冲区容量（字节）
	COAP_RESP_TIMEOUT_MS   = 9000 // 分离响应等待超时（毫秒）
	COAP_ACK_TIMEOUT_MS    = 5000 // ACK基础等待超时（毫秒）
	COAP_MAX_RETRANSMIT    = 3    // 最大重传次数
	COAP_ACK_RANDOM_FACTOR = 130  // 重传抖动系数（×100，1.3消除浮点）

	COAP_MAX_OPTION      = 16   // 单包选项数量上限
	COAP_MAX_TOKEN_LEN   = 8    // Token最大长度（RFC规定）
	COAP_PAYLOAD_PREFIX  = 0xFF // 负载起始标记
)

// 输出信号（引擎到宿主的单向通知）
type COAP_OutSignalEnum uint8

const (
	COAP_SIGNAL_PACKET_WILL_START COAP_OutSignalEnum = iota
	COAP_SIGNAL_PACKET_DID_FINISH

	COAP_SIGNAL_TX_RETR_PACKET
	COAP_SIGNAL_TX_ACK_PACKET

	COAP_SIGNAL_ACK_DID_RECEIVE
	COAP_SIGNAL_NRST_DID_RECEIVE
	COAP_SIGNAL_WRONG_PACKET_DID_RECEIVE

	COAP_SIGNAL_RESPONSE_BYTE_DID_RECEIVE
	COAP_SIGNAL_RESPONSE_TO_LONG
	COAP_SIGNAL_RESPONSE_DID_RECEIVE
)

// 句柄状态位
type COAP_HandleStatus uint16

const (
	COAP_STATUS_SENDING_PACKET COAP_HandleStatus = 0x0001
	COAP_STATUS_WAITING_RESP   COAP_HandleStatus = 0x0002
	COAP_STATUS_DEBUG_ON       COAP_HandleStatus = 0x0080
)

// 响应解析结果位
// 注意：FAILURE_CODE与TCP_SIGNAL_CODE必须是不同的位
const (
	COAP_RESP_EMPTY uint32 = 0x00000000

	COAP_RESP_ACK         uint32 = 0x00000001
	COAP_RESP_PIGGYBACKED uint32 = 0x00000002
	COAP_RESP_NRST        uint32 = 0x00000004
	COAP_RESP_SEPARATE    uint32 = 0x00000008

	COAP_RESP_SUCCESS_CODE    uint32 = 0x00000010
	COAP_RESP_FAILURE_CODE    uint32 = 0x00000020
	COAP_RESP_TCP_SIGNAL_CODE uint32 = 0x00000040

	COAP_RESP_NEED_SEND_ACK uint32 = 0x00000100

	COAP_RESP_INVALID_PACKET uint32 = 0x80000000
)

// 缓冲区结构（Buffer为底层存储，Len为已使用长度）
type COAP_Buffer struct {
	Buffer []byte
	Len    uint32
}

// 选项结构
// 解码得到的Value零拷贝指向响应缓冲区，仅在回调期间有效
type COAP_Option struct {
	Num   uint16
	Len   uint16
	Value []byte

	next *COAP_Option
}

// Next 返回链表中的下一个选项（解码结果按Num升序链接）
func (o *COAP_Option) Next() *COAP_Option {
	return o.next
}

// 请求结果（引擎所有，仅在回调调用期间有效）
type COAP_ResultData struct {
	RespCode COAP_CodeEnum
	Payload  COAP_Buffer
	Options  *COAP_Option // 选项链表，无选项时为nil
}

// 请求描述符（调用方所有，事务期间只读）
type COAP_RequestDescriptor struct {
	Type COAP_TypeEnum // 仅数据报传输有效
	Code COAP_CodeEnum
	Tkl  uint8 // Token长度，0-8

	Payload COAP_Buffer   // 可为空
	Options []COAP_Option // 按Num升序，可为空

	// ResponseCallback 为空时引擎不等待响应
	ResponseCallback func(reqd *COAP_RequestDescriptor, result *COAP_ResultData)
}

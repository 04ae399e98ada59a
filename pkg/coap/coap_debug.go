package coap

import (
	"fmt"
	"strings"

	log "github.com/junbin-yang/tinycoap-go/pkg/utils/logger"
)

// 调试输出走统一日志，由句柄的DEBUG位控制是否调用

// debugPrintPacket 以十六进制打印原始报文
func (h *COAP_Handle) debugPrintPacket(msg string, data []byte, length uint32) {
	var sb strings.Builder
	for i := uint32(0); i < length; i++ {
		fmt.Fprintf(&sb, "%02X ", data[i])
	}
	log.Debugf("[%s] %s%s", h.Name, msg, sb.String())
}

// debugPrintOptions 打印解码后的选项链表
func (h *COAP_Handle) debugPrintOptions(msg string, options *COAP_Option) {
	if options == nil {
		log.Debugf("[%s] %snone", h.Name, msg)
		return
	}
	for o := options; o != nil; o = o.next {
		log.Debugf("[%s] %snum=%d len=%d value=% X", h.Name, msg, o.Num, o.Len, o.Value[:o.Len])
	}
}

// debugPrintPayload 打印负载
func (h *COAP_Handle) debugPrintPayload(msg string, payload *COAP_Buffer) {
	if payload.Len == 0 {
		log.Debugf("[%s] %sempty", h.Name, msg)
		return
	}
	log.Debugf("[%s] %slen=%d data=%s", h.Name, msg, payload.Len, string(payload.Buffer[:payload.Len]))
}

package transport

import (
	"crypto/rand"
	"errors"
	"sync"

	"github.com/junbin-yang/tinycoap-go/pkg/coap"
)

const (
	COAP_TTL_VALUE = 64 // 默认TTL值

	connectTimeoutSec = 5
)

// 错误定义
var (
	ErrInvalidParam       = errors.New("invalid parameter")
	ErrSocketCreateFailed = errors.New("socket create failed")
	ErrAddressInvalid     = errors.New("invalid address")
	ErrConnectFailed      = errors.New("connect failed")
	ErrAlreadyAttached    = errors.New("channel already attached")
)

// msgIdGen 消息ID生成器，自增且跳过0
type msgIdGen struct {
	mu    sync.Mutex
	msgId uint16
}

func (g *msgIdGen) Next() uint16 {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.msgId++
	if g.msgId == 0 {
		g.msgId++
	}
	return g.msgId
}

// fillRandomToken 生成随机Token
func fillRandomToken(token []byte) coap.CoapError {
	if _, err := rand.Read(token); err != nil {
		return coap.COAP_ERR_PARAM
	}
	return coap.COAP_ERR_SUCCESS
}

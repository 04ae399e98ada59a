package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/junbin-yang/tinycoap-go/pkg/coap"
	log "github.com/junbin-yang/tinycoap-go/pkg/utils/logger"
)

// 流式链路上包结束的判定依据：一段静默时间内没有新字节
const tcpByteTimeout = 100 * time.Millisecond

// TcpChannel 流式通道，实现coap.Driver
// 逐字节喂给引擎，以字节超时作为帧结束判定
type TcpChannel struct {
	conn net.Conn

	handle    *coap.COAP_Handle
	dataReady chan struct{}
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex

	mid msgIdGen
}

// NewTcpChannel 连接到远程服务器并创建TCP通道
func NewTcpChannel(remoteIP string, remotePort int) (*TcpChannel, error) {
	addr := fmt.Sprintf("%s:%d", remoteIP, remotePort)
	conn, err := net.DialTimeout("tcp", addr, connectTimeoutSec*time.Second)
	if err != nil {
		return nil, fmt.Errorf("连接到%s失败: %v", addr, err)
	}

	return &TcpChannel{
		conn:      conn,
		dataReady: make(chan struct{}, 1),
		stopChan:  make(chan struct{}),
	}, nil
}

// Attach 绑定引擎句柄并启动接收循环
func (c *TcpChannel) Attach(h *coap.COAP_Handle) error {
	if h == nil {
		return ErrInvalidParam
	}
	if c.handle != nil {
		return ErrAlreadyAttached
	}
	c.handle = h

	c.wg.Add(1)
	go c.readLoop()
	return nil
}

// Close 关闭通道，等待接收循环退出
func (c *TcpChannel) Close() error {
	close(c.stopChan)
	err := c.conn.Close()
	c.wg.Wait()
	return err
}

func (c *TcpChannel) readLoop() {
	defer c.wg.Done()

	buf := make([]byte, 512)
	collected := false

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		c.conn.SetReadDeadline(time.Now().Add(tcpByteTimeout))
		n, err := c.conn.Read(buf)

		if n > 0 {
			for i := 0; i < n; i++ {
				switch ret := c.handle.RxByte(buf[i]); ret {
				case coap.COAP_ERR_SUCCESS:
					collected = true
				case coap.COAP_ERR_RX_BUFF_FULL:
					log.Warnf("[TRANSPORT] tcp rx buffer full, byte dropped")
				default:
					// 引擎未在等待状态，丢弃
				}
			}
		}

		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// 静默期结束，已收的字节构成一个完整帧
				if collected {
					collected = false
					select {
					case c.dataReady <- struct{}{}:
					default:
					}
				}
				continue
			}

			select {
			case <-c.stopChan:
			default:
				log.Errorf("[TRANSPORT] tcp read failed: %v", err)
			}
			return
		}
	}
}

// TxData 发送数据
func (c *TcpChannel) TxData(buf []byte) coap.CoapError {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.conn.Write(buf); err != nil {
		log.Errorf("[TRANSPORT] tcp send failed: %v", err)
		return coap.COAP_ERR_NO_RESP
	}
	return coap.COAP_ERR_SUCCESS
}

// WaitEvent 等待完整响应帧或超时
func (c *TcpChannel) WaitEvent(timeoutMs uint32) coap.CoapError {
	timer := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-c.dataReady:
		return coap.COAP_ERR_SUCCESS
	case <-timer.C:
		return coap.COAP_ERR_TIMEOUT
	case <-c.stopChan:
		// 通道关闭视为事务中止
		return coap.COAP_ERR_WRONG_STATE
	}
}

// TxSignal 生命周期事件通知
func (c *TcpChannel) TxSignal(signal coap.COAP_OutSignalEnum) coap.CoapError {
	log.Debugf("[TRANSPORT] tcp signal: %d", signal)
	return coap.COAP_ERR_SUCCESS
}

// MessageID 生成消息ID（TCP路径不使用，保持接口完整）
func (c *TcpChannel) MessageID() uint16 {
	return c.mid.Next()
}

// FillToken 生成随机Token
func (c *TcpChannel) FillToken(token []byte) coap.CoapError {
	return fillRandomToken(token)
}

// AllocMemBlock 申请缓冲区
func (c *TcpChannel) AllocMemBlock(size int) ([]byte, coap.CoapError) {
	return make([]byte, size), coap.COAP_ERR_SUCCESS
}

// FreeMemBlock 释放缓冲区（由GC回收）
func (c *TcpChannel) FreeMemBlock(block []byte) {
}

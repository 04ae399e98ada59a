package transport

import (
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/junbin-yang/tinycoap-go/pkg/coap"
	log "github.com/junbin-yang/tinycoap-go/pkg/utils/logger"
)

// UdpChannel 数据报通道，实现coap.Driver
// 每个到达的数据报作为一个完整响应包喂给引擎
type UdpChannel struct {
	conn    *net.UDPConn
	dstAddr *net.UDPAddr

	handle    *coap.COAP_Handle
	dataReady chan struct{}
	stopChan  chan struct{}
	wg        sync.WaitGroup

	mid msgIdGen
}

// NewUdpChannel 创建UDP通道并连接到目标地址
func NewUdpChannel(dstAddr *net.UDPAddr) (*UdpChannel, error) {
	if dstAddr == nil {
		return nil, ErrAddressInvalid
	}

	conn, err := net.DialUDP("udp", nil, dstAddr)
	if err != nil {
		return nil, ErrConnectFailed
	}

	packetConn := ipv4.NewPacketConn(conn)
	// 设置TTL
	if err := packetConn.SetTTL(COAP_TTL_VALUE); err != nil {
		log.Warn("[TRANSPORT] 设置IPv4 TTL失败", log.GetError(err))
	}
	// 禁用IPv4组播回环（本机不接收自己发送的组播包）
	if err := packetConn.SetMulticastLoopback(false); err != nil {
		log.Warn("[TRANSPORT] 禁用IPv4组播回环失败", log.GetError(err))
	}

	return &UdpChannel{
		conn:      conn,
		dstAddr:   dstAddr,
		dataReady: make(chan struct{}, 1),
		stopChan:  make(chan struct{}),
	}, nil
}

// Attach 绑定引擎句柄并启动接收循环
func (c *UdpChannel) Attach(h *coap.COAP_Handle) error {
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
func (c *UdpChannel) Close() error {
	close(c.stopChan)
	err := c.conn.Close()
	c.wg.Wait()
	return err
}

func (c *UdpChannel) readLoop() {
	defer c.wg.Done()

	buf := make([]byte, 1500)
	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		n, err := c.conn.Read(buf)
		if err != nil {
			select {
			case <-c.stopChan:
			default:
				log.Errorf("[TRANSPORT] udp read failed: %v", err)
			}
			return
		}
		if n <= 0 {
			continue
		}

		// 整包喂给引擎，引擎未在等待状态时丢弃
		if ret := c.handle.RxPacket(buf[:n]); ret == coap.COAP_ERR_SUCCESS {
			select {
			case c.dataReady <- struct{}{}:
			default:
			}
		} else {
			log.Debugf("[TRANSPORT] udp packet dropped: %v", ret)
		}
	}
}

// TxData 发送数据
func (c *UdpChannel) TxData(buf []byte) coap.CoapError {
	_, err := c.conn.Write(buf)
	if err != nil && c.dstAddr != nil {
		_, err = c.conn.WriteToUDP(buf, c.dstAddr)
	}
	if err != nil {
		log.Errorf("[TRANSPORT] udp send failed: %v", err)
		return coap.COAP_ERR_NO_RESP
	}
	return coap.COAP_ERR_SUCCESS
}

// WaitEvent 等待完整响应帧或超时
func (c *UdpChannel) WaitEvent(timeoutMs uint32) coap.CoapError {
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
func (c *UdpChannel) TxSignal(signal coap.COAP_OutSignalEnum) coap.CoapError {
	log.Debugf("[TRANSPORT] udp signal: %d", signal)
	return coap.COAP_ERR_SUCCESS
}

// MessageID 生成消息ID
func (c *UdpChannel) MessageID() uint16 {
	return c.mid.Next()
}

// FillToken 生成随机Token
func (c *UdpChannel) FillToken(token []byte) coap.CoapError {
	return fillRandomToken(token)
}

// AllocMemBlock 申请缓冲区
func (c *UdpChannel) AllocMemBlock(size int) ([]byte, coap.CoapError) {
	return make([]byte, size), coap.COAP_ERR_SUCCESS
}

// FreeMemBlock 释放缓冲区（由GC回收）
func (c *UdpChannel) FreeMemBlock(block []byte) {
}

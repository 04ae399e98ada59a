package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/junbin-yang/tinycoap-go/pkg/coap"
	"github.com/junbin-yang/tinycoap-go/pkg/transport"
	"github.com/junbin-yang/tinycoap-go/pkg/utils/config"
	"github.com/junbin-yang/tinycoap-go/pkg/utils/logger"
)

// CLI 命令行工具结构
type CLI struct {
	conf    *config.Config
	handle  *coap.COAP_Handle
	channel interface {
		Attach(h *coap.COAP_Handle) error
		Close() error
	}
}

// NewCLI 创建CLI实例
func NewCLI() *CLI {
	return &CLI{}
}

// Initialize 初始化CLI
func (c *CLI) Initialize() error {
	logger.Info("[CLI] 正在初始化...")

	c.conf = config.Parse()

	host := c.conf.Server.Host
	port := c.conf.Server.Port
	if port == 0 {
		port = coap.COAP_UDP_DEFAULT_PORT
	}

	switch c.conf.Transport {
	case "tcp":
		ch, err := transport.NewTcpChannel(host, port)
		if err != nil {
			return fmt.Errorf("创建TCP通道失败: %v", err)
		}
		c.channel = ch
		c.handle = coap.NewHandle("tinycoap-tcp", coap.COAP_TCP, ch)

	default:
		dst := &net.UDPAddr{IP: net.ParseIP(host), Port: port}
		ch, err := transport.NewUdpChannel(dst)
		if err != nil {
			return fmt.Errorf("创建UDP通道失败: %v", err)
		}
		c.channel = ch
		c.handle = coap.NewHandle("tinycoap-udp", coap.COAP_UDP, ch)
	}

	// 按配置覆盖引擎参数
	if c.conf.Coap.MaxPduSize > 0 {
		c.handle.MaxPduSize = c.conf.Coap.MaxPduSize
	}
	if c.conf.Coap.AckTimeoutMs > 0 {
		c.handle.AckTimeoutMs = c.conf.Coap.AckTimeoutMs
	}
	if c.conf.Coap.RespTimeoutMs > 0 {
		c.handle.RespTimeoutMs = c.conf.Coap.RespTimeoutMs
	}
	if c.conf.Coap.MaxRetransmit > 0 {
		c.handle.MaxRetransmit = c.conf.Coap.MaxRetransmit
	}
	if c.conf.Coap.AckRandomFactor > 0 {
		c.handle.AckRandomFactor = c.conf.Coap.AckRandomFactor
	}

	if err := c.channel.Attach(c.handle); err != nil {
		return fmt.Errorf("绑定引擎句柄失败: %v", err)
	}

	logger.Infof("[CLI] 已连接 %s://%s:%d", c.conf.Transport, host, port)
	return nil
}

// Shutdown 关闭CLI
func (c *CLI) Shutdown() {
	logger.Info("[CLI] 正在关闭...")

	if c.channel != nil {
		c.channel.Close()
	}

	logger.Info("[CLI] 已关闭")
}

// pathOptions 将URI路径拆分为Uri-Path选项序列
func pathOptions(path string) []coap.COAP_Option {
	var options []coap.COAP_Option
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" {
			continue
		}
		options = append(options, coap.COAP_Option{
			Num:   uint16(coap.COAP_URI_PATH_OPT),
			Len:   uint16(len(seg)),
			Value: []byte(seg),
		})
	}
	return options
}

// onResponse 响应回调
func onResponse(reqd *coap.COAP_RequestDescriptor, result *coap.COAP_ResultData) {
	fmt.Printf("<<< 响应代码: %d.%02d\n",
		coap.COAP_ExtractClass(result.RespCode), result.RespCode&0x1F)

	for o := result.Options; o != nil; o = o.Next() {
		fmt.Printf("<<< 选项 %d: % X\n", o.Num, o.Value[:o.Len])
	}

	if result.Payload.Len > 0 {
		fmt.Printf("<<< 负载: %s\n", string(result.Payload.Buffer[:result.Payload.Len]))
	}
}

// Request 发起一次请求事务
func (c *CLI) Request(msgType coap.COAP_TypeEnum, code coap.COAP_CodeEnum, path, payload string) {
	reqd := &coap.COAP_RequestDescriptor{
		Type:             msgType,
		Code:             code,
		Tkl:              2,
		Options:          pathOptions(path),
		ResponseCallback: onResponse,
	}
	if payload != "" {
		reqd.Payload = coap.COAP_Buffer{Buffer: []byte(payload), Len: uint32(len(payload))}
	}

	if err := c.handle.SendRequest(reqd); err != coap.COAP_ERR_SUCCESS {
		fmt.Printf("请求失败: %v\n", err)
		return
	}
	fmt.Println("✓ 事务完成")
}

func printHelp() {
	fmt.Println("可用命令:")
	fmt.Println("  get <path>            CON GET请求")
	fmt.Println("  post <path> <data>    CON POST请求")
	fmt.Println("  put <path> <data>     CON PUT请求")
	fmt.Println("  del <path>            CON DELETE请求")
	fmt.Println("  non <path>            NON GET请求（不等待ACK）")
	fmt.Println("  debug on|off          打开/关闭报文调试输出")
	fmt.Println("  help                  显示帮助")
	fmt.Println("  exit                  退出")
}

func main() {
	cli := NewCLI()
	if err := cli.Initialize(); err != nil {
		logger.Fatalf("[CLI] 初始化失败: %v", err)
	}
	defer cli.Shutdown()

	// 捕获退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cli.Shutdown()
		os.Exit(0)
	}()

	printHelp()
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("tinycoap> ")
		if !scanner.Scan() {
			break
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "get":
			if len(fields) < 2 {
				fmt.Println("用法: get <path>")
				continue
			}
			cli.Request(coap.COAP_TYPE_CON, coap.COAP_REQ_GET, fields[1], "")

		case "post":
			if len(fields) < 3 {
				fmt.Println("用法: post <path> <data>")
				continue
			}
			cli.Request(coap.COAP_TYPE_CON, coap.COAP_REQ_POST, fields[1], strings.Join(fields[2:], " "))

		case "put":
			if len(fields) < 3 {
				fmt.Println("用法: put <path> <data>")
				continue
			}
			cli.Request(coap.COAP_TYPE_CON, coap.COAP_REQ_PUT, fields[1], strings.Join(fields[2:], " "))

		case "del":
			if len(fields) < 2 {
				fmt.Println("用法: del <path>")
				continue
			}
			cli.Request(coap.COAP_TYPE_CON, coap.COAP_REQ_DEL, fields[1], "")

		case "non":
			if len(fields) < 2 {
				fmt.Println("用法: non <path>")
				continue
			}
			cli.Request(coap.COAP_TYPE_NONCON, coap.COAP_REQ_GET, fields[1], "")

		case "debug":
			if len(fields) > 1 && fields[1] == "on" {
				cli.handle.Debug(true)
				logger.SetLevel(logger.DebugLevel)
				fmt.Println("调试输出已打开")
			} else {
				cli.handle.Debug(false)
				fmt.Println("调试输出已关闭")
			}

		case "help":
			printHelp()

		case "exit", "quit":
			return

		default:
			fmt.Println("未知命令，输入help查看帮助")
		}
	}
}

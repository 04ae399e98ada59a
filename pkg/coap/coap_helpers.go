package coap

// 分块传输Block2选项值的尺寸指数映射，size = 16 << szx
const (
	COAP_BLOCK_SZX_VAL_0 = 16
	COAP_BLOCK_SZX_VAL_1 = 32
	COAP_BLOCK_SZX_VAL_2 = 64
	COAP_BLOCK_SZX_VAL_3 = 128
	COAP_BLOCK_SZX_VAL_4 = 256
	COAP_BLOCK_SZX_VAL_5 = 512
	COAP_BLOCK_SZX_VAL_6 = 1024
	COAP_BLOCK_SZX_VAL_7 = 0 // szx=7为保留值，接收到应视为协议错误
)

// 分块传输状态
type COAP_BlockwiseData struct {
	Num  uint32 // 块序号，24位
	More bool   // 后续还有块
	Szx  uint8  // 尺寸指数，3位
}

// COAP_DecodeSzxToSize 将szx指数转换为块大小（字节）
func COAP_DecodeSzxToSize(szx uint8) uint16 {
	switch szx {
	case 0:
		return COAP_BLOCK_SZX_VAL_0
	case 1:
		return COAP_BLOCK_SZX_VAL_1
	case 2:
		return COAP_BLOCK_SZX_VAL_2
	case 3:
		return COAP_BLOCK_SZX_VAL_3
	case 4:
		return COAP_BLOCK_SZX_VAL_4
	case 5:
		return COAP_BLOCK_SZX_VAL_5
	case 6:
		return COAP_BLOCK_SZX_VAL_6
	default:
		return COAP_BLOCK_SZX_VAL_7
	}
}

// COAP_FillBlock2Opt 将分块状态打包为Block2选项
//
// Block Option Value
//
//	0
//	0 1 2 3 4 5 6 7
//	+-+-+-+-+-+-+-+-+
//	|  NUM  |M| SZX |
//	+-+-+-+-+-+-+-+-+
//
//	0                   1
//	0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|          NUM          |M| SZX |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//
//	0                   1                   2
//	0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                   NUM                 |M| SZX |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//
// 末字节低4位固定为(M<<3)|SZX，NUM按大端放在更高的nibble里。
// value至少3字节，实际使用长度由NUM大小决定（1/2/3字节）。
func COAP_FillBlock2Opt(option *COAP_Option, bw *COAP_BlockwiseData, value []byte) {
	option.Num = uint16(COAP_BLOCK2_OPT)
	option.Value = value
	option.next = nil

	last := bw.Szx & 0x07
	if bw.More {
		last |= 0x08
	}

	switch {
	case bw.Num <= 15:
		option.Len = 1
		value[0] = byte(bw.Num)<<4 | last
	case bw.Num <= 4095:
		option.Len = 2
		value[0] = byte(bw.Num >> 4)
		value[1] = byte(bw.Num&0x0F)<<4 | last
	default:
		option.Len = 3
		value[0] = byte(bw.Num >> 12)
		value[1] = byte(bw.Num >> 4)
		value[2] = byte(bw.Num&0x0F)<<4 | last
	}
}

// COAP_ExtractBlock2FromOpt 从Block2选项解出分块状态
// 选项值长度0-3字节之外、或szx为保留值7时返回COAP_ERR_WRONG_OPTIONS
func COAP_ExtractBlock2FromOpt(option *COAP_Option, bw *COAP_BlockwiseData) CoapError {
	bw.Num = 0
	bw.More = false
	bw.Szx = 0

	switch option.Len {
	case 0:

	case 1:
		bw.Num = uint32(option.Value[0] >> 4)
		bw.More = option.Value[0]&0x08 != 0
		bw.Szx = option.Value[0] & 0x07

	case 2:
		bw.Num = uint32(option.Value[0])<<4 | uint32(option.Value[1]>>4)
		bw.More = option.Value[1]&0x08 != 0
		bw.Szx = option.Value[1] & 0x07

	case 3:
		bw.Num = uint32(option.Value[0])<<12 | uint32(option.Value[1])<<4 | uint32(option.Value[2]>>4)
		bw.More = option.Value[2]&0x08 != 0
		bw.Szx = option.Value[2] & 0x07

	default:
		return COAP_ERR_WRONG_OPTIONS
	}

	if bw.Szx == 7 {
		return COAP_ERR_WRONG_OPTIONS
	}
	return COAP_ERR_SUCCESS
}

// COAP_FindOptionByNumber 在解码后的选项链表中按编号查找
// 链表按Num升序，越过目标编号即可提前结束
func COAP_FindOptionByNumber(options *COAP_Option, num uint16) *COAP_Option {
	for o := options; o != nil; o = o.next {
		if o.Num > num {
			break
		}
		if o.Num == num {
			return o
		}
	}
	return nil
}

// COAP_OptionUintValue 按网络字节序解出选项的整数值（值长度1-4字节）
func COAP_OptionUintValue(option *COAP_Option) uint32 {
	var v uint32
	n := int(option.Len)
	if n > 4 {
		n = 4
	}
	for i := 0; i < n; i++ {
		v = v<<8 | uint32(option.Value[i])
	}
	return v
}

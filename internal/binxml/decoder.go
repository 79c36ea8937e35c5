package binxml

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// 二进制 XML 的块类型
const (
	chunkStringPool     = 0x0001
	chunkXML            = 0x0003
	chunkStartNamespace = 0x0100
	chunkEndNamespace   = 0x0101
	chunkStartElement   = 0x0102
	chunkEndElement     = 0x0103
	chunkCData          = 0x0104
	chunkResourceMap    = 0x0180
)

// 属性类型值（ResValue dataType）
const (
	typeReference = 0x01
	typeString    = 0x03
	typeIntDec    = 0x10
	typeIntHex    = 0x11
	typeBoolean   = 0x12
)

// maxDepth 节点树最大嵌套深度
// 迭代遍历加显式深度上限：构造的深层树不能耗尽调用栈
const maxDepth = 128

var (
	// ErrNotBinaryXML 输入不是二进制 XML 文档
	ErrNotBinaryXML = errors.New("not a binary xml document")
	// ErrMaxDepthExceeded 嵌套深度超过上限
	ErrMaxDepthExceeded = errors.New("element nesting exceeds depth limit")
)

// attribute 已解析的元素属性
type attribute struct {
	name     string
	raw      string // rawValue 指向的池字符串
	dataType uint8
	data     uint32
}

// string 属性优先取 rawValue，资源引用等无字面值的返回空串
func (a attribute) string() string {
	if a.raw != "" {
		return a.raw
	}
	return ""
}

func (a attribute) int() int64 {
	switch a.dataType {
	case typeIntDec, typeIntHex, typeBoolean, typeReference:
		return int64(int32(a.data))
	default:
		return 0
	}
}

func (a attribute) bool() bool {
	return a.data != 0
}

// event 遍历事件：start 为 false 表示元素结束
type event struct {
	start bool
	name  string
	attrs []attribute
	depth int
}

// walk 迭代解码文档并按序产出元素事件
// 任何块越界立刻终止；yield 返回 false 提前停止
func walk(data []byte, yield func(ev event) bool) error {
	if len(data) < 8 {
		return fmt.Errorf("%w: %d bytes", ErrNotBinaryXML, len(data))
	}
	if binary.LittleEndian.Uint16(data[0:2]) != chunkXML {
		return fmt.Errorf("%w: bad signature 0x%04x", ErrNotBinaryXML, binary.LittleEndian.Uint16(data[0:2]))
	}
	docSize := binary.LittleEndian.Uint32(data[4:8])
	if uint64(docSize) > uint64(len(data)) {
		return fmt.Errorf("%w: declared size %d exceeds data", ErrNotBinaryXML, docSize)
	}
	data = data[:docSize]

	var pool *stringPool
	var open []string // 未闭合元素名栈，长度即当前深度
	pos := uint32(8)

	for pos+8 <= uint32(len(data)) {
		chunkType := binary.LittleEndian.Uint16(data[pos:])
		chunkSize := binary.LittleEndian.Uint32(data[pos+4:])
		if chunkSize < 8 || uint64(pos)+uint64(chunkSize) > uint64(len(data)) {
			return fmt.Errorf("%w: chunk 0x%04x size %d out of bounds", ErrNotBinaryXML, chunkType, chunkSize)
		}
		chunk := data[pos : pos+chunkSize]

		switch chunkType {
		case chunkStringPool:
			p, err := parseStringPool(chunk)
			if err != nil {
				return err
			}
			pool = p

		case chunkStartElement:
			if pool == nil {
				return fmt.Errorf("%w: element before string pool", ErrNotBinaryXML)
			}
			if len(open) >= maxDepth {
				return ErrMaxDepthExceeded
			}
			ev, err := parseStartElement(chunk, pool, len(open)+1)
			if err != nil {
				return err
			}
			open = append(open, ev.name)
			if !yield(ev) {
				return nil
			}

		case chunkEndElement:
			// 只有闭合当前栈顶元素的 end 才出栈，悬空的 end 不触碰深度预算
			if len(open) > 0 && len(chunk) >= 24 {
				name := pool.get(binary.LittleEndian.Uint32(chunk[20:24]))
				if name == open[len(open)-1] {
					if !yield(event{start: false, name: name, depth: len(open)}) {
						return nil
					}
					open = open[:len(open)-1]
				}
			}

		case chunkResourceMap, chunkStartNamespace, chunkEndNamespace, chunkCData:
			// 与本域无关，跳过

		default:
			// 未知块跳过，不视为错误
		}

		pos += chunkSize
	}

	return nil
}

// parseStartElement 解析 RES_XML_START_ELEMENT 块
// 布局：节点头 16 字节（行号、注释）+ 元素扩展头 + 属性数组
func parseStartElement(chunk []byte, pool *stringPool, depth int) (event, error) {
	if len(chunk) < 36 {
		return event{}, fmt.Errorf("%w: start element truncated", ErrNotBinaryXML)
	}

	headerSize := binary.LittleEndian.Uint16(chunk[2:4])
	if headerSize < 16 || int(headerSize)+20 > len(chunk) {
		return event{}, fmt.Errorf("%w: element header size %d out of bounds", ErrNotBinaryXML, headerSize)
	}
	ext := chunk[headerSize:]

	nameIdx := binary.LittleEndian.Uint32(ext[4:8])
	attrStart := binary.LittleEndian.Uint16(ext[8:10])
	attrSize := binary.LittleEndian.Uint16(ext[10:12])
	attrCount := binary.LittleEndian.Uint16(ext[12:14])

	ev := event{start: true, name: pool.get(nameIdx), depth: depth}
	if attrCount == 0 {
		return ev, nil
	}
	if attrSize < 20 {
		return event{}, fmt.Errorf("%w: attribute record size %d", ErrNotBinaryXML, attrSize)
	}

	base := uint64(attrStart)
	need := base + uint64(attrCount)*uint64(attrSize)
	if need > uint64(len(ext)) {
		return event{}, fmt.Errorf("%w: attribute table out of bounds", ErrNotBinaryXML)
	}

	ev.attrs = make([]attribute, 0, attrCount)
	for i := uint16(0); i < attrCount; i++ {
		rec := ext[base+uint64(i)*uint64(attrSize):]
		attr := attribute{
			name:     pool.get(binary.LittleEndian.Uint32(rec[4:8])),
			raw:      pool.get(binary.LittleEndian.Uint32(rec[8:12])),
			dataType: rec[15],
			data:     binary.LittleEndian.Uint32(rec[16:20]),
		}
		// 字符串类型属性没有 rawValue 时，typed data 就是池索引
		if attr.raw == "" && attr.dataType == typeString {
			attr.raw = pool.get(attr.data)
		}
		ev.attrs = append(ev.attrs, attr)
	}

	return ev, nil
}

package dexscan

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// DEX 头布局中用到的固定偏移
const (
	dexHeaderSize   = 0x70
	offFileSize     = 0x20
	offStringIDSize = 0x38
	offStringIDOff  = 0x3c
	offMethodIDSize = 0x58
	offDataSize     = 0x68
)

// maxDexStrings 读取的字符串条目上限，防御构造的超大表
const maxDexStrings = 1 << 20

var errNotDex = errors.New("not a dex file")

// dexSummary 从单个 classes.dex 提取的轻量结构信号
// 只读字符串表和头部计数，不反汇编字节码
type dexSummary struct {
	strings     []string // 字符串表内容（截断后）
	identifiers []string // 类描述符的末段标识符
	stringCount int
	methodCount int
	dataSize    uint32
}

// parseDex 解析 DEX 头和字符串表
// 越界的表项跳过而不是报错：损坏的 DEX 仍然要产出能用的信号
func parseDex(data []byte) (*dexSummary, error) {
	if len(data) < dexHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", errNotDex, len(data))
	}
	if !strings.HasPrefix(string(data[:8]), "dex\n") {
		return nil, fmt.Errorf("%w: bad magic", errNotDex)
	}

	fileSize := binary.LittleEndian.Uint32(data[offFileSize:])
	if fileSize > uint32(len(data)) {
		fileSize = uint32(len(data))
	}

	count := binary.LittleEndian.Uint32(data[offStringIDSize:])
	tableOff := binary.LittleEndian.Uint32(data[offStringIDOff:])
	if count > maxDexStrings {
		count = maxDexStrings
	}

	sum := &dexSummary{
		stringCount: int(count),
		methodCount: int(binary.LittleEndian.Uint32(data[offMethodIDSize:])),
		dataSize:    binary.LittleEndian.Uint32(data[offDataSize:]),
	}

	for i := uint32(0); i < count; i++ {
		idOff := uint64(tableOff) + uint64(i)*4
		if idOff+4 > uint64(fileSize) {
			break
		}
		strOff := binary.LittleEndian.Uint32(data[idOff:])
		s, ok := readDexString(data[:fileSize], strOff)
		if !ok {
			continue
		}
		sum.strings = append(sum.strings, s)
		if ident, ok := classIdentifier(s); ok {
			sum.identifiers = append(sum.identifiers, ident)
		}
	}

	return sum, nil
}

// readDexString 读取单个字符串数据项：ULEB128 UTF-16 长度 + MUTF-8 字节
// MUTF-8 近似按 UTF-8 处理（代理对编码差异对本域的信号无影响）
func readDexString(data []byte, off uint32) (string, bool) {
	pos := uint64(off)
	_, n := uleb128(data, pos)
	if n == 0 {
		return "", false
	}
	pos += uint64(n)

	end := pos
	for end < uint64(len(data)) && data[end] != 0 {
		end++
	}
	if end >= uint64(len(data)) {
		return "", false
	}
	return string(data[pos:end]), true
}

// uleb128 解码无符号 LEB128，返回值和消耗的字节数（0 表示越界/超长）
func uleb128(data []byte, pos uint64) (uint32, int) {
	var result uint32
	var shift uint
	for i := 0; i < 5; i++ {
		if pos+uint64(i) >= uint64(len(data)) {
			return 0, 0
		}
		b := data[pos+uint64(i)]
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, i + 1
		}
		shift += 7
	}
	return 0, 0
}

// classIdentifier 从类型描述符取末段类名，如 Lcom/a/b; → b
func classIdentifier(s string) (string, bool) {
	if len(s) < 3 || s[0] != 'L' || s[len(s)-1] != ';' {
		return "", false
	}
	body := s[1 : len(s)-1]
	if idx := strings.LastIndexByte(body, '/'); idx >= 0 {
		body = body[idx+1:]
	}
	// 内部类取最外层之后的段
	if idx := strings.IndexByte(body, '$'); idx > 0 {
		body = body[:idx]
	}
	if body == "" {
		return "", false
	}
	return body, true
}

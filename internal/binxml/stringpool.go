package binxml

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"
)

// ErrInvalidStringPool 字符串池头或数据越界
var ErrInvalidStringPool = errors.New("invalid string pool")

const (
	flagStringPoolUTF8 = 1 << 8

	// maxPoolStrings 字符串数量上限，防御声明超大数组的构造输入
	maxPoolStrings = 1 << 20
)

// stringPool 二进制 XML 的字符串池
// 所有元素名、属性名和字符串值都以索引引用这里
type stringPool struct {
	strings []string
}

// get 越界索引返回空串而不是 panic：构造输入可以引用任意索引
func (p *stringPool) get(idx uint32) string {
	if p == nil || idx >= uint32(len(p.strings)) {
		return ""
	}
	return p.strings[idx]
}

// parseStringPool 解析 RES_STRING_POOL_TYPE 块
// chunk 为从块头开始的完整块字节
func parseStringPool(chunk []byte) (*stringPool, error) {
	if len(chunk) < 28 {
		return nil, fmt.Errorf("%w: header truncated (%d bytes)", ErrInvalidStringPool, len(chunk))
	}

	headerSize := binary.LittleEndian.Uint16(chunk[2:4])
	chunkSize := binary.LittleEndian.Uint32(chunk[4:8])
	stringCount := binary.LittleEndian.Uint32(chunk[8:12])
	flags := binary.LittleEndian.Uint32(chunk[16:20])
	stringsStart := binary.LittleEndian.Uint32(chunk[20:24])

	if chunkSize > uint32(len(chunk)) || uint32(headerSize) > chunkSize {
		return nil, fmt.Errorf("%w: declared size %d exceeds data", ErrInvalidStringPool, chunkSize)
	}
	if stringCount > maxPoolStrings {
		return nil, fmt.Errorf("%w: %d strings declared", ErrInvalidStringPool, stringCount)
	}
	if stringsStart > chunkSize {
		return nil, fmt.Errorf("%w: strings start %d out of bounds", ErrInvalidStringPool, stringsStart)
	}

	offsetsEnd := uint64(headerSize) + uint64(stringCount)*4
	if offsetsEnd > uint64(chunkSize) {
		return nil, fmt.Errorf("%w: offset table out of bounds", ErrInvalidStringPool)
	}

	utf8Pool := flags&flagStringPoolUTF8 != 0
	pool := &stringPool{strings: make([]string, stringCount)}
	data := chunk[:chunkSize]

	for i := uint32(0); i < stringCount; i++ {
		off := binary.LittleEndian.Uint32(data[uint32(headerSize)+i*4:])
		pos := uint64(stringsStart) + uint64(off)
		if pos >= uint64(len(data)) {
			return nil, fmt.Errorf("%w: string %d offset out of bounds", ErrInvalidStringPool, i)
		}

		var s string
		var err error
		if utf8Pool {
			s, err = decodeUTF8String(data, pos)
		} else {
			s, err = decodeUTF16String(data, pos)
		}
		if err != nil {
			return nil, err
		}
		pool.strings[i] = s
	}

	return pool, nil
}

// decodeUTF16String 解码 UTF-16LE 字符串：uint16 长度（高位置位表示
// 32 位长度），后跟 length 个码元
func decodeUTF16String(data []byte, pos uint64) (string, error) {
	if pos+2 > uint64(len(data)) {
		return "", fmt.Errorf("%w: utf16 length truncated", ErrInvalidStringPool)
	}
	length := uint64(binary.LittleEndian.Uint16(data[pos:]))
	pos += 2
	if length&0x8000 != 0 {
		if pos+2 > uint64(len(data)) {
			return "", fmt.Errorf("%w: utf16 extended length truncated", ErrInvalidStringPool)
		}
		low := uint64(binary.LittleEndian.Uint16(data[pos:]))
		length = (length&0x7fff)<<16 | low
		pos += 2
	}

	end := pos + length*2
	if end > uint64(len(data)) {
		return "", fmt.Errorf("%w: utf16 payload truncated", ErrInvalidStringPool)
	}

	units := make([]uint16, length)
	for i := uint64(0); i < length; i++ {
		units[i] = binary.LittleEndian.Uint16(data[pos+i*2:])
	}
	return string(utf16.Decode(units)), nil
}

// decodeUTF8String 解码 UTF-8 字符串：字符数、字节数两个变长前缀后跟数据
func decodeUTF8String(data []byte, pos uint64) (string, error) {
	// 字符数（最多两字节），仅用于跳过
	_, pos, err := readUTF8Length(data, pos)
	if err != nil {
		return "", err
	}
	byteLen, pos, err := readUTF8Length(data, pos)
	if err != nil {
		return "", err
	}

	end := pos + byteLen
	if end > uint64(len(data)) {
		return "", fmt.Errorf("%w: utf8 payload truncated", ErrInvalidStringPool)
	}
	return string(data[pos:end]), nil
}

func readUTF8Length(data []byte, pos uint64) (uint64, uint64, error) {
	if pos >= uint64(len(data)) {
		return 0, 0, fmt.Errorf("%w: utf8 length truncated", ErrInvalidStringPool)
	}
	b := uint64(data[pos])
	pos++
	if b&0x80 == 0 {
		return b, pos, nil
	}
	if pos >= uint64(len(data)) {
		return 0, 0, fmt.Errorf("%w: utf8 extended length truncated", ErrInvalidStringPool)
	}
	length := (b&0x7f)<<8 | uint64(data[pos])
	return length, pos + 1, nil
}

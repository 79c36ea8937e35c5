package container

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// 容器级错误：任何一个都会终止整个分析
var (
	ErrMalformedContainer = errors.New("malformed container")
	ErrUnsafeEntryPath    = errors.New("unsafe entry path")
	ErrEntryTooLarge      = errors.New("entry too large")
	ErrEntryNotFound      = errors.New("entry not found")
)

// DefaultMaxEntrySize 单个条目解压上限（解压炸弹防护）
const DefaultMaxEntrySize = 64 * 1024 * 1024

// Reader 包容器读取器
// 只枚举中央目录，不主动解压任何条目；按名称惰性读取
type Reader struct {
	entries      map[string]*zip.File
	names        []string
	maxEntrySize uint64
}

// Open 将原始字节作为 ZIP 容器打开
// 条目路径穿越是拒绝而不是清洗：穿越企图本身就是值得上报的信号
func Open(data []byte, maxEntrySize uint64) (*Reader, error) {
	if maxEntrySize == 0 {
		maxEntrySize = DefaultMaxEntrySize
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
	}

	r := &Reader{
		entries:      make(map[string]*zip.File, len(zr.File)),
		names:        make([]string, 0, len(zr.File)),
		maxEntrySize: maxEntrySize,
	}

	for _, f := range zr.File {
		if !safeEntryPath(f.Name) {
			return nil, fmt.Errorf("%w: %q", ErrUnsafeEntryPath, f.Name)
		}
		// 重复条目名保留第一个（与安装器行为一致）
		if _, dup := r.entries[f.Name]; dup {
			continue
		}
		r.entries[f.Name] = f
		r.names = append(r.names, f.Name)
	}

	return r, nil
}

// Names 按中央目录顺序返回所有条目名
func (r *Reader) Names() []string {
	return r.names
}

// Has 判断条目是否存在
func (r *Reader) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Match 返回同时满足前缀和后缀的条目名
func (r *Reader) Match(prefix, suffix string) []string {
	var out []string
	for _, name := range r.names {
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix) {
			out = append(out, name)
		}
	}
	return out
}

// DeclaredSize 条目头部声明的解压大小
func (r *Reader) DeclaredSize(name string) (uint64, bool) {
	f, ok := r.entries[name]
	if !ok {
		return 0, false
	}
	return f.UncompressedSize64, true
}

// ReadEntry 按需解压单个条目，强制执行解压大小上限
// 声明大小和实际解压字节都会被检查：条目头可以撒谎
func (r *Reader) ReadEntry(name string) ([]byte, error) {
	f, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEntryNotFound, name)
	}

	if f.UncompressedSize64 > r.maxEntrySize {
		return nil, fmt.Errorf("%w: %q declares %d bytes (limit %d)",
			ErrEntryTooLarge, name, f.UncompressedSize64, r.maxEntrySize)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", ErrMalformedContainer, name, err)
	}
	defer rc.Close()

	// 多读一个字节探测超限
	limited := io.LimitReader(rc, int64(r.maxEntrySize)+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("%w: inflate %q: %v", ErrMalformedContainer, name, err)
	}
	if uint64(len(data)) > r.maxEntrySize {
		return nil, fmt.Errorf("%w: %q inflates past %d bytes",
			ErrEntryTooLarge, name, r.maxEntrySize)
	}

	return data, nil
}

// safeEntryPath 拒绝绝对路径和包含 ".." 段的条目名
func safeEntryPath(name string) bool {
	if name == "" {
		return false
	}
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, "\\") {
		return false
	}
	// 反斜杠统一按分隔符处理后再查穿越段
	normalized := strings.ReplaceAll(name, "\\", "/")
	for _, part := range strings.Split(normalized, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

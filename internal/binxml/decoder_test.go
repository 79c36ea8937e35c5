package binxml

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// axmlBuilder 在内存中构造二进制 XML 文档，测试专用
type axmlBuilder struct {
	pool  []string
	index map[string]uint32
	body  bytes.Buffer
}

func newAXML() *axmlBuilder {
	return &axmlBuilder{index: make(map[string]uint32)}
}

func (b *axmlBuilder) intern(s string) uint32 {
	if idx, ok := b.index[s]; ok {
		return idx
	}
	idx := uint32(len(b.pool))
	b.pool = append(b.pool, s)
	b.index[s] = idx
	return idx
}

type axmlAttr struct {
	name     string
	raw      string
	hasRaw   bool
	dataType uint8
	data     uint32
	dataStr  string // dataType 为 string 时指向池
}

func strAttr(name, value string) axmlAttr {
	return axmlAttr{name: name, raw: value, hasRaw: true, dataType: typeString, dataStr: value}
}

func intAttr(name string, value int32) axmlAttr {
	return axmlAttr{name: name, dataType: typeIntDec, data: uint32(value)}
}

func boolAttr(name string, value bool) axmlAttr {
	a := axmlAttr{name: name, dataType: typeBoolean}
	if value {
		a.data = 0xffffffff
	}
	return a
}

func putU16(w *bytes.Buffer, v uint16) { _ = binary.Write(w, binary.LittleEndian, v) }
func putU32(w *bytes.Buffer, v uint32) { _ = binary.Write(w, binary.LittleEndian, v) }

func (b *axmlBuilder) start(name string, attrs ...axmlAttr) *axmlBuilder {
	nameIdx := b.intern(name)

	type resolved struct {
		nameIdx, rawIdx, data uint32
		dataType              uint8
	}
	rs := make([]resolved, 0, len(attrs))
	for _, a := range attrs {
		r := resolved{nameIdx: b.intern(a.name), rawIdx: 0xffffffff, dataType: a.dataType, data: a.data}
		if a.hasRaw {
			r.rawIdx = b.intern(a.raw)
		}
		if a.dataType == typeString {
			r.data = b.intern(a.dataStr)
		}
		rs = append(rs, r)
	}

	size := uint32(16 + 20 + 20*len(rs))
	putU16(&b.body, chunkStartElement)
	putU16(&b.body, 16) // headerSize
	putU32(&b.body, size)
	putU32(&b.body, 1)          // lineNumber
	putU32(&b.body, 0xffffffff) // comment
	putU32(&b.body, 0xffffffff) // namespace
	putU32(&b.body, nameIdx)
	putU16(&b.body, 20) // attributeStart
	putU16(&b.body, 20) // attributeSize
	putU16(&b.body, uint16(len(rs)))
	putU16(&b.body, 0) // idIndex
	putU16(&b.body, 0) // classIndex
	putU16(&b.body, 0) // styleIndex
	for _, r := range rs {
		putU32(&b.body, 0xffffffff) // namespace
		putU32(&b.body, r.nameIdx)
		putU32(&b.body, r.rawIdx)
		putU16(&b.body, 20) // value size
		b.body.WriteByte(0) // res0
		b.body.WriteByte(r.dataType)
		putU32(&b.body, r.data)
	}
	return b
}

func (b *axmlBuilder) end(name string) *axmlBuilder {
	nameIdx := b.intern(name)
	putU16(&b.body, chunkEndElement)
	putU16(&b.body, 16)
	putU32(&b.body, 24)
	putU32(&b.body, 1)
	putU32(&b.body, 0xffffffff)
	putU32(&b.body, 0xffffffff)
	putU32(&b.body, nameIdx)
	return b
}

func (b *axmlBuilder) build() []byte {
	// UTF-8 字符串池
	var data bytes.Buffer
	offsets := make([]uint32, len(b.pool))
	for i, s := range b.pool {
		offsets[i] = uint32(data.Len())
		data.WriteByte(byte(len(s))) // 字符数
		data.WriteByte(byte(len(s))) // 字节数
		data.WriteString(s)
		data.WriteByte(0)
	}

	stringsStart := uint32(28 + 4*len(b.pool))
	poolSize := stringsStart + uint32(data.Len())

	var pool bytes.Buffer
	putU16(&pool, chunkStringPool)
	putU16(&pool, 28)
	putU32(&pool, poolSize)
	putU32(&pool, uint32(len(b.pool)))
	putU32(&pool, 0) // styleCount
	putU32(&pool, flagStringPoolUTF8)
	putU32(&pool, stringsStart)
	putU32(&pool, 0) // stylesStart
	for _, off := range offsets {
		putU32(&pool, off)
	}
	pool.Write(data.Bytes())

	total := uint32(8) + poolSize + uint32(b.body.Len())
	var doc bytes.Buffer
	putU16(&doc, chunkXML)
	putU16(&doc, 8)
	putU32(&doc, total)
	doc.Write(pool.Bytes())
	doc.Write(b.body.Bytes())
	return doc.Bytes()
}

// buildTestManifest 构造一份带权限、组件和 intent-filter 的清单
func buildTestManifest() []byte {
	b := newAXML()
	b.start("manifest",
		strAttr("package", "com.example.app"),
		strAttr("versionName", "1.2.3"),
		intAttr("versionCode", 42),
	)
	b.start("uses-sdk", intAttr("minSdkVersion", 21), intAttr("targetSdkVersion", 34)).end("uses-sdk")
	b.start("uses-permission", strAttr("name", "android.permission.INTERNET")).end("uses-permission")
	b.start("uses-permission", strAttr("name", "android.permission.READ_SMS")).end("uses-permission")
	// 重复权限与需要规范化的写法
	b.start("uses-permission", strAttr("name", "android.permission.read_sms")).end("uses-permission")
	b.start("uses-permission", strAttr("name", "CAMERA")).end("uses-permission")
	b.start("application",
		strAttr("label", "Example App"),
		boolAttr("debuggable", true),
		boolAttr("allowBackup", false),
	)
	b.start("activity", strAttr("name", ".MainActivity"))
	b.start("intent-filter")
	b.start("action", strAttr("name", "android.intent.action.MAIN")).end("action")
	b.end("intent-filter")
	b.end("activity")
	b.start("service", strAttr("name", ".SyncService"), boolAttr("exported", false)).end("service")
	b.start("receiver", strAttr("name", ".SmsReceiver"))
	b.start("intent-filter")
	b.start("action", strAttr("name", "android.provider.Telephony.SMS_RECEIVED")).end("action")
	b.end("intent-filter")
	b.end("receiver")
	b.end("application")
	b.end("manifest")
	return b.build()
}

// TestDecodeManifest_Full 测试完整清单的各字段提取
func TestDecodeManifest_Full(t *testing.T) {
	doc, err := DecodeManifest(buildTestManifest())
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.False(t, doc.Partial)
	assert.Equal(t, "com.example.app", doc.PackageName)
	assert.Equal(t, "1.2.3", doc.VersionName)
	assert.Equal(t, int64(42), doc.VersionCode)
	assert.Equal(t, "Example App", doc.AppLabel)
	assert.Equal(t, 21, doc.MinSDK)
	assert.Equal(t, 34, doc.TargetSDK)
	assert.True(t, doc.Debuggable)
	assert.False(t, doc.AllowBackup)

	// 权限去重且规范化
	assert.Equal(t, []string{
		"android.permission.INTERNET",
		"android.permission.READ_SMS",
		"android.permission.CAMERA",
	}, doc.Permissions)

	require.Len(t, doc.Activities, 1)
	assert.Equal(t, ".MainActivity", doc.Activities[0].Name)
	// 有 intent-filter 但未声明 exported 时按导出处理
	assert.True(t, doc.Activities[0].Exported)
	assert.Equal(t, []string{"android.intent.action.MAIN"}, doc.Activities[0].IntentActions)

	require.Len(t, doc.Services, 1)
	assert.False(t, doc.Services[0].Exported)

	require.Len(t, doc.Receivers, 1)
	assert.True(t, doc.Receivers[0].Exported)
	assert.Equal(t, []string{"android.provider.Telephony.SMS_RECEIVED"}, doc.Receivers[0].IntentActions)
}

// TestDecodeManifest_ExplicitExportedWins 显式 exported=false 不被 intent-filter 覆盖
func TestDecodeManifest_ExplicitExportedWins(t *testing.T) {
	b := newAXML()
	b.start("manifest", strAttr("package", "com.example"))
	b.start("application")
	b.start("service", strAttr("name", ".Internal"), boolAttr("exported", false))
	b.start("intent-filter")
	b.start("action", strAttr("name", "com.example.ACTION")).end("action")
	b.end("intent-filter")
	b.end("service")
	b.end("application")
	b.end("manifest")

	doc, err := DecodeManifest(b.build())
	require.NoError(t, err)
	require.Len(t, doc.Services, 1)
	assert.False(t, doc.Services[0].Exported)
	assert.Equal(t, []string{"com.example.ACTION"}, doc.Services[0].IntentActions)
}

// TestDecodeManifest_Defaults 测试未声明属性的默认值
func TestDecodeManifest_Defaults(t *testing.T) {
	b := newAXML()
	b.start("manifest", strAttr("package", "com.minimal")).end("manifest")

	doc, err := DecodeManifest(b.build())
	require.NoError(t, err)

	assert.False(t, doc.Partial)
	assert.True(t, doc.AllowBackup, "allowBackup 默认应为 true")
	assert.False(t, doc.Debuggable)
	assert.NotNil(t, doc.Permissions)
	assert.Empty(t, doc.Permissions)
}

// TestDecodeManifest_MissingPackage 缺包名的清单降级为 Partial
func TestDecodeManifest_MissingPackage(t *testing.T) {
	b := newAXML()
	b.start("manifest").end("manifest")

	doc, err := DecodeManifest(b.build())
	require.NoError(t, err)
	assert.True(t, doc.Partial)
}

// TestDecodeManifest_NotBinaryXML 非二进制 XML 输入返回 Partial 文档和错误
func TestDecodeManifest_NotBinaryXML(t *testing.T) {
	doc, err := DecodeManifest([]byte("<manifest package=\"com.example\"/>"))
	assert.ErrorIs(t, err, ErrNotBinaryXML)
	require.NotNil(t, doc)
	assert.True(t, doc.Partial)
}

// TestDecodeManifest_DepthLimit 构造超深嵌套触发深度上限
func TestDecodeManifest_DepthLimit(t *testing.T) {
	b := newAXML()
	b.start("manifest", strAttr("package", "com.deep"))
	for i := 0; i <= maxDepth; i++ {
		b.start("nested")
	}
	doc, err := DecodeManifest(b.build())
	assert.ErrorIs(t, err, ErrMaxDepthExceeded)
	require.NotNil(t, doc)
	assert.True(t, doc.Partial)
}

// TestDecodeManifest_LyingElementHeaderSize 元素块声明的 headerSize 越界时
// 解码必须报错降级，不允许崩溃
func TestDecodeManifest_LyingElementHeaderSize(t *testing.T) {
	for _, headerSize := range []uint16{0xffff, 8} {
		data := newAXML().start("manifest", strAttr("package", "com.example")).end("manifest").build()

		// 找到第一个 start-element 块并篡改其 headerSize
		pos := uint32(8)
		for pos+8 <= uint32(len(data)) {
			if binary.LittleEndian.Uint16(data[pos:]) == chunkStartElement {
				binary.LittleEndian.PutUint16(data[pos+2:], headerSize)
				break
			}
			pos += binary.LittleEndian.Uint32(data[pos+4:])
		}

		doc, err := DecodeManifest(data)
		assert.ErrorIs(t, err, ErrNotBinaryXML, "headerSize=%#x", headerSize)
		require.NotNil(t, doc)
		assert.True(t, doc.Partial)
	}
}

// TestDecodeManifest_DanglingEndElements 悬空的 end-element 不得蚕食深度预算
func TestDecodeManifest_DanglingEndElements(t *testing.T) {
	b := newAXML()
	b.start("manifest", strAttr("package", "com.example"))
	for i := 0; i < maxDepth; i++ {
		b.end("ghost") // 从未开始的元素
		b.start("nested")
	}

	doc, err := DecodeManifest(b.build())
	assert.ErrorIs(t, err, ErrMaxDepthExceeded)
	require.NotNil(t, doc)
	assert.True(t, doc.Partial)
}

// TestDecodeManifest_InvalidStringPool 字符串池声明超大数量
func TestDecodeManifest_InvalidStringPool(t *testing.T) {
	var doc bytes.Buffer
	putU16(&doc, chunkXML)
	putU16(&doc, 8)
	putU32(&doc, 8+28)
	putU16(&doc, chunkStringPool)
	putU16(&doc, 28)
	putU32(&doc, 28)
	putU32(&doc, maxPoolStrings+1) // stringCount
	putU32(&doc, 0)
	putU32(&doc, flagStringPoolUTF8)
	putU32(&doc, 28)
	putU32(&doc, 0)

	_, err := DecodeManifest(doc.Bytes())
	assert.ErrorIs(t, err, ErrInvalidStringPool)
}

// TestDecodeManifest_TruncatedChunk 块声明大小越界
func TestDecodeManifest_TruncatedChunk(t *testing.T) {
	data := buildTestManifest()
	// 把总大小改大，使最后一个块越界
	binary.LittleEndian.PutUint32(data[4:8], uint32(len(data))+100)

	_, err := DecodeManifest(data)
	assert.ErrorIs(t, err, ErrNotBinaryXML)
}

// TestNormalizePermission 权限规范化规则
func TestNormalizePermission(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"android.permission.INTERNET", "android.permission.INTERNET"},
		{"android.permission.read_sms", "android.permission.READ_SMS"},
		{"ANDROID.PERMISSION.CAMERA", "android.permission.CAMERA"},
		{"CAMERA", "android.permission.CAMERA"},
		{"camera", "android.permission.CAMERA"},
		{"  android.permission.INTERNET  ", "android.permission.INTERNET"},
		{"com.vendor.permission.CUSTOM", "com.vendor.permission.CUSTOM"},
		{"", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NormalizePermission(c.in), "input %q", c.in)
	}
}

// TestPermissionBase 权限短名提取
func TestPermissionBase(t *testing.T) {
	assert.Equal(t, "READ_SMS", PermissionBase("android.permission.READ_SMS"))
	assert.Equal(t, "CUSTOM", PermissionBase("com.vendor.CUSTOM"))
	assert.Equal(t, "CAMERA", PermissionBase("CAMERA"))
}

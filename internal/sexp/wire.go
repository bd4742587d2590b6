package sexp

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// 线上格式: 每个节点编码为只含一个字段的 protobuf 消息
//
//	1: string   字符串原子
//	2: sint64   整数原子
//	3: double   浮点原子
//	4: bytes    列表，内容为若干个字段号 1 的子节点消息
const (
	fieldString protowire.Number = 1
	fieldInt    protowire.Number = 2
	fieldFloat  protowire.Number = 3
	fieldList   protowire.Number = 4

	fieldListItem protowire.Number = 1
)

const (
	// MaxFrameSize 限制单帧大小，防止对端发送异常长度
	MaxFrameSize = 64 << 20
	maxDepth     = 256
)

var ErrMalformed = errors.New("sexp: malformed wire data")

// Marshal 把整棵树编码为字节
func Marshal(v *Value) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil value", ErrMalformed)
	}
	return appendValue(nil, v), nil
}

func appendValue(b []byte, v *Value) []byte {
	switch v.kind {
	case KindString:
		b = protowire.AppendTag(b, fieldString, protowire.BytesType)
		b = protowire.AppendString(b, v.str)
	case KindInt:
		b = protowire.AppendTag(b, fieldInt, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(v.num))
	case KindFloat:
		b = protowire.AppendTag(b, fieldFloat, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(v.float))
	case KindList:
		var body []byte
		for _, c := range v.list {
			body = protowire.AppendTag(body, fieldListItem, protowire.BytesType)
			body = protowire.AppendBytes(body, appendValue(nil, c))
		}
		b = protowire.AppendTag(b, fieldList, protowire.BytesType)
		b = protowire.AppendBytes(b, body)
	}
	return b
}

// Unmarshal 解码 Marshal 产生的字节
func Unmarshal(b []byte) (*Value, error) {
	return decodeValue(b, 0)
}

func decodeValue(b []byte, depth int) (*Value, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", ErrMalformed, maxDepth)
	}

	num, typ, n := protowire.ConsumeTag(b)
	if n < 0 {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
	}
	b = b[n:]

	var v *Value
	switch {
	case num == fieldString && typ == protowire.BytesType:
		s, m := protowire.ConsumeBytes(b)
		if m < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
		}
		v, n = String(string(s)), m
	case num == fieldInt && typ == protowire.VarintType:
		x, m := protowire.ConsumeVarint(b)
		if m < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
		}
		v, n = Int(protowire.DecodeZigZag(x)), m
	case num == fieldFloat && typ == protowire.Fixed64Type:
		x, m := protowire.ConsumeFixed64(b)
		if m < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
		}
		v, n = Float(math.Float64frombits(x)), m
	case num == fieldList && typ == protowire.BytesType:
		body, m := protowire.ConsumeBytes(b)
		if m < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
		}
		list, err := decodeList(body, depth+1)
		if err != nil {
			return nil, err
		}
		v, n = list, m
	default:
		return nil, fmt.Errorf("%w: unexpected field %d (wire type %d)", ErrMalformed, num, typ)
	}

	if len(b[n:]) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(b[n:]))
	}
	return v, nil
}

func decodeList(b []byte, depth int) (*Value, error) {
	list := List()
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		if num != fieldListItem || typ != protowire.BytesType {
			return nil, fmt.Errorf("%w: unexpected list field %d", ErrMalformed, num)
		}
		b = b[n:]

		elem, m := protowire.ConsumeBytes(b)
		if m < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
		}
		child, err := decodeValue(elem, depth)
		if err != nil {
			return nil, err
		}
		list.list = append(list.list, child)
		b = b[m:]
	}
	return list, nil
}

// WriteFrame 写出一个以 varint 长度为前缀的帧
func WriteFrame(w io.Writer, v *Value) error {
	payload, err := Marshal(v)
	if err != nil {
		return err
	}
	frame := protowire.AppendBytes(nil, payload)
	_, err = w.Write(frame)
	return err
}

// ReadFrame 读取一个帧。对端在帧边界关闭时返回 io.EOF。
func ReadFrame(r *bufio.Reader) (*Value, error) {
	size, err := binary.ReadUvarint(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame length: %w", err)
	}
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds limit", ErrMalformed, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return Unmarshal(payload)
}

// Package digest 封装文件哈希使用的摘要原语
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
)

type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
)

func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case MD5, SHA1, SHA256:
		return a, nil
	case "":
		return MD5, nil
	}
	return "", fmt.Errorf("unsupported digest algorithm %q", s)
}

// Subsystem 是摘要子系统的句柄，由探针 INIT 时获取
type Subsystem struct {
	algos map[Algorithm]func() hash.Hash
}

func Init() (*Subsystem, error) {
	return &Subsystem{algos: map[Algorithm]func() hash.Hash{
		MD5:    md5.New,
		SHA1:   sha1.New,
		SHA256: sha256.New,
	}}, nil
}

// Sum 读取 r 的全部内容并返回摘要
func (s *Subsystem) Sum(r io.Reader, a Algorithm) ([]byte, error) {
	newHash, ok := s.algos[a]
	if !ok {
		return nil, fmt.Errorf("unsupported digest algorithm %q", a)
	}
	h := newHash()
	if _, err := io.Copy(h, r); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// Hex 把摘要编码为小写十六进制
func Hex(sum []byte) string {
	return hex.EncodeToString(sum)
}

package oval

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/25smoking/ovalprobe/internal/sexp"
)

type Datatype int

const (
	DatatypeString Datatype = iota
	DatatypeInt
	DatatypeFloat
	DatatypeBoolean
	DatatypeVersion
	DatatypeEVRString
	DatatypeBinary
)

var datatypeNames = map[Datatype]string{
	DatatypeString:    "string",
	DatatypeInt:       "int",
	DatatypeFloat:     "float",
	DatatypeBoolean:   "boolean",
	DatatypeVersion:   "version",
	DatatypeEVRString: "evr_string",
	DatatypeBinary:    "binary",
}

func (d Datatype) String() string {
	if s, ok := datatypeNames[d]; ok {
		return s
	}
	return fmt.Sprintf("datatype(%d)", int(d))
}

// ParseDatatype 解析数据类型名，空串视为 string
func ParseDatatype(s string) (Datatype, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DatatypeString, nil
	}
	for d, name := range datatypeNames {
		if name == s {
			return d, nil
		}
	}
	return DatatypeString, fmt.Errorf("unknown datatype %q", s)
}

// Coerce 把文本值转换为对应数据类型的结构化值节点。
// boolean 编码为整数 0/1，version、evr_string 和 binary 保留为字符串。
func (d Datatype) Coerce(text string) (*sexp.Value, error) {
	switch d {
	case DatatypeString, DatatypeVersion, DatatypeEVRString:
		return sexp.String(text), nil
	case DatatypeInt:
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("coerce %q to int: %w", text, err)
		}
		return sexp.Int(n), nil
	case DatatypeFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return nil, fmt.Errorf("coerce %q to float: %w", text, err)
		}
		return sexp.Float(f), nil
	case DatatypeBoolean:
		switch strings.ToLower(strings.TrimSpace(text)) {
		case "true", "1":
			return sexp.Int(1), nil
		case "false", "0":
			return sexp.Int(0), nil
		}
		return nil, fmt.Errorf("coerce %q to boolean: not true/false/1/0", text)
	case DatatypeBinary:
		if _, err := hex.DecodeString(text); err != nil {
			return nil, fmt.Errorf("coerce %q to binary: %w", text, err)
		}
		return sexp.String(strings.ToLower(text)), nil
	}
	return nil, fmt.Errorf("coerce %q: unsupported datatype %s", text, d)
}

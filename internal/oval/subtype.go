package oval

// Subtype 标识一种对象定义，对应一个探针
type Subtype string

const (
	SubtypeEnvironmentVariable Subtype = "environmentvariable"
	SubtypeFileMD5             Subtype = "filemd5"
	SubtypeFileHash            Subtype = "filehash"
	SubtypeVariable            Subtype = "variable"
)

func (s Subtype) ObjectName() string { return string(s) + "_object" }
func (s Subtype) ItemName() string   { return string(s) + "_item" }

// MessageLevel 是收集对象上诊断消息的级别
type MessageLevel int

const (
	MessageDebug MessageLevel = iota + 1
	MessageInfo
	MessageWarning
	MessageError
	MessageFatal
)

func (l MessageLevel) String() string {
	switch l {
	case MessageDebug:
		return "debug"
	case MessageInfo:
		return "info"
	case MessageWarning:
		return "warning"
	case MessageError:
		return "error"
	case MessageFatal:
		return "fatal"
	}
	return "unknown"
}

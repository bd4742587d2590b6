package embedded

import (
	"embed"
)

// Content 包含内嵌的扫描配置和示例定义，
// 外部文件不存在时作为默认值使用。
//
//go:embed config/*.yaml
var Content embed.FS

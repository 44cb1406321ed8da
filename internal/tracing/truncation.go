package tracing

// span属性的长度上限。简历文本与模型输出都可能很大，
// 截断后再上报，避免把整份简历写进追踪后端。
const (
	DefaultMaxAttrLength = 200
	MaxSQLLength         = 500
	MaxModelOutputLength = 200
)

// TruncateString 按 rune 截断字符串，保留首尾两端并以省略号连接，
// 使截断后的SQL或模型输出仍能看出开头与结尾的形状。
func TruncateString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}

	if maxLength <= 3 {
		return string(runes[:maxLength])
	}

	half := (maxLength - 3) / 2
	if half < 1 {
		half = 1
	}
	return string(runes[:half]) + "..." + string(runes[len(runes)-half:])
}

// SafeSQL 截断SQL语句到可上报的长度。
func SafeSQL(sql string) string {
	return TruncateString(sql, MaxSQLLength)
}

// SafeModelOutput 截断模型原始输出，用于解析失败时的现场留痕。
func SafeModelOutput(raw string) string {
	return TruncateString(raw, MaxModelOutputLength)
}

package property

import "strings"

// escaper 处理需要转义的控制字符。
// 反斜杠必须最先处理；单引号替换为 %27，因为页面侧脚本把整段 JSON 嵌在单引号字符串里。
var escaper = strings.NewReplacer(
	`\`, `\\`,
	"\x00", `\0`,
	"\t", `\t`,
	"\n", `\n`,
	"\r", `\r`,
	`"`, `\"`,
	`'`, `%27`,
)

// Escape 对下发给页面的字符串做转义，不含需要转义的字符时原样返回。
func Escape(s string) string {
	if !strings.ContainsAny(s, "\\\x00\t\n\r\"'") {
		return s
	}
	return escaper.Replace(s)
}

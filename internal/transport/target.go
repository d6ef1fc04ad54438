// Package transport 描述会话消息送达页面的方式。
//
// 核心只依赖 Target：一个能报告当前页面地址、并能把一段 JSON 文本投递到
// 页面侧 reply / receive 函数的对象。脚本求值嵌入与 WebSocket 连接是两种实现。
package transport

import (
	"fmt"
	"strings"
)

// InboundChannel 是页面向桥接核心发送 JSON-RPC 时使用的消息通道名。
const InboundChannel = "maracaSendJsonRpc"

// Channel 区分出站消息由页面侧哪个函数接收。
type Channel string

const (
	ChannelReply  Channel = "reply"
	ChannelNotify Channel = "notify"
)

// Function 返回页面侧接收该通道消息的脚本函数。
func (c Channel) Function() string {
	if c == ChannelReply {
		return "window.maraca.replyJsonRpc"
	}
	return "window.maraca.receiveJsonRpc"
}

func (c Channel) String() string {
	return string(c)
}

// Target 是会话绑定的页面。
//
// Group 标识承载页面的表面（一个浏览器视图或一条 WebSocket 连接），
// Address 是该表面当前显示的页面地址，页面跳转后会变化。
type Target interface {
	Group() string
	Address() string
	Deliver(ch Channel, payload string) error
}

// BuildScript 构造在页面中求值的脚本。payload 嵌在单引号字符串里，残留的单引号替换为 %27。
func BuildScript(ch Channel, payload string) string {
	return fmt.Sprintf("%s('%s'); ", ch.Function(), strings.ReplaceAll(payload, "'", "%27"))
}

// ScriptEvaluator 是宿主浏览器视图提供的脚本求值能力。
type ScriptEvaluator interface {
	ID() string
	URL() string
	EvaluateScript(script string) error
}

// ScriptTarget 通过脚本求值把消息投递到页面。
type ScriptTarget struct {
	view ScriptEvaluator
}

var _ Target = (*ScriptTarget)(nil)

func NewScriptTarget(view ScriptEvaluator) *ScriptTarget {
	return &ScriptTarget{view: view}
}

func (t *ScriptTarget) Group() string {
	return t.view.ID()
}

func (t *ScriptTarget) Address() string {
	return t.view.URL()
}

func (t *ScriptTarget) Deliver(ch Channel, payload string) error {
	return t.view.EvaluateScript(BuildScript(ch, payload))
}

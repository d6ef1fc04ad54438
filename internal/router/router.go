package router

import (
	"context"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/lk2023060901/capture-bridge-go/internal/rpc"
	"github.com/lk2023060901/capture-bridge-go/internal/transport"
	"github.com/lk2023060901/capture-bridge-go/pkg/metrics"
)

// ErrNoRoute 表示消息的 method 没有注册处理函数。
var ErrNoRoute = errors.New("router: no route")

// Request 是一条已解析的页面消息及其来源。
type Request struct {
	// Target 是消息来源页面，错误回复在找不到会话时直接发往这里。
	Target  transport.Target
	Message *rpc.Message
}

// Handler 是某个 method 的处理函数。
//
// 说明：
//   - 处理函数自行决定回复内容并通过会话或 Target 发送；
//   - 返回的 error 只用于日志，不会再转换为回复。
type Handler func(ctx context.Context, req *Request) error

// Router 维护 method 到处理函数的映射。
type Router interface {
	// Register 为 method 注册处理函数，同一 method 不允许重复注册。
	Register(method string, handler Handler) error

	// Handle 按 req.Message.Method 查找处理函数并调用，未注册时返回 ErrNoRoute。
	Handle(ctx context.Context, req *Request) error

	// Methods 返回已注册的 method，按字典序排列。
	Methods() []string
}

type defaultRouter struct {
	routes map[string]Handler
}

var _ Router = (*defaultRouter)(nil)

func New() Router {
	return &defaultRouter{
		routes: make(map[string]Handler),
	}
}

func (r *defaultRouter) Register(method string, handler Handler) error {
	if method == "" {
		return errors.New("router: method must not be empty")
	}
	if handler == nil {
		return errors.Newf("router: handler is nil for method=%s", method)
	}
	if _, exists := r.routes[method]; exists {
		return errors.Newf("router: method=%s already registered", method)
	}
	r.routes[method] = handler
	return nil
}

func (r *defaultRouter) Handle(ctx context.Context, req *Request) error {
	if req == nil || req.Message == nil {
		return errors.New("router: request is nil")
	}

	handler, ok := r.routes[req.Message.Method]
	if !ok {
		return errors.Wrapf(ErrNoRoute, "method=%s", req.Message.Method)
	}

	start := time.Now()
	err := handler(ctx, req)
	metrics.DispatchLatency.WithLabelValues(req.Message.Method).
		Observe(float64(time.Since(start).Microseconds()) / 1000)
	return err
}

func (r *defaultRouter) Methods() []string {
	methods := lo.Keys(r.routes)
	slices.Sort(methods)
	return methods
}

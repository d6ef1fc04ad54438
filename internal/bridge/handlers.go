package bridge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lk2023060901/capture-bridge-go/internal/capture"
	"github.com/lk2023060901/capture-bridge-go/internal/json"
	"github.com/lk2023060901/capture-bridge-go/internal/property"
	"github.com/lk2023060901/capture-bridge-go/internal/router"
	"github.com/lk2023060901/capture-bridge-go/internal/rpc"
	"github.com/lk2023060901/capture-bridge-go/internal/transport"
	"github.com/lk2023060901/capture-bridge-go/pkg/log"
	"github.com/lk2023060901/capture-bridge-go/pkg/metrics"
	"github.com/lk2023060901/capture-bridge-go/pkg/util/merr"
)

const msgIDMissing = "The id was not specified"

func (b *Bridge) registerHandlers() error {
	routes := map[string]router.Handler{
		rpc.MethodOpenClient:  b.openClient,
		rpc.MethodOpenDevice:  b.openDevice,
		rpc.MethodClose:       b.close,
		rpc.MethodGetProperty: b.getProperty,
		rpc.MethodSetProperty: b.setProperty,
	}
	for method, h := range routes {
		if err := b.router.Register(method, h); err != nil {
			return err
		}
	}
	return nil
}

// replyTo 直接向来源页面回复错误，用于还找不到会话的请求。
func (b *Bridge) replyTo(target transport.Target, err error, message string, handle int64, id any) error {
	resp := rpc.NewError(b.versions.Current(), err, message, handle, id)
	payload, encErr := json.MarshalToString(resp)
	if encErr != nil {
		return encErr
	}
	metrics.ErrorReplies.WithLabelValues(fmt.Sprint(resp.Error.Code)).Inc()
	if sendErr := target.Deliver(transport.ChannelReply, payload); sendErr != nil {
		metrics.OutboundMessages.WithLabelValues(transport.ChannelReply.String(), metrics.OutcomeFailed).Inc()
		b.log.Warn("failed to deliver error reply", log.FieldAddress(target.Address()), zap.Error(sendErr))
	} else {
		metrics.OutboundMessages.WithLabelValues(transport.ChannelReply.String(), metrics.OutcomeDelivered).Inc()
	}
	return err
}

// requireHandleAndID 取出 params.handle 与 id，缺失时已回复错误。
func (b *Bridge) requireHandleAndID(req *router.Request) (int64, bool, error) {
	msg := req.Message
	handle, ok := msg.IntParam(rpc.KeyHandle)
	if !ok {
		return 0, false, b.replyTo(req.Target, merr.WrapErrInvalidHandle("missing"), "", rpc.NoHandle, msg.ID)
	}
	if !msg.HasID() {
		return 0, false, b.replyTo(req.Target, merr.WrapErrParameterMissing("id"), msgIDMissing, handle, nil)
	}
	return handle, true, nil
}

func (b *Bridge) openClient(ctx context.Context, req *router.Request) error {
	msg := req.Message
	id := msg.ID
	if id == nil {
		id = rpc.OpenClientID
	}

	appID, ok1 := msg.StringParam(rpc.KeyAppID)
	appKey, ok2 := msg.StringParam(rpc.KeyAppKey)
	developerID, ok3 := msg.StringParam(rpc.KeyDeveloperID)
	if !ok1 || !ok2 || !ok3 {
		return b.replyTo(req.Target, merr.WrapErrInvalidAppInfo(appID, "appId, appKey and developerId are required"),
			"", rpc.NoHandle, id)
	}
	appInfo := capture.AppInfo{AppID: appID, AppKey: appKey, DeveloperID: developerID}

	s, err := b.registry.OpenClient(appInfo, req.Target)
	if err != nil {
		return b.replyTo(req.Target, err, "", rpc.NoHandle, id)
	}
	log.Ctx(ctx).Info("client opened", log.FieldHandle(s.Handle()), zap.String("appId", appID))

	s.Reply(rpc.NewResult(b.versions.Current(), id, rpc.HandleResult{Handle: s.Handle()}))
	b.registry.Activate(s)
	b.observers.ClientOpened.Publish(ClientEvent{Handle: s.Handle(), Address: s.Address(), Group: req.Target.Group()})
	return nil
}

func (b *Bridge) openDevice(ctx context.Context, req *router.Request) error {
	msg := req.Message
	handle, ok, err := b.requireHandleAndID(req)
	if !ok {
		return err
	}
	guid, ok := msg.StringParam(rpc.KeyGUID)
	if !ok {
		return b.replyTo(req.Target, merr.WrapErrParameterMissing(rpc.KeyGUID), "", handle, msg.ID)
	}

	s, ok := b.registry.Get(handle)
	if !ok || !s.OpenedBy(req.Target) {
		return b.replyTo(req.Target, merr.WrapErrInvalidHandle(handle), "", handle, msg.ID)
	}

	device, ok := b.registry.FindDevice(guid)
	if !ok {
		err := merr.WrapErrDeviceNotOpen(guid)
		s.ReplyError(err, fmt.Sprintf("There is no device with guid: %s open at this time", guid), s.Handle(), msg.ID)
		return err
	}

	ds := s.OpenDevice(device, msg.ID)
	b.registry.HandOff(s, guid)
	log.Ctx(ctx).Info("device opened", log.FieldHandle(s.Handle()), log.FieldDevice(guid),
		zap.Int64("deviceHandle", ds.Handle()))
	return nil
}

// close 的句柄可以指向客户端本身或其打开的设备。
// 句柄属于其它页面打开的会话时按未知句柄处理，回复给发起请求的页面。
func (b *Bridge) close(ctx context.Context, req *router.Request) error {
	msg := req.Message
	handle, ok, err := b.requireHandleAndID(req)
	if !ok {
		return err
	}

	if s, ok := b.registry.Get(handle); ok && s.OpenedBy(req.Target) {
		s.Close(handle, msg.ID)
		b.closeSession(s)
		log.Ctx(ctx).Info("client closed", log.FieldHandle(handle))
		return nil
	}
	if owner, ok := b.registry.OwnerOfDevice(handle); ok && owner.OpenedBy(req.Target) {
		owner.Close(handle, msg.ID)
		log.Ctx(ctx).Info("device closed", log.FieldHandle(owner.Handle()), zap.Int64("deviceHandle", handle))
		return nil
	}
	return b.replyTo(req.Target, merr.WrapErrInvalidHandle(handle), "", handle, msg.ID)
}

// propertyRequest 解析 getproperty / setproperty 的公共部分。
func (b *Bridge) propertyRequest(req *router.Request) (int64, property.Request, bool, error) {
	handle, ok, err := b.requireHandleAndID(req)
	if !ok {
		return 0, property.Request{}, false, err
	}
	raw, _ := req.Message.Param(rpc.KeyProperty)
	preq, err := property.ParseRequest(raw)
	if err != nil {
		return 0, property.Request{}, false, b.replyTo(req.Target, err, "", handle, req.Message.ID)
	}
	return handle, preq, true, nil
}

func (b *Bridge) getProperty(ctx context.Context, req *router.Request) error {
	handle, preq, ok, err := b.propertyRequest(req)
	if !ok {
		return err
	}
	active := b.registry.Active()
	if active == nil {
		log.Ctx(ctx).Info("getproperty dropped, no active client", log.FieldHandle(handle))
		return nil
	}
	active.GetProperty(handle, req.Message.ID, preq.Property())
	return nil
}

func (b *Bridge) setProperty(ctx context.Context, req *router.Request) error {
	handle, preq, ok, err := b.propertyRequest(req)
	if !ok {
		return err
	}
	p, err := preq.Decode()
	if err != nil {
		return b.replyTo(req.Target, err, "", handle, req.Message.ID)
	}
	active := b.registry.Active()
	if active == nil {
		log.Ctx(ctx).Info("setproperty dropped, no active client", log.FieldHandle(handle))
		return nil
	}
	active.SetProperty(handle, req.Message.ID, p)
	return nil
}

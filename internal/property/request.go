package property

import (
	"math"

	"github.com/lk2023060901/capture-bridge-go/internal/capture"
	"github.com/lk2023060901/capture-bridge-go/pkg/util/merr"
)

// Request 是 getproperty / setproperty 请求中的 params.property。
type Request struct {
	ID       capture.PropertyID
	Type     capture.PropertyType
	Value    any
	HasValue bool
}

// ParseRequest 解析 params.property，缺少 id/type 或类型越界时返回 InvalidParameter。
func ParseRequest(raw any) (Request, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Request{}, merr.WrapErrParameterMissing("property")
	}
	rawID, ok := m[KeyID]
	if !ok {
		return Request{}, merr.WrapErrParameterMissing("property.id")
	}
	id, err := integer(rawID, math.MinInt32, math.MaxInt32)
	if err != nil {
		return Request{}, merr.WrapErrParameterInvalid("property.id", rawID)
	}
	rawType, ok := m[KeyType]
	if !ok {
		return Request{}, merr.WrapErrParameterMissing("property.type")
	}
	t, err := integer(rawType, math.MinInt32, math.MaxInt32)
	if err != nil || !capture.PropertyType(t).Valid() {
		return Request{}, merr.WrapErrParameterInvalidRange("property.type", rawType,
			int(capture.PropertyTypeNone), int(capture.PropertyTypeLastType))
	}

	req := Request{ID: capture.PropertyID(id), Type: capture.PropertyType(t)}
	req.Value, req.HasValue = m[KeyValue]
	return req, nil
}

// Property 返回不带值的属性，用于 getproperty。
func (r Request) Property() capture.Property {
	return capture.Property{ID: r.ID, Type: r.Type}
}

// Decode 按请求中的类型解码 value，用于 setproperty。未携带 value 时只返回 id 与 type。
func (r Request) Decode() (capture.Property, error) {
	if !r.HasValue {
		return r.Property(), nil
	}
	return Decode(r.ID, r.Type, r.Value)
}

// ToWire 把属性编码为 {id, type, value}，用于 getproperty 的成功回复。
func ToWire(p capture.Property) (map[string]any, error) {
	v, err := Encode(p)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		KeyID:    int(p.ID),
		KeyType:  int(p.Type),
		KeyValue: v,
	}, nil
}

// Package property 负责设备属性值与线上 JSON 值之间的转换。
//
// 编码结果是可直接交给 internal/json 序列化的 Go 值（int、string、[]int、map），
// 解码输入是 internal/json 解码到 any 之后的值，数字为 json.Number。
package property

import (
	"fmt"
	"math"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/lk2023060901/capture-bridge-go/internal/capture"
	"github.com/lk2023060901/capture-bridge-go/internal/json"
	"github.com/lk2023060901/capture-bridge-go/pkg/util/merr"
)

// 线上字段名。
const (
	KeyID    = "id"
	KeyType  = "type"
	KeyValue = "value"

	KeyMajor  = "major"
	KeyMiddle = "middle"
	KeyMinor  = "minor"
	KeyBuild  = "build"
	KeyYear   = "year"
	KeyMonth  = "month"
	KeyDay    = "day"
	KeyHour   = "hour"
	KeyMinute = "minute"

	KeyStatus = "status"
	KeyName   = "name"
	KeyFlags  = "flags"
)

// Encode 将属性值编码为线上 JSON 值，string 类型的值会被转义。
func Encode(p capture.Property) (any, error) {
	return encode(p, true)
}

// EncodeRaw 与 Encode 相同但不转义字符串，用于不经过脚本嵌入的链路（例如 MQTT 设备层）。
func EncodeRaw(p capture.Property) (any, error) {
	return encode(p, false)
}

func encode(p capture.Property, escape bool) (any, error) {
	switch p.Type {
	case capture.PropertyTypeByte:
		return int(p.Byte), nil
	case capture.PropertyTypeULong:
		return uint64(p.ULong), nil
	case capture.PropertyTypeArray:
		if p.Array == nil {
			return nil, merr.WrapErrMalformedProperty("array")
		}
		return lo.Map(p.Array, func(b byte, _ int) int { return int(b) }), nil
	case capture.PropertyTypeString:
		if p.String == nil {
			return nil, merr.WrapErrMalformedProperty("string")
		}
		if escape {
			return Escape(*p.String), nil
		}
		return *p.String, nil
	case capture.PropertyTypeVersion:
		if p.Version == nil {
			return nil, merr.WrapErrMalformedProperty("version")
		}
		v := p.Version
		return map[string]any{
			KeyMajor:  v.Major,
			KeyMiddle: v.Middle,
			KeyMinor:  v.Minor,
			KeyBuild:  v.Build,
			KeyYear:   v.Year,
			KeyMonth:  v.Month,
			KeyDay:    v.Day,
			KeyHour:   v.Hour,
			KeyMinute: v.Minute,
		}, nil
	case capture.PropertyTypeDataSource:
		if p.DataSource == nil {
			return nil, merr.WrapErrMalformedProperty("dataSource")
		}
		ds := p.DataSource
		name := ds.Name
		if escape {
			name = Escape(name)
		}
		return map[string]any{
			KeyID:     int(ds.ID),
			KeyStatus: int(ds.Status),
			KeyName:   name,
			KeyFlags:  ds.Flags,
		}, nil
	case capture.PropertyTypeLastType:
		return nil, merr.WrapErrOutdatedVersion(strconv.Itoa(int(p.Type)), "< "+strconv.Itoa(int(capture.PropertyTypeLastType)))
	default:
		return nil, merr.WrapErrPropertyTypeNotSupported(int(p.Type))
	}
}

// Decode 将线上 JSON 值还原为类型为 t 的属性。
func Decode(id capture.PropertyID, t capture.PropertyType, raw any) (capture.Property, error) {
	p := capture.Property{ID: id, Type: t}

	switch t {
	case capture.PropertyTypeByte:
		n, err := integer(raw, math.MinInt8, math.MaxInt8)
		if err != nil {
			return p, err
		}
		p.Byte = int8(n)
	case capture.PropertyTypeULong:
		n, err := integer(raw, 0, math.MaxUint32)
		if err != nil {
			return p, err
		}
		p.ULong = uint32(n)
	case capture.PropertyTypeArray:
		items, ok := raw.([]any)
		if !ok {
			return p, malformed("byte array", raw)
		}
		data := make([]byte, 0, len(items))
		for _, item := range items {
			n, err := integer(item, 0, math.MaxUint8)
			if err != nil {
				return p, err
			}
			data = append(data, byte(n))
		}
		p.Array = data
	case capture.PropertyTypeString:
		s, ok := raw.(string)
		if !ok {
			return p, malformed("string", raw)
		}
		p.String = &s
	case capture.PropertyTypeVersion:
		v, err := decodeVersion(raw)
		if err != nil {
			return p, err
		}
		p.Version = v
	case capture.PropertyTypeDataSource:
		ds, err := decodeDataSource(raw)
		if err != nil {
			return p, err
		}
		p.DataSource = ds
	case capture.PropertyTypeLastType:
		return p, merr.WrapErrOutdatedVersion(strconv.Itoa(int(t)), "< "+strconv.Itoa(int(capture.PropertyTypeLastType)))
	default:
		return p, merr.WrapErrPropertyTypeNotSupported(int(t))
	}
	return p, nil
}

func decodeVersion(raw any) (*capture.Version, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, malformed("version object", raw)
	}
	keys := []string{KeyMajor, KeyMiddle, KeyMinor, KeyBuild, KeyYear, KeyMonth, KeyDay, KeyHour, KeyMinute}
	values := make([]int, len(keys))
	for i, key := range keys {
		n, err := field(m, key)
		if err != nil {
			return nil, err
		}
		values[i] = n
	}
	return &capture.Version{
		Major:  values[0],
		Middle: values[1],
		Minor:  values[2],
		Build:  values[3],
		Year:   values[4],
		Month:  values[5],
		Day:    values[6],
		Hour:   values[7],
		Minute: values[8],
	}, nil
}

func decodeDataSource(raw any) (*capture.DataSource, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, malformed("dataSource object", raw)
	}
	id, err := field(m, KeyID)
	if err != nil {
		return nil, err
	}
	status, err := field(m, KeyStatus)
	if err != nil {
		return nil, err
	}
	flags, err := field(m, KeyFlags)
	if err != nil {
		return nil, err
	}
	name, ok := m[KeyName].(string)
	if !ok {
		return nil, merr.WrapErrMalformedJSON(errors.Newf("dataSource.%s is missing or not a string", KeyName))
	}

	ds := &capture.DataSource{
		ID:     capture.DataSourceID(id),
		Status: capture.DataSourceStatus(status),
		Name:   name,
		Flags:  flags,
	}
	if !ds.ID.Valid() {
		return nil, merr.WrapErrInvalidKeyValuePair(KeyID, fmt.Sprintf("data source id %d is not valid", id))
	}
	if !ds.Status.Valid() {
		return nil, merr.WrapErrInvalidKeyValuePair(KeyStatus, fmt.Sprintf("data source status %d is not valid", status))
	}
	return ds, nil
}

func field(m map[string]any, key string) (int, error) {
	raw, ok := m[key]
	if !ok {
		return 0, merr.WrapErrMalformedJSON(errors.Newf("key %q is missing", key))
	}
	n, err := integer(raw, math.MinInt32, math.MaxInt32)
	if err != nil {
		return 0, errors.Wrapf(err, "key %q", key)
	}
	return int(n), nil
}

// integer 把解码后的 JSON 数字转换为 [lower, upper] 内的整数。
func integer(raw any, lower, upper int64) (int64, error) {
	var (
		n   int64
		err error
	)
	switch v := raw.(type) {
	case json.Number:
		n, err = v.Int64()
	case float64:
		if v != math.Trunc(v) {
			err = errors.Newf("%v is not an integer", v)
		}
		n = int64(v)
	case int:
		n = int64(v)
	case int64:
		n = v
	case uint64:
		if v > math.MaxInt64 {
			err = errors.Newf("%d overflows", v)
		}
		n = int64(v)
	default:
		return 0, malformed("integer", raw)
	}
	if err != nil {
		return 0, merr.WrapErrMalformedJSON(err)
	}
	if n < lower || n > upper {
		return 0, merr.WrapErrMalformedJSON(errors.Newf("%d is out of range [%d, %d]", n, lower, upper))
	}
	return n, nil
}

func malformed(expected string, raw any) error {
	return merr.WrapErrMalformedJSON(errors.Newf("expected %s, got %T", expected, raw))
}

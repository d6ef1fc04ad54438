package capture

import (
	"github.com/blang/semver/v4"
)

// PropertyType 是属性值的线上类型标记。
type PropertyType int

const (
	PropertyTypeNone          PropertyType = 0
	PropertyTypeNotApplicable PropertyType = 1
	PropertyTypeByte          PropertyType = 2
	PropertyTypeULong         PropertyType = 3
	PropertyTypeArray         PropertyType = 4
	PropertyTypeString        PropertyType = 5
	PropertyTypeVersion       PropertyType = 6
	PropertyTypeDataSource    PropertyType = 7
	PropertyTypeEnum          PropertyType = 8
	PropertyTypeObject        PropertyType = 9
	// PropertyTypeLastType 标记比当前实现更新的线上版本。
	PropertyTypeLastType PropertyType = 10
)

// Valid 判断类型标记是否落在已知范围内（含 LastType）。
func (t PropertyType) Valid() bool {
	return t >= PropertyTypeNone && t <= PropertyTypeLastType
}

// PropertyID 标识一个设备能力属性。
type PropertyID int

const (
	// PropertyIDVersion 是设备层版本属性，作用于设备层全局而不是单个设备。
	PropertyIDVersion PropertyID = 1
)

// Version 是 version 类型属性的值。
type Version struct {
	Major  int
	Middle int
	Minor  int
	Build  int
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
}

// Semver 将设备层版本映射为语义化版本，Build 作为 build 元数据。
func (v Version) Semver() semver.Version {
	sv := semver.Version{
		Major: uint64(max(v.Major, 0)),
		Minor: uint64(max(v.Middle, 0)),
		Patch: uint64(max(v.Minor, 0)),
	}
	if v.Build > 0 {
		sv.Build = []string{itoa(v.Build)}
	}
	return sv
}

// DataSourceStatus 是数据源（码制）的启用状态。
type DataSourceStatus int

const (
	DataSourceDisabled     DataSourceStatus = 0
	DataSourceEnabled      DataSourceStatus = 1
	DataSourceNotSupported DataSourceStatus = 2
)

func (s DataSourceStatus) Valid() bool {
	return s >= DataSourceDisabled && s <= DataSourceNotSupported
}

// DataSource 是 dataSource 类型属性的值。
type DataSource struct {
	ID     DataSourceID
	Status DataSourceStatus
	Name   string
	Flags  int
}

// Property 是一次属性读写的载体，Type 决定哪个值字段有效。
type Property struct {
	ID         PropertyID
	Type       PropertyType
	Byte       int8
	ULong      uint32
	Array      []byte
	String     *string
	Version    *Version
	DataSource *DataSource
}

// StringProperty 构造一个 string 类型属性。
func StringProperty(id PropertyID, value string) Property {
	return Property{ID: id, Type: PropertyTypeString, String: &value}
}

// VersionProperty 构造一个 version 类型属性。
func VersionProperty(id PropertyID, value Version) Property {
	return Property{ID: id, Type: PropertyTypeVersion, Version: &value}
}

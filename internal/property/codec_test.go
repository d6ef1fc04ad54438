package property

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/capture-bridge-go/internal/capture"
	"github.com/lk2023060901/capture-bridge-go/internal/json"
	"github.com/lk2023060901/capture-bridge-go/pkg/util/merr"
)

// wire 模拟一次完整的线上往返：编码、序列化、反序列化。
func wire(t *testing.T, v any) any {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var out any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

type CodecSuite struct {
	suite.Suite
}

func (s *CodecSuite) TestEncodeScalars() {
	v, err := Encode(capture.Property{Type: capture.PropertyTypeByte, Byte: -3})
	s.NoError(err)
	s.Equal(-3, v)

	v, err = Encode(capture.Property{Type: capture.PropertyTypeULong, ULong: 4000000000})
	s.NoError(err)
	s.Equal(uint64(4000000000), v)

	v, err = Encode(capture.Property{Type: capture.PropertyTypeArray, Array: []byte{0, 255, 7}})
	s.NoError(err)
	s.Equal([]int{0, 255, 7}, v)
}

func (s *CodecSuite) TestEncodeEscapesString() {
	v, err := Encode(capture.StringProperty(2, "line1\nline2"))
	s.NoError(err)
	s.Equal(`line1\nline2`, v)

	data, err := json.Marshal(map[string]any{"value": v})
	s.NoError(err)
	s.Contains(string(data), `"line1\\nline2"`)

	raw, err := EncodeRaw(capture.StringProperty(2, "line1\nline2"))
	s.NoError(err)
	s.Equal("line1\nline2", raw)
}

func (s *CodecSuite) TestEncodeDataSource() {
	v, err := Encode(capture.Property{
		Type: capture.PropertyTypeDataSource,
		DataSource: &capture.DataSource{
			ID:     capture.DataSourceIDQRCode,
			Status: capture.DataSourceEnabled,
			Name:   "QR 'Code'",
			Flags:  1,
		},
	})
	s.NoError(err)
	s.Equal(map[string]any{
		"id":     int(capture.DataSourceIDQRCode),
		"status": 1,
		"name":   "QR %27Code%27",
		"flags":  1,
	}, v)
}

func (s *CodecSuite) TestEncodeFailures() {
	cases := []struct {
		p    capture.Property
		want error
	}{
		{capture.Property{Type: capture.PropertyTypeNone}, merr.ErrPropertyTypeNotSupported},
		{capture.Property{Type: capture.PropertyTypeNotApplicable}, merr.ErrPropertyTypeNotSupported},
		{capture.Property{Type: capture.PropertyTypeEnum}, merr.ErrPropertyTypeNotSupported},
		{capture.Property{Type: capture.PropertyTypeObject}, merr.ErrPropertyTypeNotSupported},
		{capture.Property{Type: capture.PropertyTypeLastType}, merr.ErrOutdatedVersion},
		{capture.Property{Type: capture.PropertyTypeString}, merr.ErrMalformedProperty},
		{capture.Property{Type: capture.PropertyTypeArray}, merr.ErrMalformedProperty},
		{capture.Property{Type: capture.PropertyTypeVersion}, merr.ErrMalformedProperty},
		{capture.Property{Type: capture.PropertyTypeDataSource}, merr.ErrMalformedProperty},
	}
	for _, c := range cases {
		_, err := Encode(c.p)
		s.ErrorIs(err, c.want, "type %d", c.p.Type)
	}
}

func (s *CodecSuite) TestDecodeFailures() {
	cases := []struct {
		t    capture.PropertyType
		raw  any
		want error
	}{
		{capture.PropertyTypeArray, "abc", merr.ErrMalformedJSON},
		{capture.PropertyTypeArray, []any{json.Number("256")}, merr.ErrMalformedJSON},
		{capture.PropertyTypeByte, json.Number("200"), merr.ErrMalformedJSON},
		{capture.PropertyTypeByte, "1", merr.ErrMalformedJSON},
		{capture.PropertyTypeULong, json.Number("-1"), merr.ErrMalformedJSON},
		{capture.PropertyTypeULong, json.Number("1.5"), merr.ErrMalformedJSON},
		{capture.PropertyTypeString, json.Number("1"), merr.ErrMalformedJSON},
		{capture.PropertyTypeVersion, []any{}, merr.ErrMalformedJSON},
		{capture.PropertyTypeVersion, map[string]any{"major": json.Number("1")}, merr.ErrMalformedJSON},
		{capture.PropertyTypeDataSource, map[string]any{
			"id": json.Number("9999"), "status": json.Number("1"), "name": "x", "flags": json.Number("0"),
		}, merr.ErrInvalidKeyValuePair},
		{capture.PropertyTypeDataSource, map[string]any{
			"id": json.Number("1"), "status": json.Number("7"), "name": "x", "flags": json.Number("0"),
		}, merr.ErrInvalidKeyValuePair},
		{capture.PropertyTypeDataSource, map[string]any{
			"id": json.Number("1"), "status": json.Number("1"), "flags": json.Number("0"),
		}, merr.ErrMalformedJSON},
		{capture.PropertyTypeEnum, json.Number("1"), merr.ErrPropertyTypeNotSupported},
		{capture.PropertyTypeLastType, json.Number("1"), merr.ErrOutdatedVersion},
	}
	for _, c := range cases {
		_, err := Decode(1, c.t, c.raw)
		s.ErrorIs(err, c.want, "type %d raw %v", c.t, c.raw)
	}
}

func (s *CodecSuite) TestVersionRoundTrip() {
	in := capture.Version{Major: 1, Middle: 0, Minor: 2, Build: 9, Year: 2024, Month: 1, Day: 1}
	v, err := Encode(capture.VersionProperty(3, in))
	s.Require().NoError(err)

	out, err := Decode(3, capture.PropertyTypeVersion, wire(s.T(), v))
	s.Require().NoError(err)
	s.Equal(in, *out.Version)
}

func (s *CodecSuite) TestParseRequest() {
	req, err := ParseRequest(map[string]any{"id": json.Number("4"), "type": json.Number("5"), "value": "abc"})
	s.NoError(err)
	s.Equal(capture.PropertyID(4), req.ID)
	s.True(req.HasValue)
	p, err := req.Decode()
	s.NoError(err)
	s.Equal("abc", *p.String)

	req, err = ParseRequest(map[string]any{"id": json.Number("4"), "type": json.Number("2")})
	s.NoError(err)
	s.False(req.HasValue)
	p, err = req.Decode()
	s.NoError(err)
	s.Equal(capture.PropertyTypeByte, p.Type)

	_, err = ParseRequest(map[string]any{"id": json.Number("0"), "type": json.Number("99")})
	s.ErrorIs(err, merr.ErrInvalidParameter)
	_, err = ParseRequest(map[string]any{"type": json.Number("2")})
	s.ErrorIs(err, merr.ErrInvalidParameter)
	_, err = ParseRequest("property")
	s.ErrorIs(err, merr.ErrInvalidParameter)
}

func (s *CodecSuite) TestToWire() {
	w, err := ToWire(capture.Property{ID: 7, Type: capture.PropertyTypeByte, Byte: 1})
	s.NoError(err)
	s.Equal(map[string]any{"id": 7, "type": 2, "value": 1}, w)

	_, err = ToWire(capture.Property{ID: 7, Type: capture.PropertyTypeObject})
	s.ErrorIs(err, merr.ErrPropertyTypeNotSupported)
}

func TestCodec(t *testing.T) {
	suite.Run(t, new(CodecSuite))
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "plain", Escape("plain"))
	assert.Equal(t, `a\\b`, Escape(`a\b`))
	assert.Equal(t, `\0\t\n\r\"%27`, Escape("\x00\t\n\r\"'"))
}

func TestRoundTripProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("version survives encode and decode", prop.ForAll(
		func(major, middle, minor, build, year, month, day, hour, minute int) bool {
			in := capture.Version{
				Major: major, Middle: middle, Minor: minor, Build: build,
				Year: year, Month: month, Day: day, Hour: hour, Minute: minute,
			}
			v, err := Encode(capture.VersionProperty(1, in))
			if err != nil {
				return false
			}
			out, err := Decode(1, capture.PropertyTypeVersion, wire(t, v))
			return err == nil && *out.Version == in
		},
		gen.IntRange(0, 1000), gen.IntRange(0, 1000), gen.IntRange(0, 1000),
		gen.IntRange(0, 100000), gen.IntRange(1970, 2100), gen.IntRange(1, 12),
		gen.IntRange(1, 31), gen.IntRange(0, 23), gen.IntRange(0, 59),
	))

	properties.Property("byte arrays survive encode and decode", prop.ForAll(
		func(data []uint8) bool {
			if data == nil {
				data = []byte{}
			}
			v, err := Encode(capture.Property{Type: capture.PropertyTypeArray, Array: data})
			if err != nil {
				return false
			}
			out, err := Decode(0, capture.PropertyTypeArray, wire(t, v))
			return err == nil && string(out.Array) == string(data)
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("unescaped strings survive raw encode and decode", prop.ForAll(
		func(s string) bool {
			v, err := EncodeRaw(capture.StringProperty(0, s))
			if err != nil {
				return false
			}
			out, err := Decode(0, capture.PropertyTypeString, wire(t, v))
			return err == nil && *out.String == s
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

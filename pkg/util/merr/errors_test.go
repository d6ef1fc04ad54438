// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
)

type ErrSuite struct {
	suite.Suite
}

func (s *ErrSuite) TestCode() {
	err := WrapErrInvalidHandle(1)
	err = errors.Wrap(err, "failed to open device")
	s.ErrorIs(err, ErrInvalidHandle)
	s.Equal(Code(ErrInvalidHandle), Code(err))
	s.Equal(int32(1001), Code(err))
	s.Equal(TimeoutCode, Code(context.DeadlineExceeded))
	s.Equal(CanceledCode, Code(context.Canceled))
	s.Equal(errUnexpected.errCode, Code(errUnexpected))
	s.Equal(int32(0), Code(nil))

	sameCodeErr := newBridgeError("new error", ErrInvalidHandle.errCode, false)
	s.True(sameCodeErr.Is(ErrInvalidHandle))
}

func (s *ErrSuite) TestWireCodes() {
	s.Equal(int32(1001), Code(ErrInvalidHandle))
	s.Equal(int32(1002), Code(ErrInvalidParameter))
	s.Equal(int32(1003), Code(ErrInvalidAppInfo))
	s.Equal(int32(1100), Code(ErrDeviceNotOpen))
	s.Equal(int32(1203), Code(ErrMalformedJSON))
}

func (s *ErrSuite) TestWrap() {
	// Service 相关错误。
	s.ErrorIs(WrapErrServiceNotReady("starting"), ErrServiceNotReady)
	s.ErrorIs(WrapErrServiceInternal("never throw out"), ErrServiceInternal)
	s.ErrorIs(WrapErrServiceStopped("loop closed"), ErrServiceStopped)
	s.ErrorIs(WrapErrInvariantViolate("single-owner", "device already owned"), ErrInvariantViolate)

	// 请求相关错误。
	s.ErrorIs(WrapErrInvalidHandle(42, "no such client"), ErrInvalidHandle)
	s.ErrorIs(WrapErrParameterMissing("guid"), ErrInvalidParameter)
	s.ErrorIs(WrapErrParameterInvalid("handle", "abc"), ErrInvalidParameter)
	s.ErrorIs(WrapErrParameterInvalidRange("type", 11, 0, 10), ErrInvalidParameter)
	s.ErrorIs(WrapErrInvalidAppInfo("ios:com.example"), ErrInvalidAppInfo)

	// 设备相关错误。
	s.ErrorIs(WrapErrDeviceNotOpen("A1B2"), ErrDeviceNotOpen)
	s.ErrorIs(WrapErrDeviceError("A1B2", -9), ErrDeviceError)
	s.ErrorIs(WrapErrDeviceLayerUnavailable("broker offline"), ErrDeviceLayerUnavailable)

	// 属性编解码相关错误。
	s.ErrorIs(WrapErrPropertyTypeNotSupported(9), ErrPropertyTypeNotSupported)
	s.ErrorIs(WrapErrOutdatedVersion("1.0.0", "1.1.0"), ErrOutdatedVersion)
	s.ErrorIs(WrapErrMalformedProperty("value"), ErrMalformedProperty)
	s.ErrorIs(WrapErrMalformedJSON(errors.New("unexpected end")), ErrMalformedJSON)
	s.ErrorIs(WrapErrMalformedJSON(nil), ErrMalformedJSON)
	s.ErrorIs(WrapErrInvalidKeyValuePair("major"), ErrInvalidKeyValuePair)

	// 传输相关错误。
	s.ErrorIs(WrapErrTransportClosed("https://example.com"), ErrTransportClosed)
	s.ErrorIs(WrapErrTransportQueueFull("https://example.com", 8), ErrTransportQueueFull)
}

func (s *ErrSuite) TestErrorTypeAndRetriable() {
	s.Equal(InputError, GetErrorType(WrapErrParameterMissing("id")))
	s.Equal(SystemError, GetErrorType(WrapErrDeviceError("g", 1)))
	s.Equal(SystemError, GetErrorType(errors.New("plain")))

	s.True(IsRetryableErr(WrapErrDeviceLayerUnavailable("offline")))
	s.False(IsRetryableErr(WrapErrInvalidAppInfo("app")))

	s.Equal(InputError, GetErrorType(WrapErrAsInputError(ErrDeviceError)))
	s.Equal(InputError, GetErrorType(WrapErrAsInputErrorWhen(ErrDeviceNotOpen, ErrDeviceNotOpen)))
	s.Equal(SystemError, GetErrorType(WrapErrAsInputErrorWhen(ErrDeviceError, ErrDeviceNotOpen)))
}

func (s *ErrSuite) TestMessageFields() {
	err := WrapErrParameterInvalidRange("type", 11, 0, 10)
	s.Equal("invalid parameter[11 out of range 0 <= type <= 10]", err.Error())

	err = WrapErrServiceNotReady("starting")
	s.Equal("service not ready: starting", err.Error())
}

func (s *ErrSuite) TestCanceledOrTimeout() {
	s.True(IsCanceledOrTimeout(context.Canceled))
	s.True(IsCanceledOrTimeout(errors.Wrap(context.DeadlineExceeded, "open")))
	s.False(IsCanceledOrTimeout(ErrDeviceError))
}

func (s *ErrSuite) TestCombine() {
	var (
		errFirst  = errors.New("first")
		errSecond = errors.New("second")
		errThird  = errors.New("third")
	)

	err := Combine(errFirst, errSecond)
	s.True(errors.Is(err, errFirst))
	s.True(errors.Is(err, errSecond))
	s.False(errors.Is(err, errThird))

	s.Equal("first: second", err.Error())
}

func (s *ErrSuite) TestCombineWithNil() {
	err := errors.New("non-nil")

	err = Combine(nil, err)
	s.NotNil(err)
}

func (s *ErrSuite) TestCombineOnlyNil() {
	err := Combine(nil, nil)
	s.Nil(err)
}

func (s *ErrSuite) TestCombineCode() {
	err := Combine(WrapErrDeviceNotOpen("g"), WrapErrInvalidHandle(1))
	s.Equal(Code(ErrInvalidHandle), Code(err))
}

func TestErrors(t *testing.T) {
	suite.Run(t, new(ErrSuite))
}

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
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/capture-bridge-go/pkg/log"
)

// Code 返回给定错误对应的错误码。
//
// 非 bridgeError 的错误中，context.Canceled / DeadlineExceeded 有固定编码，
// 其余统一映射为 errUnexpected 的编码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case bridgeError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

func IsRetryableErr(err error) bool {
	if err, ok := errors.Cause(err).(bridgeError); ok {
		return err.retriable
	}

	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

// Ok 判断错误码是否表示成功。
func Ok(code int32) bool {
	return code == 0
}

func WrapErrAsInputError(err error) error {
	if merr, ok := err.(bridgeError); ok {
		WithErrorType(InputError)(&merr)
		return merr
	}
	return err
}

func WrapErrAsInputErrorWhen(err error, targets ...bridgeError) error {
	if merr, ok := err.(bridgeError); ok {
		for _, target := range targets {
			if target.errCode == merr.errCode {
				log.Info("mark error as input error", zap.Error(err))
				WithErrorType(InputError)(&merr)
				return merr
			}
		}
	}
	return err
}

func GetErrorType(err error) ErrorType {
	if merr, ok := errors.Cause(err).(bridgeError); ok {
		return merr.errType
	}

	return SystemError
}

// Service 相关错误封装。
func WrapErrServiceNotReady(state string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrServiceNotReady, state)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrServiceInternal(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrServiceInternal, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrServiceStopped(msg ...string) error {
	err := error(ErrServiceStopped)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// WrapErrInvariantViolate 标记内部不变量被破坏，例如同一设备被两个会话同时持有。
func WrapErrInvariantViolate(invariant string, msg ...string) error {
	err := wrapFields(ErrInvariantViolate, value("invariant", invariant))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Request 相关错误封装。
func WrapErrInvalidHandle(handle any, msg ...string) error {
	err := wrapFields(ErrInvalidHandle, value("handle", handle))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterMissing(param string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrInvalidParameter, "missing", value("param", param))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalid(param string, actual any, msg ...string) error {
	err := wrapFields(ErrInvalidParameter,
		value("param", param),
		value("actual", actual),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalidRange(param string, actual, lower, upper any, msg ...string) error {
	err := wrapFields(ErrInvalidParameter, bound(param, actual, lower, upper))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrInvalidAppInfo(appID string, msg ...string) error {
	err := wrapFields(ErrInvalidAppInfo, value("appId", appID))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Device 相关错误封装。
func WrapErrDeviceNotOpen(guid string, msg ...string) error {
	err := wrapFields(ErrDeviceNotOpen, value("guid", guid))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrDeviceError(guid string, result any, msg ...string) error {
	err := wrapFields(ErrDeviceError,
		value("guid", guid),
		value("result", result),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrDeviceLayerUnavailable(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrDeviceLayerUnavailable, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Property codec 相关错误封装。
func WrapErrPropertyTypeNotSupported(propertyType any, msg ...string) error {
	err := wrapFields(ErrPropertyTypeNotSupported, value("type", propertyType))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrOutdatedVersion(actual, required string, msg ...string) error {
	err := wrapFields(ErrOutdatedVersion,
		value("actual", actual),
		value("required", required),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrMalformedProperty(field string, msg ...string) error {
	err := wrapFields(ErrMalformedProperty, value("field", field))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrMalformedJSON(cause error) error {
	if cause == nil {
		return ErrMalformedJSON
	}
	return wrapFieldsWithDesc(ErrMalformedJSON, cause.Error())
}

func WrapErrInvalidKeyValuePair(key string, msg ...string) error {
	err := wrapFields(ErrInvalidKeyValuePair, value("key", key))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Transport 相关错误封装。
func WrapErrTransportClosed(address string, msg ...string) error {
	err := wrapFields(ErrTransportClosed, value("address", address))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrTransportQueueFull(address string, capacity int, msg ...string) error {
	err := wrapFields(ErrTransportQueueFull,
		value("address", address),
		value("capacity", capacity),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func wrapFields(err bridgeError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.detail = err.msg
	return err
}

func wrapFieldsWithDesc(err bridgeError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	err.detail = err.msg
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}

type boundField struct {
	name  string
	value any
	lower any
	upper any
}

func bound(name string, value, lower, upper any) boundField {
	return boundField{
		name:  name,
		value: value,
		lower: lower,
		upper: upper,
	}
}

func (f boundField) String() string {
	return fmt.Sprintf("%v out of range %v <= %s <= %v", f.value, f.lower, f.name, f.upper)
}

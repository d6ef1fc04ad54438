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
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

type ErrorType int32

const (
	SystemError ErrorType = 0
	InputError  ErrorType = 1
)

var ErrorTypeName = map[ErrorType]string{
	SystemError: "system_error",
	InputError:  "input_error",
}

func (err ErrorType) String() string {
	return ErrorTypeName[err]
}

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
//
// 错误码会作为 JSON-RPC error.code 原样下发给页面，已发布的编码不可修改。
var (
	// Service related
	ErrServiceNotReady  = newBridgeError("service not ready", 1, true)
	ErrServiceInternal  = newBridgeError("service internal error", 5, false)
	ErrServiceStopped   = newBridgeError("service stopped", 8, false)
	ErrInvariantViolate = newBridgeError("internal invariant violated", 6, false)

	// Request related
	ErrInvalidHandle    = newBridgeError("invalid handle", 1001, false, WithErrorType(InputError))
	ErrInvalidParameter = newBridgeError("invalid parameter", 1002, false, WithErrorType(InputError))
	ErrInvalidAppInfo   = newBridgeError("invalid app info", 1003, false, WithErrorType(InputError))

	// Device related
	ErrDeviceNotOpen          = newBridgeError("device not open", 1100, false)
	ErrDeviceError            = newBridgeError("device error", 1101, false)
	ErrDeviceLayerUnavailable = newBridgeError("device layer unavailable", 1102, true)

	// Property codec related
	ErrPropertyTypeNotSupported = newBridgeError("property type not supported", 1200, false, WithErrorType(InputError))
	ErrOutdatedVersion          = newBridgeError("outdated version", 1201, false)
	ErrMalformedProperty        = newBridgeError("malformed property", 1202, false)
	ErrMalformedJSON            = newBridgeError("malformed json", 1203, false, WithErrorType(InputError))
	ErrInvalidKeyValuePair      = newBridgeError("invalid key value pair", 1204, false, WithErrorType(InputError))

	// Transport related
	ErrTransportClosed    = newBridgeError("transport closed", 1300, false)
	ErrTransportQueueFull = newBridgeError("transport send queue full", 1301, true)

	// Do NOT export this,
	// never allow programmer using this, keep only for converting unknown error to bridgeError
	errUnexpected = newBridgeError("unexpected error", (1<<16)-1, false)
)

type errorOption func(*bridgeError)

func WithDetail(detail string) errorOption {
	return func(err *bridgeError) {
		err.detail = detail
	}
}

func WithErrorType(etype ErrorType) errorOption {
	return func(err *bridgeError) {
		err.errType = etype
	}
}

type bridgeError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
	errType   ErrorType
}

func newBridgeError(msg string, code int32, retriable bool, options ...errorOption) bridgeError {
	err := bridgeError{
		msg:       msg,
		detail:    msg,
		retriable: retriable,
		errCode:   code,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e bridgeError) code() int32 {
	return e.errCode
}

func (e bridgeError) Error() string {
	return e.msg
}

func (e bridgeError) Detail() string {
	return e.detail
}

func (e bridgeError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(bridgeError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// To make merr work for multi errors,
	// we need cause of multi errors, which defined as the last error
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}

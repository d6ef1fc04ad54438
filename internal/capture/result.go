package capture

import (
	"fmt"

	"github.com/lk2023060901/capture-bridge-go/pkg/util/merr"
)

// Result 是设备层回调携带的结果码，0 表示成功，负数表示失败。
type Result int32

const (
	ResultNoError          Result = 0
	ResultCanceled         Result = -1
	ResultAborted          Result = -2
	ResultTimeout          Result = -3
	ResultNotSupported     Result = -4
	ResultInvalidParameter Result = -5
	ResultInvalidAppInfo   Result = -6
	ResultDeviceNotOpen    Result = -7
	ResultDeviceRemoved    Result = -8
	ResultFailed           Result = -9
)

var resultNames = map[Result]string{
	ResultNoError:          "E_NOERROR",
	ResultCanceled:         "E_CANCEL",
	ResultAborted:          "E_ABORT",
	ResultTimeout:          "E_TIMEOUT",
	ResultNotSupported:     "E_NOTSUPPORTED",
	ResultInvalidParameter: "E_INVALIDPARAMETER",
	ResultInvalidAppInfo:   "E_INVALIDAPPINFO",
	ResultDeviceNotOpen:    "E_DEVICENOTOPEN",
	ResultDeviceRemoved:    "E_DEVICEREMOVED",
	ResultFailed:           "E_FAILED",
}

func (r Result) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("E_UNKNOWN(%d)", int32(r))
}

func (r Result) Ok() bool {
	return r == ResultNoError
}

// IsCancellation 判断结果是否属于取消类，取消不视为错误。
func (r Result) IsCancellation() bool {
	return r == ResultCanceled || r == ResultAborted
}

// Err 将结果码转换为 merr 错误，成功时返回 nil。
func (r Result) Err() error {
	switch r {
	case ResultNoError:
		return nil
	case ResultInvalidAppInfo:
		return merr.WrapErrInvalidAppInfo("", r.String())
	case ResultInvalidParameter:
		return merr.WrapErrParameterInvalid("property", r.String())
	default:
		return merr.WrapErrDeviceError("", r)
	}
}

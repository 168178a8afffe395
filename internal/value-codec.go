package internal

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

// Scalar 支持的值类型
type Scalar interface {
	string | int32 | int64 | float64 | bool
}

// Number 支持自增、自减的值类型
type Number interface {
	int32 | int64 | float64
}

// 布尔值的存储形式。解码时0为false，其他任何整数都为true。
const (
	nativeTrue  = "-1"
	nativeFalse = "0"
)

// NativeValue Redis中的原始值。Present为false表示键不存在。
type NativeValue struct {
	Raw     string
	Present bool
}

var Absent = NativeValue{}

func Native(raw string) NativeValue {
	return NativeValue{Raw: raw, Present: true}
}

// nativeOf 读取命令结果，键不存在（redis.Nil）不视为错误
func nativeOf(cmd *redis.StringCmd) (NativeValue, error) {
	raw, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return Absent, nil
	}
	if err != nil {
		return Absent, err
	}
	return Native(raw), nil
}

// Encode 转换为Redis中的存储形式
func Encode[T Scalar](value T) string {
	switch v := any(value).(type) {
	case string:
		return v
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		if v {
			return nativeTrue
		}
		return nativeFalse
	}
	panic(fmt.Sprintf("不支持的类型：%T", value))
}

// Decode 转换为指定类型。键不存在时返回(零值, false, nil)；非字符串类型的空值同样视为不存在。
// 值存在但无法转换时返回(零值, false, ErrDecodeMismatch)，以便区分“键不存在”和“值类型不对”。
func Decode[T Scalar](value NativeValue) (T, bool, error) {
	var zero T
	if !value.Present {
		return zero, false, nil
	}

	if _, ok := any(zero).(string); ok {
		return any(value.Raw).(T), true, nil
	}
	if value.Raw == "" {
		return zero, false, nil
	}

	var result interface{}
	var err error
	switch any(zero).(type) {
	case int32:
		var n int64
		n, err = strconv.ParseInt(value.Raw, 10, 32)
		result = int32(n)
	case int64:
		result, err = strconv.ParseInt(value.Raw, 10, 64)
	case float64:
		result, err = strconv.ParseFloat(value.Raw, 64)
	case bool:
		var n int64
		n, err = strconv.ParseInt(value.Raw, 10, 64)
		result = n != 0
	}

	if err != nil {
		return zero, false, fmt.Errorf("%w: %q 无法转换为%T", ErrDecodeMismatch, value.Raw, zero)
	}
	return result.(T), true, nil
}

// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package types

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// registerBuiltins wires the scalar Go types the executor parameterizes and
// decodes most often. decode(bind(v)) == v holds for string, int, int64,
// float64, bool, time.Time and []byte; int32 shares intConverter and decodes
// to int, and float32 shares floatConverter and decodes to float64.
func registerBuiltins(r *Registry) {
	r.Register(reflect.TypeOf(""), Unspecified, stringConverter{})
	r.Register(reflect.TypeOf(int(0)), Unspecified, intConverter{})
	r.Register(reflect.TypeOf(int32(0)), Unspecified, intConverter{})
	r.Register(reflect.TypeOf(int64(0)), Unspecified, int64Converter{})
	r.Register(reflect.TypeOf(float64(0)), Unspecified, floatConverter{})
	r.Register(reflect.TypeOf(float32(0)), Unspecified, floatConverter{})
	r.Register(reflect.TypeOf(true), Unspecified, boolConverter{})
	r.Register(reflect.TypeOf(time.Time{}), Unspecified, timeConverter{})
	r.Register(reflect.TypeOf([]byte(nil)), Unspecified, bytesConverter{})
}

type stringConverter struct{}

func (stringConverter) Bind(v any, _ JDBCType) (driver.Value, error) {
	return fmt.Sprintf("%v", v), nil
}
func (stringConverter) Decode(raw any) (any, error) {
	switch t := raw.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case nil:
		return "", nil
	default:
		return fmt.Sprintf("%v", t), nil
	}
}

type intConverter struct{}

func (intConverter) Bind(v any, _ JDBCType) (driver.Value, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	}
	return nil, &ConversionError{Op: "bind int", Value: v, Cause: fmt.Errorf("not an integer")}
}
func (intConverter) Decode(raw any) (any, error) {
	n, err := toInt64(raw)
	if err != nil {
		return nil, &ConversionError{Op: "decode int", Value: raw, Cause: err}
	}
	return int(n), nil
}

type int64Converter struct{}

func (int64Converter) Bind(v any, _ JDBCType) (driver.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() >= reflect.Int && rv.Kind() <= reflect.Int64 {
		return rv.Int(), nil
	}
	return nil, &ConversionError{Op: "bind int64", Value: v, Cause: fmt.Errorf("not an integer")}
}
func (int64Converter) Decode(raw any) (any, error) { return toInt64(raw) }

func toInt64(raw any) (int64, error) {
	switch t := raw.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case []byte:
		return strconv.ParseInt(string(t), 10, 64)
	case string:
		return strconv.ParseInt(t, 10, 64)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int64", raw)
	}
}

type floatConverter struct{}

func (floatConverter) Bind(v any, _ JDBCType) (driver.Value, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	}
	return nil, &ConversionError{Op: "bind float", Value: v, Cause: fmt.Errorf("not a float")}
}
func (floatConverter) Decode(raw any) (any, error) {
	switch t := raw.(type) {
	case float64:
		return t, nil
	case []byte:
		return strconv.ParseFloat(string(t), 64)
	case string:
		return strconv.ParseFloat(t, 64)
	case nil:
		return float64(0), nil
	default:
		return nil, &ConversionError{Op: "decode float", Value: raw, Cause: fmt.Errorf("unsupported type %T", raw)}
	}
}

type boolConverter struct{}

func (boolConverter) Bind(v any, _ JDBCType) (driver.Value, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, &ConversionError{Op: "bind bool", Value: v, Cause: fmt.Errorf("not a bool")}
	}
	return b, nil
}
func (boolConverter) Decode(raw any) (any, error) {
	switch t := raw.(type) {
	case bool:
		return t, nil
	case int64:
		return t != 0, nil
	case []byte:
		return string(t) == "1" || string(t) == "true", nil
	case nil:
		return false, nil
	default:
		return nil, &ConversionError{Op: "decode bool", Value: raw, Cause: fmt.Errorf("unsupported type %T", raw)}
	}
}

type timeConverter struct{}

func (timeConverter) Bind(v any, _ JDBCType) (driver.Value, error) {
	t, ok := v.(time.Time)
	if !ok {
		return nil, &ConversionError{Op: "bind time", Value: v, Cause: fmt.Errorf("not a time.Time")}
	}
	return t, nil
}
func (timeConverter) Decode(raw any) (any, error) {
	switch t := raw.(type) {
	case time.Time:
		return t, nil
	case []byte:
		return time.Parse("2006-01-02 15:04:05", string(t))
	case string:
		return time.Parse("2006-01-02 15:04:05", t)
	case nil:
		return time.Time{}, nil
	default:
		return nil, &ConversionError{Op: "decode time", Value: raw, Cause: fmt.Errorf("unsupported type %T", raw)}
	}
}

type bytesConverter struct{}

func (bytesConverter) Bind(v any, _ JDBCType) (driver.Value, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, &ConversionError{Op: "bind bytes", Value: v, Cause: fmt.Errorf("not a []byte")}
	}
	return b, nil
}
func (bytesConverter) Decode(raw any) (any, error) {
	switch t := raw.(type) {
	case []byte:
		return t, nil
	case nil:
		return []byte(nil), nil
	default:
		return nil, &ConversionError{Op: "decode bytes", Value: raw, Cause: fmt.Errorf("unsupported type %T", raw)}
	}
}

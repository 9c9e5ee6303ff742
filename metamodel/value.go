package metamodel

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Args is the ordered list of positional arguments of an operation call.
type Args []any

// Kwargs holds the keyword arguments of an operation call.
type Kwargs map[string]any

// ArgumentError describes an argument that could not be used, either because it is not
// representable as JSON or because an operation asked for it with the wrong type.
type ArgumentError struct {
	Path string
	Err  error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument %s: %v", e.Path, e.Err)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// CanonicalValue converts v into the closed set of JSON-compatible shapes used by the journal:
//
//	nil | bool | string | json.Number | []any | map[string]any
//
// The canonical shapes are exactly the ones the snapshot decoder produces, so a value survives
// a snapshot round trip unchanged and operations see identical arguments on replay.
func CanonicalValue(v any) (any, error) {
	return canonicalValue("$", v)
}

// CanonicalArgs returns a canonical copy of args; nil becomes an empty list.
func CanonicalArgs(args Args) (Args, error) {
	out := make(Args, len(args))
	for i, arg := range args {
		c, err := canonicalValue(fmt.Sprintf("args[%d]", i), arg)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}

	return out, nil
}

// CanonicalKwargs returns a canonical copy of kwargs; nil becomes an empty mapping.
func CanonicalKwargs(kwargs Kwargs) (Kwargs, error) {
	out := make(Kwargs, len(kwargs))
	for key, arg := range kwargs {
		c, err := canonicalValue("kwargs."+key, arg)
		if err != nil {
			return nil, err
		}
		out[key] = c
	}

	return out, nil
}

func canonicalValue(path string, v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool, string:
		return t, nil
	case json.Number:
		if _, err := strconv.ParseFloat(t.String(), 64); err != nil {
			return nil, &ArgumentError{Path: path, Err: ErrNonSerializableArgument}
		}
		return t, nil
	case int:
		return json.Number(strconv.FormatInt(int64(t), 10)), nil
	case int8:
		return json.Number(strconv.FormatInt(int64(t), 10)), nil
	case int16:
		return json.Number(strconv.FormatInt(int64(t), 10)), nil
	case int32:
		return json.Number(strconv.FormatInt(int64(t), 10)), nil
	case int64:
		return json.Number(strconv.FormatInt(t, 10)), nil
	case uint:
		return json.Number(strconv.FormatUint(uint64(t), 10)), nil
	case uint8:
		return json.Number(strconv.FormatUint(uint64(t), 10)), nil
	case uint16:
		return json.Number(strconv.FormatUint(uint64(t), 10)), nil
	case uint32:
		return json.Number(strconv.FormatUint(uint64(t), 10)), nil
	case uint64:
		return json.Number(strconv.FormatUint(t, 10)), nil
	case float32:
		return canonicalFloat(path, float64(t), 32)
	case float64:
		return canonicalFloat(path, t, 64)
	case Args:
		return canonicalSlice(path, reflect.ValueOf([]any(t)))
	case Kwargs:
		return canonicalMap(path, reflect.ValueOf(map[string]any(t)))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}, nil
		}
		return canonicalSlice(path, rv)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, &ArgumentError{Path: path, Err: ErrNonSerializableArgument}
		}
		return canonicalMap(path, rv)
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return json.Number(strconv.FormatInt(rv.Int(), 10)), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return json.Number(strconv.FormatUint(rv.Uint(), 10)), nil
	case reflect.Float32, reflect.Float64:
		return canonicalFloat(path, rv.Float(), 64)
	default:
		return nil, &ArgumentError{Path: path, Err: fmt.Errorf("%w: %T", ErrNonSerializableArgument, v)}
	}
}

func canonicalFloat(path string, f float64, bitSize int) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &ArgumentError{Path: path, Err: ErrNonSerializableArgument}
	}

	return json.Number(strconv.FormatFloat(f, 'g', -1, bitSize)), nil
}

func canonicalSlice(path string, rv reflect.Value) (any, error) {
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		c, err := canonicalValue(fmt.Sprintf("%s[%d]", path, i), rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out[i] = c
	}

	return out, nil
}

func canonicalMap(path string, rv reflect.Value) (any, error) {
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key := iter.Key().String()
		c, err := canonicalValue(path+"."+key, iter.Value().Interface())
		if err != nil {
			return nil, err
		}
		out[key] = c
	}

	return out, nil
}

/***** typed accessors *****/

// String returns the positional argument at index i as a string.
func (a Args) String(i int) (string, error) {
	v, err := a.at(i)
	if err != nil {
		return "", err
	}

	return asString(fmt.Sprintf("args[%d]", i), v)
}

// Int returns the positional argument at index i as an int.
func (a Args) Int(i int) (int, error) {
	v, err := a.at(i)
	if err != nil {
		return 0, err
	}

	return asInt(fmt.Sprintf("args[%d]", i), v)
}

// Float returns the positional argument at index i as a float64.
func (a Args) Float(i int) (float64, error) {
	v, err := a.at(i)
	if err != nil {
		return 0, err
	}

	return asFloat(fmt.Sprintf("args[%d]", i), v)
}

// Bool returns the positional argument at index i as a bool.
func (a Args) Bool(i int) (bool, error) {
	v, err := a.at(i)
	if err != nil {
		return false, err
	}

	return asBool(fmt.Sprintf("args[%d]", i), v)
}

func (a Args) at(i int) (any, error) {
	if i < 0 || i >= len(a) {
		return nil, &ArgumentError{Path: fmt.Sprintf("args[%d]", i), Err: ErrArgumentMissing}
	}

	return a[i], nil
}

// String returns the keyword argument key as a string.
func (k Kwargs) String(key string) (string, error) {
	v, err := k.at(key)
	if err != nil {
		return "", err
	}

	return asString("kwargs."+key, v)
}

// Int returns the keyword argument key as an int.
func (k Kwargs) Int(key string) (int, error) {
	v, err := k.at(key)
	if err != nil {
		return 0, err
	}

	return asInt("kwargs."+key, v)
}

// Float returns the keyword argument key as a float64.
func (k Kwargs) Float(key string) (float64, error) {
	v, err := k.at(key)
	if err != nil {
		return 0, err
	}

	return asFloat("kwargs."+key, v)
}

// Bool returns the keyword argument key as a bool.
func (k Kwargs) Bool(key string) (bool, error) {
	v, err := k.at(key)
	if err != nil {
		return false, err
	}

	return asBool("kwargs."+key, v)
}

// Has reports whether the keyword argument key is present.
func (k Kwargs) Has(key string) bool {
	_, ok := k[key]
	return ok
}

func (k Kwargs) at(key string) (any, error) {
	v, ok := k[key]
	if !ok {
		return nil, &ArgumentError{Path: "kwargs." + key, Err: ErrArgumentMissing}
	}

	return v, nil
}

func asString(path string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", &ArgumentError{Path: path, Err: fmt.Errorf("%w: want string, got %T", ErrArgumentType, v)}
	}

	return s, nil
}

func asInt(path string, v any) (int, error) {
	switch t := v.(type) {
	case json.Number:
		i, err := strconv.ParseInt(t.String(), 10, 0)
		if err == nil {
			return int(i), nil
		}
		f, ferr := strconv.ParseFloat(t.String(), 64)
		if ferr == nil {
			return wholeInt(path, f)
		}
		return 0, &ArgumentError{Path: path, Err: errors.Join(ErrArgumentType, err)}
	case int:
		return t, nil
	case float64:
		return wholeInt(path, t)
	}

	return 0, &ArgumentError{Path: path, Err: fmt.Errorf("%w: want integer, got %T", ErrArgumentType, v)}
}

// wholeInt converts f if it is a whole number inside the int range.
// math.MaxInt is not exactly representable, so the upper bound is exclusive at 2^63 (or 2^31).
func wholeInt(path string, f float64) (int, error) {
	if f != math.Trunc(f) || f < math.MinInt || f >= -math.MinInt {
		return 0, &ArgumentError{Path: path, Err: fmt.Errorf("%w: %v is not an integer in range", ErrArgumentType, f)}
	}

	return int(f), nil
}

func asFloat(path string, v any) (float64, error) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, &ArgumentError{Path: path, Err: errors.Join(ErrArgumentType, err)}
		}
		return f, nil
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	}

	return 0, &ArgumentError{Path: path, Err: fmt.Errorf("%w: want number, got %T", ErrArgumentType, v)}
}

func asBool(path string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, &ArgumentError{Path: path, Err: fmt.Errorf("%w: want bool, got %T", ErrArgumentType, v)}
	}

	return b, nil
}

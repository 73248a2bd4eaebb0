package payload

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// sequence matches unpickled tuples and lists.
type sequence interface {
	Len() int
	Get(i int) interface{}
}

// mapping matches unpickled dicts.
type mapping interface {
	Keys() []interface{}
	Get(key interface{}) (interface{}, bool)
}

// Normalize converts unpickled values into plain Go values. Objects of
// classes without a Go counterpart are rendered with fmt.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, string, float64:
		return x
	case int:
		return int64(x)
	case int64:
		return x
	case int32:
		return int64(x)
	case *big.Int:
		if x.IsInt64() {
			return x.Int64()
		}
		return x.String()
	case []byte:
		if utf8.Valid(x) {
			return string(x)
		}
		return "base64:" + base64.StdEncoding.EncodeToString(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Normalize(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[keyString(k)] = Normalize(e)
		}
		return out
	case sequence:
		out := make([]any, x.Len())
		for i := range out {
			out[i] = Normalize(x.Get(i))
		}
		return out
	case mapping:
		keys := x.Keys()
		out := make(map[string]any, len(keys))
		for _, k := range keys {
			e, _ := x.Get(k)
			out[keyString(k)] = Normalize(e)
		}
		return out
	default:
		return normalizeReflect(x)
	}
}

// normalizeReflect handles named slice and map types that expose no
// accessor methods.
func normalizeReflect(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if m, ok := entriesToMap(rv); ok {
			return m
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[keyString(iter.Key().Interface())] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Pointer:
		if !rv.IsNil() {
			elem := rv.Elem().Kind()
			if elem == reflect.Slice || elem == reflect.Map {
				return normalizeReflect(rv.Elem().Interface())
			}
		}
	}
	return fmt.Sprintf("%v", v)
}

func keyString(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return Repr(Normalize(k))
}

// Repr renders a normalized value in Python literal style.
func Repr(v any) string {
	var b strings.Builder
	writeRepr(&b, v)
	return b.String()
}

func writeRepr(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("None")
	case bool:
		if x {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case string:
		b.WriteString(quote(x))
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	case []any:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			writeRepr(b, e)
		}
		b.WriteByte(']')
	case map[string]any:
		b.WriteByte('{')
		for i, k := range sortedKeys(x) {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(quote(k))
			b.WriteString(": ")
			writeRepr(b, x[k])
		}
		b.WriteByte('}')
	default:
		b.WriteString(fmt.Sprint(x))
	}
}

// FormatCall renders positional and keyword arguments the way RQ builds a
// job description: "1, 'a', key='v'".
func FormatCall(args []any, kwargs map[string]any) string {
	parts := make([]string, 0, len(args)+len(kwargs))
	for _, a := range args {
		parts = append(parts, Repr(a))
	}
	for _, k := range sortedKeys(kwargs) {
		parts = append(parts, k+"="+Repr(kwargs[k]))
	}
	return strings.Join(parts, ", ")
}

// Truncate shortens s to at most limit runes, marking the cut with "...".
// A non-positive limit disables truncation.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= 3 {
		return string([]rune(s)[:limit])
	}
	return string([]rune(s)[:limit-3]) + "..."
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), "'", `\'`) + "'"
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// entriesToMap converts a slice of {Key, Value} entries, the layout of an
// insertion-ordered dict.
func entriesToMap(rv reflect.Value) (map[string]any, bool) {
	if rv.Len() == 0 {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		e := reflect.Indirect(rv.Index(i))
		if e.Kind() != reflect.Struct {
			return nil, false
		}
		k, v := e.FieldByName("Key"), e.FieldByName("Value")
		if !k.IsValid() || !v.IsValid() || !k.CanInterface() || !v.CanInterface() {
			return nil, false
		}
		out[keyString(k.Interface())] = Normalize(v.Interface())
	}
	return out, true
}

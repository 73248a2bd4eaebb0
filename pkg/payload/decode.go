// Package payload decodes the serialized blobs RQ stores in job records.
//
// RQ serializes invocation data, results and meta with a pluggable
// serializer: Python pickle by default, JSON when configured. Invocation data
// and exception text are additionally zlib-compressed. Decoded values are
// normalized to plain Go values (nil, bool, string, int64, float64, []any,
// map[string]any) so they can be rendered as JSON or YAML.
package payload

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/nlpodyssey/gopickle/pickle"
)

// ErrUnsupportedFormat is returned for blobs that are neither pickle nor JSON.
var ErrUnsupportedFormat = errors.New("unsupported serialization format")

// maxInflated bounds decompressed payload size.
const maxInflated = 16 << 20

// pickleProto is the PROTO opcode that starts every pickle of protocol >= 2.
const pickleProto = 0x80

// Invocation is the decoded (func_name, instance, args, kwargs) tuple.
type Invocation struct {
	FuncName string
	Instance any
	Args     []any
	Kwargs   map[string]any
}

// Inflate returns the zlib-decompressed form of raw. Blobs without a zlib
// header are returned unchanged.
func Inflate(raw []byte) ([]byte, error) {
	if !looksZlib(raw) {
		return raw, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	defer func() { _ = zr.Close() }()
	out, err := io.ReadAll(io.LimitReader(zr, maxInflated))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	return out, nil
}

// looksZlib checks for a valid zlib header: deflate method and a header
// checksum divisible by 31.
func looksZlib(b []byte) bool {
	if len(b) < 2 {
		return false
	}
	cmf, flg := b[0], b[1]
	return cmf&0x0f == 8 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}

// DecodeValue deserializes a pickle or JSON blob and normalizes the result.
func DecodeValue(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrUnsupportedFormat)
	}
	if raw[0] == pickleProto {
		return unpickle(raw)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return v, nil
}

// unpickle converts decoder panics on hostile input into errors.
func unpickle(raw []byte) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("unpickle: %v", r)
		}
	}()
	out, err := pickle.Loads(string(raw))
	if err != nil {
		return nil, fmt.Errorf("unpickle: %w", err)
	}
	return Normalize(out), nil
}

// DecodeInvocation decodes a job's data field.
func DecodeInvocation(raw []byte) (*Invocation, error) {
	inflated, err := Inflate(raw)
	if err != nil {
		return nil, err
	}
	v, err := DecodeValue(inflated)
	if err != nil {
		return nil, err
	}
	parts, ok := v.([]any)
	if !ok || len(parts) != 4 {
		return nil, fmt.Errorf("invocation: expected 4-tuple, got %T", v)
	}

	inv := &Invocation{Instance: parts[1]}
	switch fn := parts[0].(type) {
	case string:
		inv.FuncName = fn
	case nil:
	default:
		inv.FuncName = fmt.Sprint(fn)
	}
	switch args := parts[2].(type) {
	case []any:
		inv.Args = args
	case nil:
	default:
		return nil, fmt.Errorf("invocation: args is %T", parts[2])
	}
	switch kwargs := parts[3].(type) {
	case map[string]any:
		inv.Kwargs = kwargs
	case nil:
	default:
		return nil, fmt.Errorf("invocation: kwargs is %T", parts[3])
	}
	return inv, nil
}

// DecodeText decodes free text that may be zlib-compressed, such as a job's
// exc_info field. Invalid UTF-8 is reported as an error.
func DecodeText(raw []byte) (string, error) {
	inflated, err := Inflate(raw)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(inflated) {
		return "", errors.New("text is not valid utf-8")
	}
	return string(inflated), nil
}

// DecodeBase64Value decodes a base64-wrapped serialized value, the encoding
// used for return values in result streams.
func DecodeBase64Value(s string) (any, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	return DecodeValue(raw)
}

// DecodeBase64Text decodes base64-wrapped, zlib-compressed text, the encoding
// used for exception strings in result streams.
func DecodeBase64Text(s string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("base64: %w", err)
	}
	return DecodeText(raw)
}

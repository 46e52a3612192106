package codec

import (
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// ExtValue is an application type that knows its MessagePack form.
type ExtValue interface {
	MarshalMsgpack() ([]byte, error)
	UnmarshalMsgpack(data []byte) error
}

// RegisterExt makes an application type travel as a MessagePack extension
// with the given id.
func RegisterExt(extID int8, value ExtValue) {
	msgpack.RegisterExt(extID, value)
}

// msgpackCodec decodes integers as int64 or uint64 and floats as float64.
type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) Encode(v interface{}) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "msgpack: cannot encode %T", v)
	}
	return data, nil
}

func (msgpackCodec) Decode(data []byte, v interface{}) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "msgpack: cannot decode")
	}
	switch t := v.(type) {
	case *interface{}:
		*t = widen(*t)
	case *[]interface{}:
		widen(*t)
	case *map[string]interface{}:
		widen(*t)
	}
	return nil
}

// widen replaces the sized integers and float32 that MessagePack decodes
// into interfaces with int64, uint64 and float64. bin stays []byte.
func widen(v interface{}) interface{} {
	switch t := v.(type) {
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case uint8:
		return uint64(t)
	case uint16:
		return uint64(t)
	case uint32:
		return uint64(t)
	case uint:
		return uint64(t)
	case float32:
		return float64(t)
	case []interface{}:
		for i := range t {
			t[i] = widen(t[i])
		}
	case map[string]interface{}:
		for k, e := range t {
			t[k] = widen(e)
		}
	case map[interface{}]interface{}:
		for k, e := range t {
			t[k] = widen(e)
		}
	}
	return v
}

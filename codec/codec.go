// Package codec converts application values to and from wire bytes.
//
// Every codec supports nil, bool, the Go integer and float kinds, string,
// []byte, []interface{}, map[string]interface{} and time.Time, nested in
// any combination. Application types have to be registered with the codec
// that carries them (Register for Gob, RegisterExt for Msgpack). Values of
// other shapes, functions and channels included, fail to encode.
package codec

import (
	"reflect"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Codec encodes and decodes values. Decode takes a pointer, decoding into
// *interface{} yields the generic shape of the value.
type Codec interface {
	Name() string
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
}

var (
	Gob     Codec = gobCodec{}
	JSON    Codec = jsonCodec{}
	Msgpack Codec = msgpackCodec{}
)

var codecs = map[string]Codec{
	Gob.Name():     Gob,
	JSON.Name():    JSON,
	Msgpack.Name(): Msgpack,
}

// Default is the codec used when none is configured.
var Default = Gob

// ByName returns the codec registered under name, case insensitive. An
// empty name selects Default.
func ByName(name string) (Codec, error) {
	if name == "" {
		return Default, nil
	}
	c, ok := codecs[strings.ToLower(name)]
	if !ok {
		return nil, errors.Errorf("unknown codec %q, available: %v", name, Names())
	}
	return c, nil
}

// Names lists the available codecs.
func Names() []string {
	rst := make([]string, 0, len(codecs))
	for name := range codecs {
		rst = append(rst, name)
	}
	sort.Strings(rst)
	return rst
}

// assign stores src into the value dst points to.
func assign(dst interface{}, src interface{}) error {
	if p, ok := dst.(*interface{}); ok {
		*p = src
		return nil
	}
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.Errorf("decode target must be a non-nil pointer, got %T", dst)
	}
	elem := rv.Elem()
	if src == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return nil
	}
	sv := reflect.ValueOf(src)
	switch {
	case sv.Type().AssignableTo(elem.Type()):
		elem.Set(sv)
	case sv.Type().ConvertibleTo(elem.Type()) && sv.Kind() != reflect.String:
		elem.Set(sv.Convert(elem.Type()))
	default:
		return errors.Errorf("cannot decode %T into %v", src, elem.Type())
	}
	return nil
}

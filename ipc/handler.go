package ipc

import (
	"context"
	"math"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// Kind tells how a handler runs. It is decided once, at registration.
type Kind int

const (
	// Immediate handlers run to completion on the delivery goroutine.
	Immediate Kind = iota
	// Suspending handlers may block and run on their own goroutine.
	Suspending
)

func (k Kind) String() string {
	switch k {
	case Immediate:
		return "immediate"
	case Suspending:
		return "suspending"
	default:
		return "unknown"
	}
}

// Kwargs is the type of a trailing keyword argument parameter.
type Kwargs map[string]interface{}

// Handler is the uniform invocation contract of a registered method.
type Handler interface {
	Kind() Kind
	Invoke(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error)
}

// Func is an immediate handler working on raw arguments.
type Func func(args []interface{}, kwargs map[string]interface{}) (interface{}, error)

func (f Func) Kind() Kind { return Immediate }

func (f Func) Invoke(_ context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	return f(args, kwargs)
}

// ContextFunc is a suspending handler working on raw arguments.
type ContextFunc func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error)

func (f ContextFunc) Kind() Kind { return Suspending }

func (f ContextFunc) Invoke(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	return f(ctx, args, kwargs)
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	kwargsType  = reflect.TypeOf(Kwargs(nil))
)

// HandlerOf adapts fn to a Handler. Besides Handler, Func and ContextFunc
// values, fn may be any function of the form
//
//	func([ctx context.Context,] p1 T1, ..., pn Tn [, kw ipc.Kwargs]) [(R)|(error)|(R, error)]
//
// with an optional variadic last positional parameter. Decoded arguments are
// converted to the parameter types, numbers between kinds as long as the
// value survives. A leading context makes the handler suspending.
func HandlerOf(fn interface{}) (Handler, error) {
	switch f := fn.(type) {
	case nil:
		return nil, errors.New("handler cannot be nil")
	case Handler:
		return f, nil
	case func([]interface{}, map[string]interface{}) (interface{}, error):
		return Func(f), nil
	case func(context.Context, []interface{}, map[string]interface{}) (interface{}, error):
		return ContextFunc(f), nil
	}

	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return nil, errors.Errorf("handler must be a function, got %T", fn)
	}
	if v.IsNil() {
		return nil, errors.New("handler cannot be nil")
	}
	h := &reflectHandler{fn: v, kind: Immediate, result: -1, err: -1}

	first, last := 0, t.NumIn()
	if last > 0 && t.In(0) == contextType {
		h.kind = Suspending
		first = 1
	}
	if last > first && !t.IsVariadic() && t.In(last-1) == kwargsType {
		h.kwargs = true
		last--
	}
	for i := first; i < last; i++ {
		h.params = append(h.params, t.In(i))
	}
	h.variadic = t.IsVariadic()

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			h.err = 0
		} else {
			h.result = 0
		}
	case 2:
		if t.Out(1) != errorType {
			return nil, errors.Errorf("second result of %v must be error", t)
		}
		h.result, h.err = 0, 1
	default:
		return nil, errors.Errorf("%v returns too many values", t)
	}
	return h, nil
}

// argumentError marks arguments a handler could not accept. Only these
// are answered as invalid requests, errors returned by handlers are not.
type argumentError struct {
	err error
}

func (e *argumentError) Error() string { return e.err.Error() }

func (e *argumentError) Unwrap() error { return e.err }

type reflectHandler struct {
	fn       reflect.Value
	kind     Kind
	params   []reflect.Type
	variadic bool
	kwargs   bool
	result   int
	err      int
}

func (h *reflectHandler) Kind() Kind { return h.kind }

func (h *reflectHandler) Invoke(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	in, err := h.arguments(args, kwargs)
	if err != nil {
		return nil, &argumentError{err: err}
	}
	if h.kind == Suspending {
		in = append([]reflect.Value{reflect.ValueOf(&ctx).Elem()}, in...)
	}
	out := h.fn.Call(in)
	if h.err >= 0 && !out[h.err].IsNil() {
		return nil, out[h.err].Interface().(error)
	}
	if h.result >= 0 {
		return out[h.result].Interface(), nil
	}
	return nil, nil
}

func (h *reflectHandler) arguments(args []interface{}, kwargs map[string]interface{}) ([]reflect.Value, error) {
	fixed := len(h.params)
	if h.variadic {
		fixed--
		if len(args) < fixed {
			return nil, invalidRequestf("expected at least %d arguments, got %d", fixed, len(args))
		}
	} else if len(args) != fixed {
		return nil, invalidRequestf("expected %d arguments, got %d", fixed, len(args))
	}
	if !h.kwargs && len(kwargs) > 0 {
		keys := make([]string, 0, len(kwargs))
		for k := range kwargs {
			keys = append(keys, k)
		}
		return nil, invalidRequestf("unexpected keyword arguments: %v", strings.Join(keys, ", "))
	}

	in := make([]reflect.Value, 0, len(args)+1)
	for i, arg := range args {
		var t reflect.Type
		if i < fixed {
			t = h.params[i]
		} else {
			t = h.params[fixed].Elem()
		}
		v, err := convertValue(arg, t)
		if err != nil {
			return nil, invalidRequestf("argument %d: %v", i+1, err)
		}
		in = append(in, v)
	}
	if h.kwargs {
		kw := Kwargs(kwargs)
		if kw == nil {
			kw = Kwargs{}
		}
		in = append(in, reflect.ValueOf(kw))
	}
	return in, nil
}

// convertValue turns a decoded value into a value of type t.
func convertValue(v interface{}, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Ptr, reflect.Map, reflect.Slice:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, errors.Errorf("cannot use nil as %v", t)
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		v := reflect.New(t).Elem()
		v.Set(rv)
		return v, nil
	}

	switch {
	case isNumber(rv.Kind()) && isNumber(t.Kind()):
		return convertNumber(rv, t)
	case t.Kind() == reflect.Ptr:
		elem, err := convertValue(v, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(elem)
		return p, nil
	case t.Kind() == reflect.Slice && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array):
		out := reflect.MakeSlice(t, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem, err := convertValue(rv.Index(i).Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, errors.Wrapf(err, "index %d", i)
			}
			out.Index(i).Set(elem)
		}
		return out, nil
	case t.Kind() == reflect.Map && rv.Kind() == reflect.Map:
		out := reflect.MakeMapWithSize(t, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key, err := convertValue(iter.Key().Interface(), t.Key())
			if err != nil {
				return reflect.Value{}, errors.Wrapf(err, "key %v", iter.Key())
			}
			elem, err := convertValue(iter.Value().Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, errors.Wrapf(err, "key %v", iter.Key())
			}
			out.SetMapIndex(key, elem)
		}
		return out, nil
	case t.Kind() == reflect.Struct && rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String:
		return convertStruct(rv, t)
	case t.Kind() == reflect.String && rv.Kind() == reflect.String:
		return rv.Convert(t), nil
	}
	return reflect.Value{}, errors.Errorf("cannot use %T as %v", v, t)
}

// convertStruct fills the exported fields of a t from a string keyed map,
// matching keys to field names case insensitively.
func convertStruct(m reflect.Value, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	fields := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if f := t.Field(i); f.PkgPath == "" {
			fields[strings.ToLower(f.Name)] = i
		}
	}
	iter := m.MapRange()
	for iter.Next() {
		key := iter.Key().String()
		i, ok := fields[strings.ToLower(key)]
		if !ok {
			return reflect.Value{}, errors.Errorf("%v has no field %q", t, key)
		}
		v, err := convertValue(iter.Value().Interface(), t.Field(i).Type)
		if err != nil {
			return reflect.Value{}, errors.Wrapf(err, "field %v", key)
		}
		out.Field(i).Set(v)
	}
	return out, nil
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// convertNumber converts between numeric kinds, refusing lossy conversions.
func convertNumber(rv reflect.Value, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	fail := errors.Errorf("cannot represent %v as %v", rv.Interface(), t)
	switch t.Kind() {
	case reflect.Float32, reflect.Float64:
		var f float64
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			f = rv.Float()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			f = float64(rv.Uint())
		default:
			f = float64(rv.Int())
		}
		if out.OverflowFloat(f) {
			return reflect.Value{}, fail
		}
		out.SetFloat(f)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var u uint64
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			f := rv.Float()
			if f < 0 || f != math.Trunc(f) || f > math.MaxUint64 {
				return reflect.Value{}, fail
			}
			u = uint64(f)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			u = rv.Uint()
		default:
			if rv.Int() < 0 {
				return reflect.Value{}, fail
			}
			u = uint64(rv.Int())
		}
		if out.OverflowUint(u) {
			return reflect.Value{}, fail
		}
		out.SetUint(u)
	default:
		var i int64
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			f := rv.Float()
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
				return reflect.Value{}, fail
			}
			i = int64(f)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if rv.Uint() > math.MaxInt64 {
				return reflect.Value{}, fail
			}
			i = int64(rv.Uint())
		default:
			i = rv.Int()
		}
		if out.OverflowInt(i) {
			return reflect.Value{}, fail
		}
		out.SetInt(i)
	}
	return out, nil
}

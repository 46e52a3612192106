package ipc

import (
	"context"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

func TestHandlerKind(t *testing.T) {
	tests := []struct {
		fn   interface{}
		want Kind
	}{
		{func() {}, Immediate},
		{func(a int) int { return a }, Immediate},
		{func(ctx context.Context) error { return nil }, Suspending},
		{func(ctx context.Context, a ...int) (int, error) { return 0, nil }, Suspending},
		{Func(func(args []interface{}, kwargs map[string]interface{}) (interface{}, error) { return nil, nil }), Immediate},
		{ContextFunc(func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
			return nil, nil
		}), Suspending},
		{func(args []interface{}, kwargs map[string]interface{}) (interface{}, error) { return nil, nil }, Immediate},
	}
	for i, test := range tests {
		h, err := HandlerOf(test.fn)
		if err != nil {
			t.Errorf("%d: HandlerOf(%T): %v", i, test.fn, err)
			continue
		}
		if h.Kind() != test.want {
			t.Errorf("%d: HandlerOf(%T).Kind() = %v, want %v", i, test.fn, h.Kind(), test.want)
		}
	}
}

func TestHandlerOfRejects(t *testing.T) {
	var nilFn func()
	for _, fn := range []interface{}{
		nil,
		nilFn,
		"not a function",
		func() (int, int) { return 0, 0 },
		func() (int, error, bool) { return 0, nil, false },
	} {
		if _, err := HandlerOf(fn); err == nil {
			t.Errorf("HandlerOf(%T) should fail", fn)
		}
	}
}

func TestHandlerInvoke(t *testing.T) {
	type pair struct {
		Key   string
		Value int
	}
	ctx := context.Background()
	tests := []struct {
		fn     interface{}
		args   []interface{}
		kwargs map[string]interface{}
		want   interface{}
	}{
		{func(a, b int) int { return a + b }, []interface{}{2.0, int64(3)}, nil, 5},
		{func(xs []int) int { return len(xs) }, []interface{}{[]interface{}{1, 2.0, uint(3)}}, nil, 3},
		{func(p pair) string { return p.Key }, []interface{}{map[string]interface{}{"key": "k", "value": 1.0}}, nil, "k"},
		{func(p *pair) int { return p.Value }, []interface{}{map[string]interface{}{"Value": 7}}, nil, 7},
		{func(m map[string]float64) float64 { return m["a"] }, []interface{}{map[string]interface{}{"a": 2}}, nil, 2.0},
		{func(s ...string) int { return len(s) }, []interface{}{"a", "b"}, nil, 2},
		{func(kw Kwargs) interface{} { return kw["x"] }, nil, map[string]interface{}{"x": true}, true},
		{func(kw Kwargs) int { return len(kw) }, nil, nil, 0},
		{func(v interface{}) interface{} { return v }, []interface{}{nil}, nil, nil},
		{func() error { return nil }, nil, nil, nil},
	}
	for i, test := range tests {
		h, err := HandlerOf(test.fn)
		if err != nil {
			t.Fatalf("%d: HandlerOf: %v", i, err)
		}
		got, err := h.Invoke(ctx, test.args, test.kwargs)
		if err != nil {
			t.Errorf("%d: Invoke: %v", i, err)
			continue
		}
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("%d: result (-want +got):\n%s", i, diff)
		}
	}
}

func TestHandlerInvokeErrors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		fn     interface{}
		args   []interface{}
		kwargs map[string]interface{}
	}{
		{func(a int) {}, nil, nil},
		{func(a int) {}, []interface{}{1, 2}, nil},
		{func(a int) {}, []interface{}{1.5}, nil},
		{func(a int8) {}, []interface{}{300}, nil},
		{func(a uint) {}, []interface{}{-1}, nil},
		{func(a int) {}, []interface{}{"1"}, nil},
		{func(a int) {}, []interface{}{nil}, nil},
		{func(a int) {}, []interface{}{1}, map[string]interface{}{"b": 2}},
		{func(a, b int, c ...int) {}, []interface{}{1}, nil},
		{func(p struct{ A int }) {}, []interface{}{map[string]interface{}{"B": 1}}, nil},
	}
	for i, test := range tests {
		h, err := HandlerOf(test.fn)
		if err != nil {
			t.Fatalf("%d: HandlerOf: %v", i, err)
		}
		_, err = h.Invoke(ctx, test.args, test.kwargs)
		var ire *InvalidRequestError
		if !errors.As(err, &ire) {
			t.Errorf("%d: Invoke(%v, %v): got %v, want an InvalidRequestError", i, test.args, test.kwargs, err)
		}
	}
}

func TestSuspendingHandlerGetsContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	h, err := HandlerOf(func(ctx context.Context) interface{} { return ctx.Value(key{}) })
	if err != nil {
		t.Fatal(err)
	}
	got, err := h.Invoke(ctx, nil, nil)
	if err != nil || got != "v" {
		t.Errorf("Invoke: got (%v, %v), want v", got, err)
	}
}

func TestConvertNumber(t *testing.T) {
	tests := []struct {
		v    interface{}
		t    reflect.Type
		want interface{}
		ok   bool
	}{
		{3.0, reflect.TypeOf(int(0)), 3, true},
		{int64(255), reflect.TypeOf(uint8(0)), uint8(255), true},
		{int64(256), reflect.TypeOf(uint8(0)), nil, false},
		{uint64(1) << 63, reflect.TypeOf(int64(0)), nil, false},
		{-2, reflect.TypeOf(float32(0)), float32(-2), true},
		{1e300, reflect.TypeOf(float32(0)), nil, false},
		{0.5, reflect.TypeOf(uint(0)), nil, false},
	}
	for _, test := range tests {
		got, err := convertValue(test.v, test.t)
		if (err == nil) != test.ok {
			t.Errorf("convert %v (%T) to %v: err = %v", test.v, test.v, test.t, err)
			continue
		}
		if test.ok && got.Interface() != test.want {
			t.Errorf("convert %v to %v: got %v", test.v, test.t, got.Interface())
		}
	}
}

package envelope

import (
	"testing"

	"github.com/PwzXxm/ipc-lite/codec"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
)

func TestRequestWire(t *testing.T) {
	req := Request{Args: []interface{}{2, "x"}, Kwargs: map[string]interface{}{"k": true}}
	for _, c := range []codec.Codec{codec.Gob, codec.Msgpack} {
		data, err := c.Encode(req.ToWire())
		if err != nil {
			t.Fatalf("%v: Encode failed: %v", c.Name(), err)
		}
		var v interface{}
		if err := c.Decode(data, &v); err != nil {
			t.Fatalf("%v: Decode failed: %v", c.Name(), err)
		}
		got, err := RequestFromWire(v)
		if err != nil {
			t.Fatalf("%v: RequestFromWire failed: %v", c.Name(), err)
		}
		if len(got.Args) != 2 || got.Args[1] != "x" || got.Kwargs["k"] != true {
			t.Errorf("%v: got %+v", c.Name(), got)
		}
	}
}

func TestEmptyRequest(t *testing.T) {
	got, err := RequestFromWire(Request{}.ToWire())
	if err != nil {
		t.Fatalf("Shouldn't be an error: %v", err)
	}
	if diff := cmp.Diff(Request{}, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("(-want, +got):\n%s", diff)
	}
	got, err = RequestFromWire(map[string]interface{}{})
	if err != nil || len(got.Args) != 0 || len(got.Kwargs) != 0 {
		t.Errorf("missing fields should mean empty, got %+v, %v", got, err)
	}
}

func TestMalformedRequest(t *testing.T) {
	tests := []interface{}{
		"not a map",
		[]interface{}{1},
		map[string]interface{}{"args": "x"},
		map[string]interface{}{"kwargs": []interface{}{}},
		map[string]interface{}{"args": []interface{}{}, "extra": 1},
	}
	for _, v := range tests {
		if _, err := RequestFromWire(v); !errors.Is(err, ErrMalformed) {
			t.Errorf("RequestFromWire(%#v) = %v; want ErrMalformed", v, err)
		}
	}
}

func TestResponseWire(t *testing.T) {
	tests := []struct {
		res  Response
		wire map[string]interface{}
	}{
		{Success(5), map[string]interface{}{"result": 5}},
		{Success(nil), map[string]interface{}{"result": nil}},
		{Failure(KindHandler, "bad"), map[string]interface{}{"error": "bad", "kind": "handler"}},
		{Response{Error: &Error{Message: "plain"}}, map[string]interface{}{"error": "plain"}},
	}
	for _, test := range tests {
		wire := test.res.ToWire()
		if diff := cmp.Diff(test.wire, wire); diff != "" {
			t.Errorf("ToWire (-want, +got):\n%s", diff)
		}
		got, err := ResponseFromWire(wire)
		if err != nil {
			t.Errorf("ResponseFromWire(%v) failed: %v", wire, err)
			continue
		}
		if diff := cmp.Diff(test.res, got); diff != "" {
			t.Errorf("ResponseFromWire (-want, +got):\n%s", diff)
		}
	}
}

func TestMalformedResponse(t *testing.T) {
	tests := []interface{}{
		nil,
		map[string]interface{}{},
		map[string]interface{}{"result": 1, "error": "x"},
		map[string]interface{}{"error": 3},
		map[string]interface{}{"error": "x", "kind": 1},
		map[string]interface{}{"result": 1, "kind": "handler"},
	}
	for _, v := range tests {
		if _, err := ResponseFromWire(v); !errors.Is(err, ErrMalformed) {
			t.Errorf("ResponseFromWire(%#v) = %v; want ErrMalformed", v, err)
		}
	}
}

func TestFailureMessage(t *testing.T) {
	res := Failure(KindMethodNotFound, "Method '%v' not found on node %v", "missing", "server")
	if !res.IsError() || res.Error.Error() != "Method 'missing' not found on node server" {
		t.Errorf("got %+v", res.Error)
	}
}

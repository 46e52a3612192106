package codec

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/pkg/errors"
)

func init() {
	for _, v := range []interface{}{
		[]interface{}{},
		map[string]interface{}{},
		map[string]string{},
		map[string]int{},
		map[string]float64{},
		[]string{},
		[]int{},
		[]int64{},
		[]float32{},
		[]float64{},
		[]bool{},
		[][]byte{},
		time.Time{},
		time.Duration(0),
	} {
		gob.Register(v)
	}
}

// Register makes an application type known to Gob so it can travel inside
// interface values. Both sides have to register the same type.
func Register(value interface{}) {
	gob.Register(value)
}

// box lets gob carry any registered value, including a bare nil.
type box struct {
	V interface{}
}

type gobCodec struct{}

func (gobCodec) Name() string { return "gob" }

func (gobCodec) Encode(v interface{}) (data []byte, err error) {
	// gob panics on some unsupported kinds
	defer func() {
		if p := recover(); p != nil {
			data, err = nil, errors.Errorf("gob: cannot encode %T: %v", v, p)
		}
	}()
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&box{V: v}); err != nil {
		return nil, errors.Wrapf(err, "gob: cannot encode %T", v)
	}
	return buf.Bytes(), nil
}

func (gobCodec) Decode(data []byte, v interface{}) error {
	var b box
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&b); err != nil {
		return errors.Wrap(err, "gob: cannot decode")
	}
	return assign(v, b.V)
}

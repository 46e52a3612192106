package codec

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// jsonCodec is interoperable with non-Go nodes. Numbers decode as float64
// and time.Time as its RFC 3339 string.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "json: cannot encode %T", v)
	}
	return data, nil
}

func (jsonCodec) Decode(data []byte, v interface{}) error {
	return errors.Wrap(json.Unmarshal(data, v), "json: cannot decode")
}

package pstorage

import (
	"bytes"
	"os"
	"sync"

	"github.com/PwzXxm/ipc-lite/codec"
	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
)

// FileBased writes through to a file on every Save.
type FileBased struct {
	lock     sync.Mutex
	filepath string
	codec    codec.Codec
}

// NewFileBasedPersistentStorage stores into filepath with c, nil selects
// codec.Default.
func NewFileBasedPersistentStorage(filepath string, c codec.Codec) *FileBased {
	return &FileBased{filepath: filepath, codec: codecOrDefault(c)}
}

func (f *FileBased) Save(data interface{}) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	buf, err := f.codec.Encode(data)
	if err != nil {
		return err
	}
	return atomic.WriteFile(f.filepath, bytes.NewReader(buf))
}

func (f *FileBased) Load(data interface{}) (bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return loadFile(f.filepath, f.codec, data)
}

func loadFile(filepath string, c codec.Codec, data interface{}) (bool, error) {
	buf, err := os.ReadFile(filepath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.WithStack(err)
	}
	if len(buf) == 0 {
		return false, nil
	}
	return true, c.Decode(buf, data)
}

package pstorage

import (
	"sync"

	"github.com/PwzXxm/ipc-lite/codec"
)

type MemoryBased struct {
	lock  sync.Mutex
	data  []byte
	codec codec.Codec
}

func NewMemoryBasedPersistentStorage(c codec.Codec) *MemoryBased {
	return &MemoryBased{codec: codecOrDefault(c)}
}

func (m *MemoryBased) Save(data interface{}) error {
	buf, err := m.codec.Encode(data)
	if err != nil {
		return err
	}
	m.lock.Lock()
	m.data = buf
	m.lock.Unlock()
	return nil
}

func (m *MemoryBased) Load(data interface{}) (bool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if len(m.data) == 0 {
		return false, nil
	}
	return true, m.codec.Decode(m.data, data)
}

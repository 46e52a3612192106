/*
 * Project: ipc-lite
 * ---------------------
 * Authors:
 * Minjian Chen 813534
 * Shijie Liu   813277
 * Weizhi Xu    752454
 * Wenqing Xue  813044
 * Zijun Chen   813190
 */

// Package pstorage keeps one value across restarts, encoded with a codec.
// Nodes use it to persist their call statistics.
package pstorage

import "github.com/PwzXxm/ipc-lite/codec"

type PersistentStorage interface {
	Save(data interface{}) error
	// Load decodes the stored value into data and reports whether there
	// was one.
	Load(data interface{}) (bool, error)
}

func codecOrDefault(c codec.Codec) codec.Codec {
	if c == nil {
		return codec.Default
	}
	return c
}

//go:build !linux

package coverage

import "errors"

const ShmMapEnv = "__AFL_SHM_ID"

type ShmMap struct {
	MemoryMap
}

func NewShmMap(size int) (*ShmMap, error) {
	return nil, errors.New("shared memory coverage maps are only supported on linux")
}

//go:build linux

package coverage

import (
	"fmt"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// ShmMapEnv is the variable AFL-instrumented targets read the map id from.
const ShmMapEnv = "__AFL_SHM_ID"

// ShmMap is a SysV shared memory segment shared with AFL-instrumented targets.
type ShmMap struct {
	id   int
	bits []byte
}

func NewShmMap(size int) (*ShmMap, error) {
	id, err := unix.SysvShmGet(unix.IPC_PRIVATE, size, unix.IPC_CREAT|unix.IPC_EXCL|0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared memory map: %w", err)
	}
	bits, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		_, rmErr := unix.SysvShmCtl(id, unix.IPC_RMID, nil)
		return nil, multierr.Combine(fmt.Errorf("failed to attach shared memory map: %w", err), rmErr)
	}
	return &ShmMap{id: id, bits: bits}, nil
}

func (m *ShmMap) Bytes() []byte { return m.bits }

func (m *ShmMap) Reset() {
	clear(m.bits)
}

func (m *ShmMap) Env() []string {
	return []string{
		fmt.Sprintf("%s=%d", ShmMapEnv, m.id),
		fmt.Sprintf("AFL_MAP_SIZE=%d", len(m.bits)),
	}
}

// Close detaches the segment and marks it for removal.
func (m *ShmMap) Close() error {
	detachErr := unix.SysvShmDetach(m.bits)
	_, rmErr := unix.SysvShmCtl(m.id, unix.IPC_RMID, nil)
	return multierr.Combine(detachErr, rmErr)
}

package rtdb

import (
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/jangala-dev/comsrv/errs"
)

// mapping owns one memory-mapped region backing the RTDB file. Field
// accesses go through sync/atomic on pointers into buf, giving the
// release/acquire ordering §4.E requires without a lock.
type mapping struct {
	file *os.File
	buf  []byte
}

func statSize(path string) (int64, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

func openMapping(path string, size int64, create bool) (*mapping, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, errs.Wrap(errs.Io, "openMapping", err)
	}
	if create {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, errs.Wrap(errs.Io, "openMapping", err)
		}
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errs.Wrap(errs.Io, "openMapping", err)
	}
	if st.Size() < size {
		f.Close()
		return nil, errs.New(errs.Config, "openMapping", "existing file smaller than configured layout")
	}

	buf, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errs.Wrap(errs.Io, "openMapping", err)
	}
	return &mapping{file: f, buf: buf}, nil
}

func (m *mapping) close() error {
	err := unix.Munmap(m.buf)
	cerr := m.file.Close()
	if err != nil {
		return errs.Wrap(errs.Io, "mapping.close", err)
	}
	if cerr != nil {
		return errs.Wrap(errs.Io, "mapping.close", cerr)
	}
	return nil
}

func (m *mapping) sync() error {
	if err := unix.Msync(m.buf, unix.MS_ASYNC); err != nil {
		return errs.Wrap(errs.Io, "mapping.sync", err)
	}
	return nil
}

func (m *mapping) u32(off int64) *uint32 {
	return (*uint32)(unsafe.Pointer(&m.buf[off]))
}

func (m *mapping) u64(off int64) *uint64 {
	return (*uint64)(unsafe.Pointer(&m.buf[off]))
}

func (m *mapping) loadU32(off int64) uint32     { return atomic.LoadUint32(m.u32(off)) }
func (m *mapping) storeU32(off int64, v uint32) { atomic.StoreUint32(m.u32(off), v) }
func (m *mapping) addU32(off int64, delta uint32) uint32 {
	return atomic.AddUint32(m.u32(off), delta)
}

func (m *mapping) loadU64(off int64) uint64     { return atomic.LoadUint64(m.u64(off)) }
func (m *mapping) storeU64(off int64, v uint64) { atomic.StoreUint64(m.u64(off), v) }

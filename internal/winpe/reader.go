// Package winpe reads dependency names, import tables and export tables out
// of a Portable Executable file. It wraps debug/pe for the common case and
// falls back to github.com/mewrev/pe, a more tolerant decoder, for files
// debug/pe refuses to open.
package winpe

import (
	"debug/pe"
	"errors"
	"fmt"
	"os"

	mewpe "github.com/mewrev/pe"
)

// ErrNotPE is returned when neither backend recognizes the file as a PE image.
var ErrNotPE = errors.New("winpe: not a recognizable PE file")

// section is a backend-agnostic view of a PE section header.
type section struct {
	Name           string
	VirtualAddress uint32
	VirtualSize    uint32
	Offset         uint32
	Size           uint32
}

// backend is implemented once for debug/pe and once for github.com/mewrev/pe,
// so the rest of this package never needs to know which decoder answered.
type backend interface {
	sections() []section
	dataDirectory(index int) (rva, size uint32, ok bool)
	is64() bool
	close() error
}

// Reader exposes the PE Reader contract from the dependency resolver's
// component design: canonical DLL name, dependency list, import table and
// export table.
type Reader struct {
	raw      *os.File
	backend  backend
	path     string
	fileSize int64
}

// Open opens path and selects a backend able to parse it, preferring
// debug/pe and falling back to the more tolerant github.com/mewrev/pe parser.
func Open(path string) (*Reader, error) {
	raw, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("winpe: open %s: %w", path, err)
	}

	stat, err := raw.Stat()
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("winpe: stat %s: %w", path, err)
	}

	b, err := newDebugBackend(raw)
	if err != nil {
		if mb, merr := newMewrevBackend(path); merr == nil {
			b = mb
		} else {
			raw.Close()
			return nil, fmt.Errorf("%w: %s (debug/pe: %v, mewrev/pe: %v)", ErrNotPE, path, err, merr)
		}
	}

	return &Reader{raw: raw, backend: b, path: path, fileSize: stat.Size()}, nil
}

// Close releases the underlying file handles.
func (r *Reader) Close() error {
	var err error
	if r.backend != nil {
		err = r.backend.close()
	}
	if cerr := r.raw.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Path returns the path the reader was opened from.
func (r *Reader) Path() string { return r.path }

// Size returns the file size in bytes.
func (r *Reader) Size() int64 { return r.fileSize }

// rvaToOffset converts a relative virtual address to a file offset by
// locating the section that contains it, mirroring the teacher's
// rvaToOffset helper in spirit but operating over the backend-neutral
// section list.
func (r *Reader) rvaToOffset(rva uint32) (int64, error) {
	for _, s := range r.backend.sections() {
		if rva >= s.VirtualAddress && rva < s.VirtualAddress+s.VirtualSize {
			return int64(rva-s.VirtualAddress) + int64(s.Offset), nil
		}
	}
	return 0, fmt.Errorf("winpe: RVA 0x%x is not contained in any section of %s", rva, r.path)
}

// readCString reads a NUL-terminated ASCII string at the given file offset.
func (r *Reader) readCString(offset int64) (string, error) {
	const maxLen = 1024
	buf := make([]byte, 0, 64)
	one := make([]byte, 1)
	for i := 0; i < maxLen; i++ {
		if _, err := r.raw.ReadAt(one, offset+int64(i)); err != nil {
			return "", err
		}
		if one[0] == 0 {
			return string(buf), nil
		}
		buf = append(buf, one[0])
	}
	return string(buf), nil
}

// SectionBytes returns a copy of the raw bytes backing a named section, used
// by the API-Set schema parser to read the ".apiset" section.
func (r *Reader) SectionBytes(name string) ([]byte, bool, error) {
	for _, s := range r.backend.sections() {
		if s.Name == name {
			buf := make([]byte, s.Size)
			if _, err := r.raw.ReadAt(buf, int64(s.Offset)); err != nil {
				return nil, true, err
			}
			return buf, true, nil
		}
	}
	return nil, false, nil
}

func newDebugBackend(f *os.File) (backend, error) {
	pf, err := pe.NewFile(f)
	if err != nil {
		return nil, err
	}
	return &debugBackend{file: pf}, nil
}

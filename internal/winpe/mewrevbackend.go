package winpe

import (
	"strings"

	mewpe "github.com/mewrev/pe"
)

// mewrevBackend is the fallback PE decoder, used when debug/pe rejects a
// file outright (resource-only DLLs and other oddities debug/pe is strict
// about). github.com/mewrev/pe is a laxer, from-scratch PE reader.
type mewrevBackend struct {
	file *mewpe.File
}

func newMewrevBackend(path string) (backend, error) {
	f, err := mewpe.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := f.OptHeader(); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.SectHeaders(); err != nil {
		f.Close()
		return nil, err
	}
	return &mewrevBackend{file: f}, nil
}

func (b *mewrevBackend) sections() []section {
	hdrs, err := b.file.SectHeaders()
	if err != nil {
		return nil
	}
	out := make([]section, 0, len(hdrs))
	for _, s := range hdrs {
		out = append(out, section{
			Name:           strings.TrimRight(string(s.Name[:]), "\x00"),
			VirtualAddress: s.RelAddr,
			VirtualSize:    s.VirtSize,
			Offset:         s.Offset,
			Size:           s.Size,
		})
	}
	return out
}

func (b *mewrevBackend) dataDirectory(index int) (uint32, uint32, bool) {
	opt, err := b.file.OptHeader()
	if err != nil || index < 0 || index >= len(opt.DataDirs) {
		return 0, 0, false
	}
	d := opt.DataDirs[index]
	return d.RelAddr, d.Size, d.RelAddr != 0
}

func (b *mewrevBackend) is64() bool {
	opt, err := b.file.OptHeader()
	if err != nil {
		return false
	}
	return opt.State == mewpe.OptState64
}

func (b *mewrevBackend) close() error {
	return b.file.Close()
}

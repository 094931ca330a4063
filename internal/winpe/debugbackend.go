package winpe

import (
	"debug/pe"
	"strings"
)

// debugBackend is the primary PE decoder, built on the standard library.
type debugBackend struct {
	file *pe.File
}

func (b *debugBackend) sections() []section {
	out := make([]section, 0, len(b.file.Sections))
	for _, s := range b.file.Sections {
		out = append(out, section{
			Name:           strings.TrimRight(s.Name, "\x00"),
			VirtualAddress: s.VirtualAddress,
			VirtualSize:    s.VirtualSize,
			Offset:         s.Offset,
			Size:           s.Size,
		})
	}
	return out
}

func (b *debugBackend) dataDirectory(index int) (uint32, uint32, bool) {
	switch oh := b.file.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if index < 0 || index >= len(oh.DataDirectory) {
			return 0, 0, false
		}
		d := oh.DataDirectory[index]
		return d.VirtualAddress, d.Size, d.VirtualAddress != 0
	case *pe.OptionalHeader64:
		if index < 0 || index >= len(oh.DataDirectory) {
			return 0, 0, false
		}
		d := oh.DataDirectory[index]
		return d.VirtualAddress, d.Size, d.VirtualAddress != 0
	default:
		return 0, 0, false
	}
}

func (b *debugBackend) is64() bool {
	_, ok := b.file.OptionalHeader.(*pe.OptionalHeader64)
	return ok
}

func (b *debugBackend) close() error {
	return b.file.Close()
}

package winpe

import "encoding/binary"

// exportDirectory mirrors IMAGE_EXPORT_DIRECTORY.
type exportDirectory struct {
	Characteristics       uint32
	TimeDateStamp         uint32
	MajorVersion          uint16
	MinorVersion          uint16
	Name                  uint32
	Base                  uint32
	NumberOfFunctions     uint32
	NumberOfNames         uint32
	AddressOfFunctions    uint32
	AddressOfNames        uint32
	AddressOfNameOrdinals uint32
}

// Exports returns the set of named symbols the file exports. Grounded on
// the teacher's internal/pe/export.go export-directory walk, adapted to
// read raw bytes directly rather than through debug/pe's typed optional
// header so it also serves files opened by the mewrev/pe fallback backend.
func (r *Reader) Exports() (map[string]struct{}, error) {
	rva, size, ok := r.backend.dataDirectory(dirExport)
	if !ok || size == 0 {
		return nil, nil
	}

	dirOffset, err := r.rvaToOffset(rva)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, 40) // sizeof(IMAGE_EXPORT_DIRECTORY)
	if _, err := r.raw.ReadAt(raw, dirOffset); err != nil {
		return nil, err
	}
	dir := exportDirectory{
		Characteristics:       binary.LittleEndian.Uint32(raw[0:4]),
		TimeDateStamp:         binary.LittleEndian.Uint32(raw[4:8]),
		MajorVersion:          binary.LittleEndian.Uint16(raw[8:10]),
		MinorVersion:          binary.LittleEndian.Uint16(raw[10:12]),
		Name:                  binary.LittleEndian.Uint32(raw[12:16]),
		Base:                  binary.LittleEndian.Uint32(raw[16:20]),
		NumberOfFunctions:     binary.LittleEndian.Uint32(raw[20:24]),
		NumberOfNames:         binary.LittleEndian.Uint32(raw[24:28]),
		AddressOfFunctions:    binary.LittleEndian.Uint32(raw[28:32]),
		AddressOfNames:        binary.LittleEndian.Uint32(raw[32:36]),
		AddressOfNameOrdinals: binary.LittleEndian.Uint32(raw[36:40]),
	}

	if dir.NumberOfNames == 0 {
		return nil, nil
	}

	namePointersOffset, err := r.rvaToOffset(dir.AddressOfNames)
	if err != nil {
		return nil, err
	}

	names := make(map[string]struct{}, dir.NumberOfNames)
	pbuf := make([]byte, 4)
	for i := uint32(0); i < dir.NumberOfNames; i++ {
		if _, err := r.raw.ReadAt(pbuf, namePointersOffset+int64(i)*4); err != nil {
			continue
		}
		nameRVA := binary.LittleEndian.Uint32(pbuf)
		nameOffset, err := r.rvaToOffset(nameRVA)
		if err != nil {
			continue
		}
		name, err := r.readCString(nameOffset)
		if err != nil || name == "" {
			continue
		}
		names[name] = struct{}{}
	}
	return names, nil
}

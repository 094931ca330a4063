package winpe

import (
	"encoding/binary"
	"fmt"
)

// OrdinalSentinel is the symbol name recorded for an import made by ordinal
// rather than by name. Per the resolver's contract such imports are always
// considered satisfied — the cross-module symbol check special-cases it.
const OrdinalSentinel = ""

func (r *Reader) importDescriptors() ([]importDescriptor, error) {
	rva, size, ok := r.backend.dataDirectory(dirImport)
	if !ok || size == 0 {
		return nil, nil
	}
	offset, err := r.rvaToOffset(rva)
	if err != nil {
		return nil, err
	}

	var out []importDescriptor
	buf := make([]byte, importDescriptorSize)
	for {
		if _, err := r.raw.ReadAt(buf, offset); err != nil {
			break
		}
		d := importDescriptor{
			OriginalFirstThunk: binary.LittleEndian.Uint32(buf[0:4]),
			TimeDateStamp:      binary.LittleEndian.Uint32(buf[4:8]),
			ForwarderChain:     binary.LittleEndian.Uint32(buf[8:12]),
			Name:               binary.LittleEndian.Uint32(buf[12:16]),
			FirstThunk:         binary.LittleEndian.Uint32(buf[16:20]),
		}
		if d.OriginalFirstThunk == 0 && d.TimeDateStamp == 0 && d.ForwarderChain == 0 && d.Name == 0 && d.FirstThunk == 0 {
			break
		}
		out = append(out, d)
		offset += importDescriptorSize
	}
	return out, nil
}

// Dependencies returns the ordered list of DLL names named by the import
// table, duplicates preserved exactly as the descriptors appear.
func (r *Reader) Dependencies() ([]string, error) {
	descriptors, err := r.importDescriptors()
	if err != nil {
		return nil, err
	}
	deps := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		if d.Name == 0 {
			continue
		}
		nameOffset, err := r.rvaToOffset(d.Name)
		if err != nil {
			continue
		}
		name, err := r.readCString(nameOffset)
		if err != nil || name == "" {
			continue
		}
		deps = append(deps, name)
	}
	return deps, nil
}

// Imports returns, for each exporting DLL named in the import table, the set
// of symbols imported from it. Symbols imported by ordinal are represented
// by OrdinalSentinel ("") — present if the exporter exists, never checked
// against its export set.
func (r *Reader) Imports() (map[string]map[string]struct{}, error) {
	descriptors, err := r.importDescriptors()
	if err != nil {
		return nil, err
	}

	thunkSize := int64(4)
	if r.backend.is64() {
		thunkSize = 8
	}

	out := make(map[string]map[string]struct{})
	for _, d := range descriptors {
		if d.Name == 0 {
			continue
		}
		nameOffset, err := r.rvaToOffset(d.Name)
		if err != nil {
			continue
		}
		dllName, err := r.readCString(nameOffset)
		if err != nil || dllName == "" {
			continue
		}

		thunkRVA := d.OriginalFirstThunk
		if thunkRVA == 0 {
			thunkRVA = d.FirstThunk
		}
		if thunkRVA == 0 {
			out[dllName] = map[string]struct{}{}
			continue
		}
		thunkOffset, err := r.rvaToOffset(thunkRVA)
		if err != nil {
			continue
		}

		symbols := out[dllName]
		if symbols == nil {
			symbols = make(map[string]struct{})
			out[dllName] = symbols
		}

		buf := make([]byte, thunkSize)
		for off := thunkOffset; ; off += thunkSize {
			if _, err := r.raw.ReadAt(buf, off); err != nil {
				break
			}
			var raw uint64
			if thunkSize == 4 {
				raw = uint64(binary.LittleEndian.Uint32(buf))
			} else {
				raw = binary.LittleEndian.Uint64(buf)
			}
			if raw == 0 {
				break
			}

			ordinalBit := uint64(1) << 63
			if thunkSize == 4 {
				ordinalBit = uint64(1) << 31
			}
			if raw&ordinalBit != 0 {
				symbols[OrdinalSentinel] = struct{}{}
				continue
			}

			ibnOffset, err := r.rvaToOffset(uint32(raw))
			if err != nil {
				continue
			}
			// IMAGE_IMPORT_BY_NAME: uint16 Hint, then a NUL-terminated name.
			name, err := r.readCString(ibnOffset + 2)
			if err != nil || name == "" {
				continue
			}
			symbols[name] = struct{}{}
		}
	}
	return out, nil
}

// errNoDLLName is returned by DLLName when the file carries no export
// directory to claim a canonical name from.
var errNoDLLName = fmt.Errorf("winpe: no export directory name")

// DLLName returns the canonical module name as claimed by the file's own
// export directory, if present.
func (r *Reader) DLLName() (string, error) {
	rva, size, ok := r.backend.dataDirectory(dirExport)
	if !ok || size == 0 {
		return "", errNoDLLName
	}
	dirOffset, err := r.rvaToOffset(rva)
	if err != nil {
		return "", err
	}
	// The Name field is the 4th uint32 in IMAGE_EXPORT_DIRECTORY (offset 12).
	buf := make([]byte, 4)
	if _, err := r.raw.ReadAt(buf, dirOffset+12); err != nil {
		return "", err
	}
	nameRVA := binary.LittleEndian.Uint32(buf)
	if nameRVA == 0 {
		return "", errNoDLLName
	}
	nameOffset, err := r.rvaToOffset(nameRVA)
	if err != nil {
		return "", err
	}
	return r.readCString(nameOffset)
}

// IsErrNoDLLName reports whether err is the "no export directory" sentinel.
func IsErrNoDLLName(err error) bool { return err == errNoDLLName }

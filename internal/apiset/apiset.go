// Package apiset decodes the Windows 10 API Set schema (the ".apiset"
// section of apisetschema.dll) into a map from virtual "api-ms-win-*" /
// "ext-ms-*" contract names to the ordered list of real DLLs that host them.
//
// There is no third-party Go package for this format; it is undocumented
// by Microsoft and has historically only ever been decoded by hand (the
// Rust original this tool is modeled on does the same, against a vendored
// copy of the schema reverse-engineered by the PE research community). The
// struct layout below matches the Windows 10 ApiSetSchema (version 6).
package apiset

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"
)

// Map is the decoded schema: lowercased virtual name (without the trailing
// ".dll") to the ordered list of host DLL names that may answer for it.
type Map map[string][]string

// schemaVersion6 is the namespace layout introduced in Windows 10. Earlier
// Windows 7/8 layouts are not decoded; apisetschema.dll on those releases
// predates the virtual-namespace model this tool targets.
const schemaVersion6 = 6

const (
	namespaceHeaderSize = 24 // Version, Size, Flags, Count, EntryOffset, HashOffset; the trailing HashFactor is not read
	namespaceEntrySize  = 24
	valueEntrySize      = 20
)

// Parse decodes raw into a Map. raw is the ".apiset" section's bytes as
// found in apisetschema.dll, exactly as returned by winpe.Reader.SectionBytes.
func Parse(raw []byte) (Map, error) {
	if len(raw) < namespaceHeaderSize {
		return nil, fmt.Errorf("apiset: section too small (%d bytes)", len(raw))
	}

	version := binary.LittleEndian.Uint32(raw[0:4])
	if version != schemaVersion6 {
		return nil, fmt.Errorf("apiset: unsupported schema version %d (only version %d is decoded)", version, schemaVersion6)
	}

	count := binary.LittleEndian.Uint32(raw[12:16])
	entryOffset := binary.LittleEndian.Uint32(raw[16:20])

	out := make(Map, count)
	for i := uint32(0); i < count; i++ {
		entryStart := int64(entryOffset) + int64(i)*namespaceEntrySize
		entry, err := readBytes(raw, entryStart, namespaceEntrySize)
		if err != nil {
			return nil, fmt.Errorf("apiset: entry %d: %w", i, err)
		}

		nameOffset := binary.LittleEndian.Uint32(entry[4:8])
		nameLength := binary.LittleEndian.Uint32(entry[8:12])
		valueOffset := binary.LittleEndian.Uint32(entry[16:20])
		valueCount := binary.LittleEndian.Uint32(entry[20:24])

		name, err := readUTF16(raw, nameOffset, nameLength)
		if err != nil {
			return nil, fmt.Errorf("apiset: entry %d name: %w", i, err)
		}
		name = normalizeContractName(name)

		hosts := make([]string, 0, valueCount)
		for v := uint32(0); v < valueCount; v++ {
			valStart := int64(valueOffset) + int64(v)*valueEntrySize
			val, err := readBytes(raw, valStart, valueEntrySize)
			if err != nil {
				return nil, fmt.Errorf("apiset: entry %d value %d: %w", i, v, err)
			}
			hostOffset := binary.LittleEndian.Uint32(val[12:16])
			hostLength := binary.LittleEndian.Uint32(val[16:20])
			if hostLength == 0 {
				// An empty host name is the schema's own "no redirection" marker.
				continue
			}
			host, err := readUTF16(raw, hostOffset, hostLength)
			if err != nil {
				return nil, fmt.Errorf("apiset: entry %d value %d host: %w", i, v, err)
			}
			hosts = append(hosts, host)
		}

		out[name] = hosts
	}

	return out, nil
}

// normalizeContractName lowercases a virtual DLL name and strips a trailing
// ".dll" so lookups can key on the same bare form the resolver's module
// names already use.
func normalizeContractName(name string) string {
	name = strings.ToLower(name)
	name = strings.TrimSuffix(name, ".dll")
	return name
}

func readBytes(raw []byte, offset int64, size int) ([]byte, error) {
	if offset < 0 || int(offset)+size > len(raw) {
		return nil, fmt.Errorf("out of range at offset %d (size %d, section %d bytes)", offset, size, len(raw))
	}
	return raw[offset : int(offset)+size], nil
}

// readUTF16 decodes a UTF-16LE string of byteLength bytes starting at
// byteOffset within raw. Namespace and value name lengths in the schema are
// always given in bytes, not code units.
func readUTF16(raw []byte, byteOffset, byteLength uint32) (string, error) {
	buf, err := readBytes(raw, int64(byteOffset), int(byteLength))
	if err != nil {
		return "", err
	}
	units := make([]uint16, len(buf)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(buf[i*2 : i*2+2])
	}
	return string(utf16.Decode(units)), nil
}

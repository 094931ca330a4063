// Package testpe builds minimal, synthetic 32-bit PE images in memory for
// exercising internal/winpe and internal/resolve without committing real
// Windows binaries to the repository.
package testpe

import (
	"bytes"
	"encoding/binary"
)

// Import describes one imported DLL and the symbols pulled from it.
type Import struct {
	DLL      string
	Names    []string // imported by name
	Ordinals []uint16 // imported by ordinal
}

// Options describes the PE image to build.
type Options struct {
	// DLLName, if non-empty, is written as the export directory's own name
	// (IMAGE_EXPORT_DIRECTORY.Name) — the canonical name a DLL claims.
	DLLName string
	Exports []string
	Imports []Import
}

const (
	sectionRVA   = 0x1000
	fileAlign    = 0x200
	dosStubSize  = 64
	coffHdrSize  = 20
	optHdrSize32 = 224
	sectHdrSize  = 40
)

// Build returns the raw bytes of a minimal, valid 32-bit PE image satisfying
// the given Options.
func Build(opts Options) []byte {
	var blob bytes.Buffer // section content, RVA = sectionRVA + blob offset so far

	var exportDirRVA, exportDirSize uint32
	if opts.DLLName != "" || len(opts.Exports) > 0 {
		exportDirRVA, exportDirSize = writeExportDirectory(&blob, opts.DLLName, opts.Exports)
	}

	var importDirRVA, importDirSize uint32
	if len(opts.Imports) > 0 {
		importDirRVA, importDirSize = writeImportDirectory(&blob, opts.Imports)
	}

	sectionData := blob.Bytes()
	headersSize := dosStubSize + 4 + coffHdrSize + optHdrSize32 + sectHdrSize
	sectionFileOffset := align(uint32(headersSize), fileAlign)

	var out bytes.Buffer
	writeDOSHeader(&out, uint32(dosStubSize))
	out.Write([]byte("PE\x00\x00"))
	writeCOFFHeader(&out, 1, uint16(optHdrSize32))
	writeOptionalHeader32(&out, sectionFileOffset, uint32(len(sectionData)), exportDirRVA, exportDirSize, importDirRVA, importDirSize)
	writeSectionHeader(&out, ".rdata", sectionRVA, uint32(len(sectionData)), sectionFileOffset, align(uint32(len(sectionData)), fileAlign))

	// Pad up to the section's file offset, then place its raw data.
	out.Write(make([]byte, int(sectionFileOffset)-out.Len()))
	out.Write(sectionData)
	// Pad the section to its aligned raw size.
	rawSize := align(uint32(len(sectionData)), fileAlign)
	if pad := int(rawSize) - len(sectionData); pad > 0 {
		out.Write(make([]byte, pad))
	}

	return out.Bytes()
}

func align(v, to uint32) uint32 {
	if v%to == 0 {
		return v
	}
	return (v/to + 1) * to
}

func writeDOSHeader(out *bytes.Buffer, lfanew uint32) {
	hdr := make([]byte, dosStubSize)
	hdr[0], hdr[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(hdr[0x3c:0x40], lfanew)
	out.Write(hdr)
}

func writeCOFFHeader(out *bytes.Buffer, numSections uint16, sizeOfOptionalHeader uint16) {
	var hdr [coffHdrSize]byte
	binary.LittleEndian.PutUint16(hdr[0:2], 0x14c) // IMAGE_FILE_MACHINE_I386
	binary.LittleEndian.PutUint16(hdr[2:4], numSections)
	binary.LittleEndian.PutUint32(hdr[4:8], 0)  // TimeDateStamp
	binary.LittleEndian.PutUint32(hdr[8:12], 0) // PointerToSymbolTable
	binary.LittleEndian.PutUint32(hdr[12:16], 0) // NumberOfSymbols
	binary.LittleEndian.PutUint16(hdr[16:18], sizeOfOptionalHeader)
	binary.LittleEndian.PutUint16(hdr[18:20], 0x0102) // EXECUTABLE_IMAGE | 32BIT_MACHINE
	out.Write(hdr[:])
}

func writeOptionalHeader32(out *bytes.Buffer, sizeOfHeaders, sizeOfImage, exportRVA, exportSize, importRVA, importSize uint32) {
	hdr := make([]byte, optHdrSize32)
	binary.LittleEndian.PutUint16(hdr[0:2], 0x10b) // PE32 magic
	hdr[2] = 14                                    // MajorLinkerVersion
	hdr[3] = 0
	binary.LittleEndian.PutUint32(hdr[4:8], 0x1000)   // SizeOfCode
	binary.LittleEndian.PutUint32(hdr[8:12], 0)       // SizeOfInitializedData
	binary.LittleEndian.PutUint32(hdr[12:16], 0)      // SizeOfUninitializedData
	binary.LittleEndian.PutUint32(hdr[16:20], 0x1000) // AddressOfEntryPoint
	binary.LittleEndian.PutUint32(hdr[20:24], 0x1000) // BaseOfCode
	binary.LittleEndian.PutUint32(hdr[24:28], 0x1000) // BaseOfData
	binary.LittleEndian.PutUint32(hdr[28:32], 0x00400000) // ImageBase
	binary.LittleEndian.PutUint32(hdr[32:36], 0x1000)     // SectionAlignment
	binary.LittleEndian.PutUint32(hdr[36:40], fileAlign)  // FileAlignment
	binary.LittleEndian.PutUint16(hdr[40:42], 6)          // MajorOperatingSystemVersion
	binary.LittleEndian.PutUint16(hdr[42:44], 0)
	binary.LittleEndian.PutUint16(hdr[44:46], 0) // MajorImageVersion
	binary.LittleEndian.PutUint16(hdr[46:48], 0)
	binary.LittleEndian.PutUint16(hdr[48:50], 6) // MajorSubsystemVersion
	binary.LittleEndian.PutUint16(hdr[50:52], 0)
	binary.LittleEndian.PutUint32(hdr[52:56], 0)            // Win32VersionValue
	binary.LittleEndian.PutUint32(hdr[56:60], sizeOfImage+sectionRVA) // SizeOfImage
	binary.LittleEndian.PutUint32(hdr[60:64], sizeOfHeaders) // SizeOfHeaders
	binary.LittleEndian.PutUint32(hdr[64:68], 0)             // CheckSum
	binary.LittleEndian.PutUint16(hdr[68:70], 3)             // Subsystem: WINDOWS_CUI
	binary.LittleEndian.PutUint16(hdr[70:72], 0)             // DllCharacteristics
	binary.LittleEndian.PutUint32(hdr[72:76], 0x100000)      // SizeOfStackReserve
	binary.LittleEndian.PutUint32(hdr[76:80], 0x1000)        // SizeOfStackCommit
	binary.LittleEndian.PutUint32(hdr[80:84], 0x100000)      // SizeOfHeapReserve
	binary.LittleEndian.PutUint32(hdr[84:88], 0x1000)        // SizeOfHeapCommit
	binary.LittleEndian.PutUint32(hdr[88:92], 0)             // LoaderFlags
	binary.LittleEndian.PutUint32(hdr[92:96], 16)            // NumberOfRvaAndSizes

	// DataDirectory[0] = export, DataDirectory[1] = import.
	binary.LittleEndian.PutUint32(hdr[96:100], exportRVA)
	binary.LittleEndian.PutUint32(hdr[100:104], exportSize)
	binary.LittleEndian.PutUint32(hdr[104:108], importRVA)
	binary.LittleEndian.PutUint32(hdr[108:112], importSize)
	// Remaining 14 data directories stay zeroed.

	out.Write(hdr)
}

func writeSectionHeader(out *bytes.Buffer, name string, rva, virtSize, fileOffset, rawSize uint32) {
	var hdr [sectHdrSize]byte
	copy(hdr[0:8], name)
	binary.LittleEndian.PutUint32(hdr[8:12], virtSize)
	binary.LittleEndian.PutUint32(hdr[12:16], rva)
	binary.LittleEndian.PutUint32(hdr[16:20], rawSize)
	binary.LittleEndian.PutUint32(hdr[20:24], fileOffset)
	binary.LittleEndian.PutUint32(hdr[24:28], 0) // PointerToRelocations
	binary.LittleEndian.PutUint32(hdr[28:32], 0) // PointerToLineNumbers
	binary.LittleEndian.PutUint16(hdr[32:34], 0)
	binary.LittleEndian.PutUint16(hdr[34:36], 0)
	binary.LittleEndian.PutUint32(hdr[36:40], 0xC0000040) // INITIALIZED_DATA | READ | WRITE
	out.Write(hdr[:])
}

func cstring(s string) []byte {
	return append([]byte(s), 0)
}

// writeExportDirectory appends an IMAGE_EXPORT_DIRECTORY plus its name
// string and name-pointer table to blob, returning its RVA and size.
func writeExportDirectory(blob *bytes.Buffer, dllName string, exports []string) (rva, size uint32) {
	var nameRVA uint32
	if dllName != "" {
		nameRVA = sectionRVA + uint32(blob.Len())
		blob.Write(cstring(dllName))
	}

	nameStringRVAs := make([]uint32, len(exports))
	for i, e := range exports {
		nameStringRVAs[i] = sectionRVA + uint32(blob.Len())
		blob.Write(cstring(e))
	}

	// The name-pointer table follows the name strings directly, unpadded.
	addressOfNames := uint32(0)
	if len(exports) > 0 {
		addressOfNames = sectionRVA + uint32(blob.Len())
		for _, r := range nameStringRVAs {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], r)
			blob.Write(b[:])
		}
	}

	dirRVA := sectionRVA + uint32(blob.Len())
	var dir [40]byte
	binary.LittleEndian.PutUint32(dir[12:16], nameRVA)
	binary.LittleEndian.PutUint32(dir[20:24], uint32(len(exports))) // NumberOfFunctions (unused downstream)
	binary.LittleEndian.PutUint32(dir[24:28], uint32(len(exports))) // NumberOfNames
	binary.LittleEndian.PutUint32(dir[32:36], addressOfNames)       // AddressOfNames
	blob.Write(dir[:])

	return dirRVA, 40
}

// writeImportDirectory appends one IMAGE_IMPORT_DESCRIPTOR per entry in
// imports (plus a null terminator descriptor), each pointing at its own
// Import Name Table built from named and ordinal imports.
func writeImportDirectory(blob *bytes.Buffer, imports []Import) (rva, size uint32) {
	type built struct {
		nameRVA  uint32
		thunkRVA uint32
	}
	entries := make([]built, len(imports))

	for i, imp := range imports {
		thunks := make([]uint32, 0, len(imp.Names)+len(imp.Ordinals))
		for _, name := range imp.Names {
			ibnRVA := sectionRVA + uint32(blob.Len())
			var hint [2]byte // Hint = 0
			blob.Write(hint[:])
			blob.Write(cstring(name))
			thunks = append(thunks, ibnRVA)
		}
		for _, ord := range imp.Ordinals {
			thunks = append(thunks, 0x80000000|uint32(ord))
		}

		thunkRVA := sectionRVA + uint32(blob.Len())
		for _, t := range thunks {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], t)
			blob.Write(b[:])
		}
		var terminator [4]byte
		blob.Write(terminator[:])

		nameRVA := sectionRVA + uint32(blob.Len())
		blob.Write(cstring(imp.DLL))

		entries[i] = built{nameRVA: nameRVA, thunkRVA: thunkRVA}
	}

	dirRVA := sectionRVA + uint32(blob.Len())
	for _, e := range entries {
		var d [20]byte
		binary.LittleEndian.PutUint32(d[0:4], e.thunkRVA) // OriginalFirstThunk
		binary.LittleEndian.PutUint32(d[12:16], e.nameRVA)
		binary.LittleEndian.PutUint32(d[16:20], e.thunkRVA) // FirstThunk
		blob.Write(d[:])
	}
	var terminator [20]byte
	blob.Write(terminator[:])

	return dirRVA, uint32(len(entries)+1) * 20
}

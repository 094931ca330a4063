//go:build windows

package resolve

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modntdll                   = windows.NewLazySystemDLL("ntdll.dll")
	procNtOpenDirectoryObject  = modntdll.NewProc("NtOpenDirectoryObject")
	procNtQueryDirectoryObject = modntdll.NewProc("NtQueryDirectoryObject")
)

// objectDirectoryInformation mirrors OBJECT_DIRECTORY_INFORMATION: one
// entry returned by NtQueryDirectoryObject, naming an object and its type
// ("Section" for a KnownDLLs mapping, "SymbolicLink" for others present in
// the same directory).
type objectDirectoryInformation struct {
	Name     windows.NTUnicodeString
	TypeName windows.NTUnicodeString
}

const directoryQuery = 0x0001

// enumerateKnownDLLs opens the \KnownDlls NT object-manager directory and
// returns the names of every Section-typed entry within it — the set of
// DLLs the loader maps copy-on-write at process start rather than looking
// up on disk. Grounded on original_source/src/knowndlls.rs's
// get_known_dlls, adapted from winapi/ntapi raw bindings to
// golang.org/x/sys/windows.
func enumerateKnownDLLs() ([]string, error) {
	name, err := windows.NewNTUnicodeString(`\KnownDlls`)
	if err != nil {
		return nil, err
	}

	oa := windows.OBJECT_ATTRIBUTES{
		Length:     uint32(unsafe.Sizeof(windows.OBJECT_ATTRIBUTES{})),
		ObjectName: name,
	}

	var dirHandle windows.Handle
	status, _, _ := procNtOpenDirectoryObject.Call(
		uintptr(unsafe.Pointer(&dirHandle)),
		uintptr(directoryQuery),
		uintptr(unsafe.Pointer(&oa)),
	)
	if windows.NTStatus(status) != windows.STATUS_SUCCESS {
		return nil, fmt.Errorf("resolve: NtOpenDirectoryObject(\\KnownDlls) failed: 0x%x", status)
	}
	defer windows.CloseHandle(dirHandle)

	var names []string
	bufferSize := uint32(0x1000)
	var context uint32
	firstTime := true

	for {
		buffer := make([]byte, bufferSize)
		var returnLength uint32

		status, _, _ := procNtQueryDirectoryObject.Call(
			uintptr(dirHandle),
			uintptr(unsafe.Pointer(&buffer[0])),
			uintptr(bufferSize),
			0, // ReturnSingleEntry = FALSE
			boolToUintptr(firstTime),
			uintptr(unsafe.Pointer(&context)),
			uintptr(unsafe.Pointer(&returnLength)),
		)
		st := windows.NTStatus(status)

		if st == windows.STATUS_MORE_ENTRIES {
			entry := (*objectDirectoryInformation)(unsafe.Pointer(&buffer[0]))
			if entry.Name.Buffer == nil {
				// No single entry fit; grow the buffer and retry this round.
				bufferSize *= 2
				continue
			}
		} else if st != windows.STATUS_SUCCESS {
			return names, fmt.Errorf("resolve: NtQueryDirectoryObject failed: 0x%x", status)
		}

		for i := 0; ; i++ {
			offset := uintptr(i) * unsafe.Sizeof(objectDirectoryInformation{})
			if offset+unsafe.Sizeof(objectDirectoryInformation{}) > uintptr(len(buffer)) {
				break
			}
			entry := (*objectDirectoryInformation)(unsafe.Pointer(&buffer[offset]))
			if entry.Name.Buffer == nil {
				break
			}
			if entry.TypeName.String() == "Section" {
				names = append(names, entry.Name.String())
			}
		}

		firstTime = false
		if st != windows.STATUS_MORE_ENTRIES {
			break
		}
	}

	return names, nil
}

func boolToUintptr(b bool) uintptr {
	if b {
		return 1
	}
	return 0
}

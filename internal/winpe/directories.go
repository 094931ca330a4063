package winpe

// Data directory indices, as laid out in the PE Optional Header — the same
// ordering both backends expose via dataDirectory(index).
const (
	dirExport = 0
	dirImport = 1
)

const importDescriptorSize = 20 // sizeof(IMAGE_IMPORT_DESCRIPTOR)

// importDescriptor mirrors IMAGE_IMPORT_DESCRIPTOR.
type importDescriptor struct {
	OriginalFirstThunk uint32
	TimeDateStamp      uint32
	ForwarderChain     uint32
	Name               uint32
	FirstThunk         uint32
}

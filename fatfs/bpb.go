// Package fatfs implements a read-only reader for a FAT16 partition: BPB
// parsing, FAT chain walking, flat 8.3 path resolution in the root
// directory, and an in-core inode cache.
package fatfs

// BytesPerSector is the sector size this reader assumes throughout:
// FAT16 media is built exclusively around 512-byte sectors in
// practice. The BPB also carries it as a field, which ParseBPB decodes
// but does not check against this constant.
const BytesPerSector = 512

// bootSignatureOffset is the offset of the two-byte 0xAA55 boot signature
// within the BPB sector.
const bootSignatureOffset = 510

const bootSignature = 0xAA55

// BPB is the BIOS Parameter Block describing a FAT16 partition's layout.
type BPB struct {
	BytesPerSector       uint16
	SectorsPerCluster    uint8
	ReservedSectorCount  uint16
	FATCount             uint8
	RootEntryCount       uint16
	SectorsPerFAT        uint16
}

// ParseBPB validates and decodes a raw 512-byte BPB sector. It panics
// with a diagnostic if the two-byte boot signature at the end of the
// sector is invalid.
func ParseBPB(sector []byte) BPB {
	if len(sector) < BytesPerSector {
		panic("fatfs: BPB sector shorter than 512 bytes")
	}
	sig := le16(sector[bootSignatureOffset:])
	if sig != bootSignature {
		panic("fatfs: invalid FAT16 boot signature")
	}
	return BPB{
		BytesPerSector:      le16(sector[11:]),
		SectorsPerCluster:   sector[13],
		ReservedSectorCount: le16(sector[14:]),
		FATCount:            sector[16],
		RootEntryCount:      le16(sector[17:]),
		SectorsPerFAT:       le16(sector[22:]),
	}
}

func le16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

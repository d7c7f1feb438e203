package fatfs

import "fmt"

// ImageFile is one file to place in a freshly built FAT16 image's root
// directory: an 8.3 name (e.g. "LOGIN.BIN") and its raw contents.
type ImageFile struct {
	Name string
	Data []byte
}

// BuildImage assembles a complete, read-only FAT16 disk image (MBR, BPB,
// one FAT copy, root directory, data clusters) holding exactly the given
// files, with sectorsPerCluster sectors per cluster. It is the host-side counterpart
// to Mount/ParseBPB: the bytes it produces are exactly what FileDisk +
// Mount expects to read back. The root directory is flat and 8.3-only,
// so there is no subdirectory walk to perform.
func BuildImage(files []ImageFile, sectorsPerCluster int) ([]byte, error) {
	if sectorsPerCluster <= 0 {
		sectorsPerCluster = 4
	}
	clusterBytes := sectorsPerCluster * BytesPerSector

	entries := make([]DirEntry, len(files))
	chains := make([][]uint16, len(files))
	nextCluster := uint16(2) // clusters 0 and 1 are reserved
	for i, f := range files {
		name, ext, ok := splitPath(f.Name)
		if !ok {
			return nil, fmt.Errorf("fatfs: %q is not a bare 8.3 name", f.Name)
		}
		nclusters := (len(f.Data) + clusterBytes - 1) / clusterBytes
		if nclusters == 0 {
			nclusters = 1
		}
		chain := make([]uint16, nclusters)
		for c := range chain {
			chain[c] = nextCluster
			nextCluster++
		}
		chains[i] = chain
		entries[i] = DirEntry{
			Name:         name,
			Ext:          ext,
			FirstCluster: chain[0],
			FileSize:     uint32(len(f.Data)),
		}
	}
	totalDataClusters := int(nextCluster) - 2

	const partBase = 1 // sector 1, right after the MBR
	const reservedSectorCount = 1
	const fatCount = 1

	fatEntries := totalDataClusters + 2
	sectorsPerFAT := (fatEntries*2 + BytesPerSector - 1) / BytesPerSector
	if sectorsPerFAT == 0 {
		sectorsPerFAT = 1
	}

	rootEntryCount := len(files)
	if rootEntryCount < 16 {
		rootEntryCount = 16
	}
	rootSectors := (rootEntryCount*direntSize + BytesPerSector - 1) / BytesPerSector

	fatStartLBA := partBase + reservedSectorCount
	rootStartLBA := fatStartLBA + fatCount*sectorsPerFAT
	dataStartLBA := rootStartLBA + rootSectors
	totalSectors := dataStartLBA + totalDataClusters*sectorsPerCluster

	img := make([]byte, totalSectors*BytesPerSector)

	putLE32(img[0x1BE+8:], uint32(partBase))

	bpb := img[partBase*BytesPerSector : (partBase+1)*BytesPerSector]
	putLE16(bpb[11:], BytesPerSector)
	bpb[13] = byte(sectorsPerCluster)
	putLE16(bpb[14:], reservedSectorCount)
	bpb[16] = fatCount
	putLE16(bpb[17:], uint16(rootEntryCount))
	putLE16(bpb[22:], uint16(sectorsPerFAT))
	putLE16(bpb[bootSignatureOffset:], bootSignature)

	fatRegion := img[fatStartLBA*BytesPerSector : (fatStartLBA+fatCount*sectorsPerFAT)*BytesPerSector]
	putLE16(fatRegion[0:], clusterReserved) // cluster 0 slot
	putLE16(fatRegion[2:], clusterReserved) // cluster 1 slot
	for _, chain := range chains {
		for i, cl := range chain {
			var next uint16
			if i+1 < len(chain) {
				next = chain[i+1]
			} else {
				next = endOfData
			}
			putLE16(fatRegion[int(cl)*2:], next)
		}
	}

	rootRegion := img[rootStartLBA*BytesPerSector : (rootStartLBA+rootSectors)*BytesPerSector]
	for i, e := range entries {
		raw := rootRegion[i*direntSize : (i+1)*direntSize]
		copy(raw[0:8], e.Name[:])
		copy(raw[8:11], e.Ext[:])
		putLE16(raw[26:], e.FirstCluster)
		putLE32(raw[28:], e.FileSize)
	}

	for i, f := range files {
		chain := chains[i]
		data := f.Data
		for _, cl := range chain {
			start := (dataStartLBA + (int(cl)-2)*sectorsPerCluster) * BytesPerSector
			n := clusterBytes
			if n > len(data) {
				n = len(data)
			}
			copy(img[start:start+n], data[:n])
			data = data[n:]
		}
	}

	return img, nil
}

package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/coordinate"
)

type Reader struct {
	file     *os.File
	filePath string
	header   Header
	dict     []DictEntry
	postBase int64
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := readSegment(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("segment %s: %w", path, err)
	}
	r.filePath = path
	return r, nil
}

func readSegment(f *os.File) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", magic)
	}
	header := Header{
		Magic:       magic,
		Version:     binary.LittleEndian.Uint32(headerBytes[4:8]),
		KeyCount:    binary.LittleEndian.Uint32(headerBytes[8:12]),
		RecordCount: binary.LittleEndian.Uint32(headerBytes[12:16]),
		CreatedAt:   int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		DictOffset:  int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		DictSize:    int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		PostOffset:  int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
		PostSize:    int64(binary.LittleEndian.Uint64(headerBytes[48:56])),
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}

	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.DictOffset+header.DictSize); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	if sum := binary.LittleEndian.Uint32(footer[0:4]); sum != crc32.ChecksumIEEE(dictBytes) {
		return nil, fmt.Errorf("dictionary checksum mismatch")
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	return &Reader{
		file:     f,
		header:   header,
		dict:     dict,
		postBase: header.PostOffset,
	}, nil
}

// Lookup returns the records stored for ga, or nil when the segment does not
// know the artifact.
func (r *Reader) Lookup(ga coordinate.GroupArtifact) ([]Record, error) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].key().Compare(ga) >= 0
	})
	if idx >= len(r.dict) || r.dict[idx].key() != ga {
		return nil, nil
	}
	return r.read(r.dict[idx])
}

func (r *Reader) read(entry DictEntry) ([]Record, error) {
	data := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(data, r.postBase+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing records: %w", err)
	}
	return records, nil
}

// Keys lists the artifacts in the segment in key order.
func (r *Reader) Keys() []coordinate.GroupArtifact {
	keys := make([]coordinate.GroupArtifact, len(r.dict))
	for i, d := range r.dict {
		keys[i] = d.key()
	}
	return keys
}

// Entries reads every entry back, in key order.
func (r *Reader) Entries() ([]Entry, error) {
	entries := make([]Entry, 0, len(r.dict))
	for _, d := range r.dict {
		records, err := r.read(d)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: d.key(), Records: records})
	}
	return entries, nil
}

func (r *Reader) Path() string {
	return r.filePath
}

func (r *Reader) KeyCount() int {
	return len(r.dict)
}

func (r *Reader) RecordCount() uint32 {
	return r.header.RecordCount
}

func (r *Reader) Close() error {
	return r.file.Close()
}

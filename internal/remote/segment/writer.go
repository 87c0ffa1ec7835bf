// Package segment implements the on-disk snapshot format of a remote
// source's artifact index. A segment holds the known versions of a set of
// artifacts, keyed by group and artifact, behind a sorted dictionary.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/coordinate"
)

const (
	MagicBytes    uint32 = 0x50415358
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 32
	FileSuffix           = ".pasx"
)

// Header is the 64-byte header written at the start of every segment.
type Header struct {
	Magic       uint32
	Version     uint32
	KeyCount    uint32
	RecordCount uint32
	CreatedAt   int64
	DictOffset  int64
	DictSize    int64
	PostOffset  int64
	PostSize    int64
}

// Record is one version of an artifact as published by a source.
type Record struct {
	Version     string `json:"v"`
	Packaging   string `json:"p,omitempty"`
	Description string `json:"d,omitempty"`
}

// Entry groups the records of one artifact.
type Entry struct {
	Key     coordinate.GroupArtifact
	Records []Record
}

// DictEntry maps an artifact to the offset and length of its records.
type DictEntry struct {
	GroupID    string `json:"g"`
	ArtifactID string `json:"a"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	Count      int    `json:"n"`
}

func (d DictEntry) key() coordinate.GroupArtifact {
	return coordinate.GroupArtifact{GroupID: d.GroupID, ArtifactID: d.ArtifactID}
}

// Writer serialises entries into new segment files.
type Writer struct {
	dataDir string

	mu       sync.Mutex
	lastName int64
}

func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// nextName returns a file name that sorts after every name this writer
// produced before, even when the clock does not advance.
func (w *Writer) nextName() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := time.Now().UnixNano()
	if n <= w.lastName {
		n = w.lastName + 1
	}
	w.lastName = n
	return fmt.Sprintf("seg_%d%s", n, FileSuffix)
}

// Write atomically creates a new segment containing entries. It writes to a
// .tmp file first and renames on success. Entries are sorted by key; the
// caller's slice is reordered.
func (w *Writer) Write(entries []Entry) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("cannot write empty segment")
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key.Compare(entries[j].Key) < 0
	})

	segmentName := w.nextName()
	finalPath := filepath.Join(w.dataDir, segmentName)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	committed := false
	defer func() {
		f.Close()
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	headerBytes := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(headerBytes[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(headerBytes[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(headerBytes[8:12], uint32(len(entries)))
	if _, err := f.Write(headerBytes); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	postingsStart := int64(HeaderSize)
	offset := postingsStart
	dict := make([]DictEntry, 0, len(entries))
	records := 0
	for _, entry := range entries {
		data, err := json.Marshal(entry.Records)
		if err != nil {
			return "", fmt.Errorf("marshaling records for %s: %w", entry.Key, err)
		}
		if _, err := f.Write(data); err != nil {
			return "", fmt.Errorf("writing records for %s: %w", entry.Key, err)
		}
		dict = append(dict, DictEntry{
			GroupID:    entry.Key.GroupID,
			ArtifactID: entry.Key.ArtifactID,
			PostOffset: offset - postingsStart,
			PostLen:    len(data),
			Count:      len(entry.Records),
		})
		offset += int64(len(data))
		records += len(entry.Records)
	}

	postingsSize := offset - postingsStart
	dictStart := offset
	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := f.Write(dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}
	dictSize := int64(len(dictData))

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], uint32(records))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(dictStart))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(dictSize))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(postingsSize))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}

	binary.LittleEndian.PutUint32(headerBytes[12:16], uint32(records))
	binary.LittleEndian.PutUint64(headerBytes[16:24], uint64(time.Now().Unix()))
	binary.LittleEndian.PutUint64(headerBytes[24:32], uint64(dictStart))
	binary.LittleEndian.PutUint64(headerBytes[32:40], uint64(dictSize))
	binary.LittleEndian.PutUint64(headerBytes[40:48], uint64(postingsStart))
	binary.LittleEndian.PutUint64(headerBytes[48:56], uint64(postingsSize))
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	committed = true
	return segmentName, nil
}

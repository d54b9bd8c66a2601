package metadata

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"likesync/pkg/likes"
)

// ManifestName is the manifest file kept in the storage directory
const ManifestName = ".likesync-manifest.jsonl"

// MediaRecord describes one downloaded media file
type MediaRecord struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`

	PostID   string `json:"post_id"`
	Author   string `json:"author"`
	MediaKey string `json:"media_key"`
	Index    int    `json:"index"`

	// LikedBy is the tracked account whose like produced the download
	LikedBy string `json:"liked_by,omitempty"`

	FileSize     int64     `json:"file_size"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// FromCandidate builds the record for a completed download
func FromCandidate(c likes.Candidate, likedBy string, size int64) MediaRecord {
	return MediaRecord{
		Filename:     c.Filename,
		URL:          c.URL,
		PostID:       c.PostID,
		Author:       c.Username,
		MediaKey:     c.MediaKey,
		Index:        c.Index,
		LikedBy:      likedBy,
		FileSize:     size,
		DownloadedAt: time.Now().UTC(),
	}
}

// Manifest appends one JSON record per line to a file. It is safe for
// concurrent use by download workers.
type Manifest struct {
	path string
	mu   sync.Mutex
}

// NewManifest returns the manifest for a storage directory
func NewManifest(directory string) *Manifest {
	return &Manifest{path: filepath.Join(directory, ManifestName)}
}

// Path returns the manifest file path
func (m *Manifest) Path() string {
	return m.path
}

// Record appends rec to the manifest
func (m *Manifest) Record(rec MediaRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest record: %w", err)
	}
	data = append(data, '\n')

	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write manifest record: %w", err)
	}
	return f.Close()
}

// Load reads every record. A missing manifest yields no records. Lines
// that do not parse, such as one cut short by a crash, are skipped.
func (m *Manifest) Load() ([]MediaRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.Open(m.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	var records []MediaRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec MediaRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("failed to read manifest: %w", err)
	}
	return records, nil
}

// Prune rewrites the manifest without records whose file no longer exists
// in directory. It returns the number of records removed.
func (m *Manifest) Prune(directory string) (int, error) {
	records, err := m.Load()
	if err != nil {
		return 0, err
	}

	kept := make([]MediaRecord, 0, len(records))
	for _, rec := range records {
		if _, err := os.Stat(filepath.Join(directory, rec.Filename)); err == nil {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(records) {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("failed to create manifest: %w", err)
	}
	enc := json.NewEncoder(f)
	for _, rec := range kept {
		if err := enc.Encode(rec); err != nil {
			f.Close()
			os.Remove(tmp)
			return 0, fmt.Errorf("failed to write manifest record: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("failed to close manifest: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("failed to replace manifest: %w", err)
	}

	return len(records) - len(kept), nil
}

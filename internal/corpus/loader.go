package corpus

import (
	"encoding/json"
	"fmt"
	"os"

	"tutor/internal/domain"
)

// record mirrors one object of the corpus file: an ordered JSON sequence of
// pre-chunked textbook entries.
type record struct {
	Text      string `json:"text"`
	Lesson    int    `json:"lesson"`
	Sublesson int    `json:"sublesson"`
	Topic     string `json:"topic"`
	ChunkID   string `json:"chunk_id"`
}

// File loads chunks from a single corpus JSON file.
type File struct {
	path string
}

func NewFile(path string) *File { return &File{path: path} }

func (f *File) Path() string { return f.path }

// Load reads and validates the corpus. Every record must carry a non-empty
// id unique within the file, positive lesson and sublesson numbers, and
// non-empty text; the first offending record fails the whole load.
func (f *File) Load() ([]domain.Chunk, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read corpus %s: %w", f.path, err)
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse corpus %s: %w", f.path, err)
	}

	chunks := make([]domain.Chunk, 0, len(records))
	seen := make(map[string]int, len(records))
	for i, r := range records {
		if err := validate(i, r, seen); err != nil {
			return nil, err
		}
		seen[r.ChunkID] = i
		chunks = append(chunks, domain.Chunk{
			ID:        r.ChunkID,
			Text:      r.Text,
			Lesson:    r.Lesson,
			Sublesson: r.Sublesson,
			Topic:     r.Topic,
		})
	}
	return chunks, nil
}

func validate(i int, r record, seen map[string]int) error {
	if r.ChunkID == "" {
		return &domain.ValidationError{Index: i, Field: "chunk_id", Reason: "must not be empty"}
	}
	if prev, dup := seen[r.ChunkID]; dup {
		return &domain.ValidationError{
			Index: i, ChunkID: r.ChunkID, Field: "chunk_id",
			Reason: fmt.Sprintf("duplicate of record %d", prev),
		}
	}
	if r.Text == "" {
		return &domain.ValidationError{Index: i, ChunkID: r.ChunkID, Field: "text", Reason: "must not be empty"}
	}
	if r.Lesson < 1 {
		return &domain.ValidationError{
			Index: i, ChunkID: r.ChunkID, Field: "lesson",
			Reason: fmt.Sprintf("must be a positive integer, got %d", r.Lesson),
		}
	}
	if r.Sublesson < 1 {
		return &domain.ValidationError{
			Index: i, ChunkID: r.ChunkID, Field: "sublesson",
			Reason: fmt.Sprintf("must be a positive integer, got %d", r.Sublesson),
		}
	}
	return nil
}

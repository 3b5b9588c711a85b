package requestlog

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

// File is one staged request log file: JSON lines on disk, compressed on
// upload.
type File struct {
	UUID string

	path   string
	writer *os.File
	size   int64
}

func newFile(dir string) (*File, error) {
	id := uuid.NewString()
	path := filepath.Join(dir, id+".jsonl")
	writer, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	return &File{UUID: id, path: path, writer: writer}, nil
}

func (f *File) writeLine(line []byte) error {
	n, err := f.writer.Write(append(line, '\n'))
	f.size += int64(n)
	return err
}

func (f *File) closeWriter() {
	if f.writer != nil {
		_ = f.writer.Close()
		f.writer = nil
	}
}

// OpenCompressed returns the file's content gzip-compressed, ready for
// upload.
func (f *File) OpenCompressed() (io.Reader, error) {
	content, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(content); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// Delete removes the file from disk.
func (f *File) Delete() {
	f.closeWriter()
	_ = os.Remove(f.path)
}

package zipalign

import (
	"fmt"
	"os"
)

// fileSource wraps *os.File to implement ByteSource.
// os.File has ReadAt but not Size, so we cache the size at construction.
type fileSource struct {
	file *os.File
	size int64
}

// newFileSource creates a fileSource from an open file.
func newFileSource(f *os.File) (*fileSource, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: not a regular file", f.Name())
	}
	return &fileSource{file: f, size: info.Size()}, nil
}

// ReadAt implements io.ReaderAt.
func (fs *fileSource) ReadAt(p []byte, off int64) (int, error) {
	return fs.file.ReadAt(p, off)
}

// Size returns the total size of the file.
func (fs *fileSource) Size() int64 {
	return fs.size
}

// ArchiveFile wraps an Archive with its underlying file handle.
// Close must be called to release file resources.
type ArchiveFile struct {
	*Archive
	file *os.File
}

// Close closes the underlying file.
func (af *ArchiveFile) Close() error {
	if af.file == nil {
		return nil
	}
	err := af.file.Close()
	af.file = nil
	return err
}

// OpenFile opens the archive at path for entry enumeration and positional
// reads. The returned ArchiveFile must be closed to release the file.
func OpenFile(path string) (*ArchiveFile, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided path is intentional
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	source, err := newFileSource(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	archive, err := OpenArchive(source)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}

	return &ArchiveFile{
		Archive: archive,
		file:    f,
	}, nil
}

// Interface compliance for fileSource.
var _ ByteSource = (*fileSource)(nil)

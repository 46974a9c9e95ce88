package gnssflash

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Source provides the bytes of an image in bounded chunks.
type Source interface {
	Size() int64
	ReadChunk(offset int64, length int) ([]byte, error)
	Close() error
}

// Sink receives ReadBack data. A chunk written twice at the same offset
// replaces the earlier bytes.
type Sink interface {
	WriteChunk(offset int64, data []byte) error
	Close() error
}

// FileExists reports whether path names a readable regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

/*
 * @Description: 获取文件大小
 * @param path
 * @return int64 文件不存在或无法读取时返回0，需配合FileExists区分空文件
 */
func FileSize(path string) int64 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

/*
 * @Description: 从文件指定偏移读取数据
 * @param path
 * @param offset 偏移
 * @param length 期望长度，仅在文件末尾时返回更短的数据
 * @return []byte
 * @return error
 */
func ReadFileChunk(path string, offset int64, length int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageUnreadable, err)
	}
	defer f.Close()

	data := make([]byte, length)
	n, err := f.ReadAt(data, offset)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %v", ErrImageUnreadable, err)
	}
	return data[:n], nil
}

// readChunk reads length bytes at offset, clipped to size. Anything shorter
// than the clipped length means the backing data shrank under us.
func readChunk(r io.ReaderAt, size, offset int64, length int) ([]byte, error) {
	if offset < 0 || offset > size {
		return nil, fmt.Errorf("%w: offset %d outside image of %d bytes", ErrImageUnreadable, offset, size)
	}
	if remain := size - offset; int64(length) > remain {
		length = int(remain)
	}
	data := make([]byte, length)
	n, err := r.ReadAt(data, offset)
	if n < length {
		return nil, fmt.Errorf("%w: read %d of %d bytes at offset %d: %v", ErrImageUnreadable, n, length, offset, err)
	}
	return data, nil
}

type FileSource struct {
	path string
	file *os.File
	size int64
}

// OpenFileSource opens path for exclusive use by one session.
func OpenFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageUnreadable, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrImageUnreadable, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrImageUnreadable, path)
	}
	return &FileSource{path: path, file: f, size: info.Size()}, nil
}

func (s *FileSource) Size() int64 {
	return s.size
}

func (s *FileSource) ReadChunk(offset int64, length int) ([]byte, error) {
	return readChunk(s.file, s.size, offset, length)
}

func (s *FileSource) Close() error {
	return s.file.Close()
}

// MemorySource serves an image held in memory, e.g. a format descriptor.
type MemorySource struct {
	reader *bytes.Reader
}

func NewMemorySource(data []byte) *MemorySource {
	return &MemorySource{reader: bytes.NewReader(data)}
}

func (s *MemorySource) Size() int64 {
	return s.reader.Size()
}

func (s *MemorySource) ReadChunk(offset int64, length int) ([]byte, error) {
	return readChunk(s.reader, s.reader.Size(), offset, length)
}

func (s *MemorySource) Close() error {
	return nil
}

type FileSink struct {
	file *os.File
}

// CreateFileSink creates path fresh, discarding any previous content.
func CreateFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageUnwritable, err)
	}
	return &FileSink{file: f}, nil
}

func (s *FileSink) WriteChunk(offset int64, data []byte) error {
	if _, err := s.file.WriteAt(data, offset); err != nil {
		return fmt.Errorf("%w: %v", ErrImageUnwritable, err)
	}
	return nil
}

func (s *FileSink) Close() error {
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return fmt.Errorf("%w: %v", ErrImageUnwritable, err)
	}
	return s.file.Close()
}

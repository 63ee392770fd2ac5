package datasource

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
)

// FileDataSource reads calls lazily and rewinds the file on EOF.
type FileDataSource struct {
	mu   sync.Mutex
	rs   io.ReadSeeker
	r    *bufio.Reader
	line int
	read bool // хотя бы один вызов прочитан
}

func NewFileDataSource(rs io.ReadSeeker) *FileDataSource {
	return &FileDataSource{rs: rs, r: bufio.NewReader(rs)}
}

func (ds *FileDataSource) Fetch() (Call, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	for {
		b, err := ds.r.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return Call{}, fmt.Errorf("read: %w", err)
		}
		if len(b) > 0 {
			ds.line++
			if !skip(b) {
				c, err := ParseCall(b)
				if err != nil {
					return Call{}, fmt.Errorf("line %d: %w", ds.line, err)
				}
				ds.read = true
				return c, nil
			}
		}
		if err == nil {
			continue
		}

		if !ds.read {
			return Call{}, ErrEmpty
		}
		if _, err := ds.rs.Seek(0, io.SeekStart); err != nil {
			return Call{}, fmt.Errorf("rewind: %w", err)
		}
		ds.r.Reset(ds.rs)
		ds.line = 0
	}
}

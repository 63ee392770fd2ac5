package datasource

import (
	"bufio"
	"fmt"
	"io"
	"sync/atomic"
)

// InmemDataSource loads the whole file on Init and cycles over it.
type InmemDataSource struct {
	r     io.Reader
	i     atomic.Uint64
	calls []Call
}

func NewInmemDataSource(r io.Reader) *InmemDataSource {
	return &InmemDataSource{r: r}
}

func (ds *InmemDataSource) Init() error {
	sc := bufio.NewScanner(ds.r)
	for line := 1; sc.Scan(); line++ {
		if skip(sc.Bytes()) {
			continue
		}
		c, err := ParseCall(sc.Bytes())
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		ds.calls = append(ds.calls, c)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if len(ds.calls) == 0 {
		return ErrEmpty
	}
	return nil
}

func (ds *InmemDataSource) Fetch() (Call, error) {
	i := ds.i.Add(1) - 1
	return ds.calls[i%uint64(len(ds.calls))], nil
}

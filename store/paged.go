package store

import (
	"bytes"
	"io"
	"log"
)

// pagedReader adapts a source which can only return byte ranges as a stream
// to the ReadAt interface. It keeps a LRU cache of pages.
//
// The size of the file must be known in advance. Pages start at multiples of
// pageSize, so the pages in memory are disjoint. In the expected case of a
// sequential read through the file, only one range request is made per
// page.
//
// It is not safe to use this from more than one goroutine.
type pagedReader struct {
	name     string // for log messages
	size     int64
	pageSize int64
	pages    []page // cache of data we've downloaded
	// fetch returns the content of bytes start up to, but not including,
	// end. It may return io.EOF when start is beyond the end of the file.
	fetch func(start, end int64) (io.ReadCloser, error)
}

type page struct {
	data   []byte
	offset int64
}

// The number of pages we keep in the cache. After this we will evict the LRU.
const defaultNumPages = 5

const defaultPageSize = 10 * 1024 * 1024 // 10 MiB

func newPagedReader(name string, size int64, fetch func(start, end int64) (io.ReadCloser, error)) *pagedReader {
	return &pagedReader{
		name:     name,
		size:     size,
		pageSize: defaultPageSize,
		fetch:    fetch,
	}
}

// ReadAt implements the io.ReadAt interface.
func (rac *pagedReader) ReadAt(p []byte, offset int64) (int, error) {
	var err error
	startOffset := offset
	for len(p) > 0 {
		if offset >= rac.size {
			err = io.EOF
			break
		}
		var pg page
		pg, err = rac.getpage(offset)
		if err != nil {
			// don't return, in case we have already copied some data in
			// a previous loop.
			break
		}
		n := copy(p, pg.data[offset-pg.offset:])
		p = p[n:]
		offset += int64(n)
	}
	return int(offset - startOffset), err
}

// getpage will find in memory or load a page for the given offset
func (rac *pagedReader) getpage(offset int64) (page, error) {
	i := rac.findpage(offset)
	if i == -1 {
		// page was not found, try to get it
		pg, err := rac.loadpage(offset)
		if err != nil {
			return page{}, err
		}
		// if the cache is not too big yet, add it to the end
		// otherwise replace the last entry with it
		if len(rac.pages) < defaultNumPages {
			rac.pages = append(rac.pages, pg)
		}
		i = len(rac.pages) - 1
		rac.pages[i] = pg
	}
	pg := rac.pages[i]
	if i > 0 {
		// move page to front of cache
		copy(rac.pages[1:], rac.pages[:i]) // don't need to copy entry i
		rac.pages[0] = pg
	}
	return pg, nil
}

// findpage sees if any page in the cache contains the data for the byte at
// offset. If so, it returns the index of the page in the cache. Otherwise -1
// is returned.
func (rac *pagedReader) findpage(offset int64) int {
	for i, pg := range rac.pages {
		base := pg.offset
		limit := base + int64(len(pg.data))
		if base <= offset && offset < limit {
			return i
		}
	}
	return -1
}

// loadpage will read one page of data. It tries to read pageSize bytes, but
// less may be returned at the end of the file.
func (rac *pagedReader) loadpage(offset int64) (page, error) {
	startpos := (offset / rac.pageSize) * rac.pageSize
	endpos := startpos + rac.pageSize
	if endpos > rac.size {
		endpos = rac.size
	}
	body, err := rac.fetch(startpos, endpos)
	if err != nil {
		if err != io.EOF {
			log.Println("loadpage:", rac.name, offset, err)
		}
		return page{}, err
	}
	data := &bytes.Buffer{} // using Buffer since we need an io.Writer interface
	n, err := io.Copy(data, body)
	body.Close()
	if n == 0 && err == nil {
		// nothing was transferred and there was no error...?
		err = io.ErrUnexpectedEOF
	}
	return page{data: data.Bytes(), offset: startpos}, err
}

// Close will drop the cached pages.
func (rac *pagedReader) Close() error {
	rac.pages = nil
	return nil
}

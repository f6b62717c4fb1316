package store

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// File is a memory-mapped configuration file. The mapping lives for one
// synthesis pass: Open, look records up, Close.
type File struct {
	data []byte
	recs []Record
}

// Open maps the configuration file at path read-only and decodes its
// records. A missing or unreadable file resolves to ErrNoConfig, which
// callers treat as "splitting disabled".
func Open(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no path resolved", ErrNoConfig)
	}

	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.EACCES) {
			return nil, fmt.Errorf("%w: %s", ErrNoConfig, path)
		}
		return nil, fmt.Errorf("unix.Open: %w", err)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("unix.Fstat: %w", err)
	}

	if st.Size == 0 {
		unix.Close(fd)
		return &File{}, nil
	}

	data, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ, unix.MAP_SHARED)
	// the mapping keeps the file alive on its own
	unix.Close(fd)
	if err != nil {
		return nil, fmt.Errorf("unix.Mmap: %w", err)
	}

	recs, err := decodeRecords(data)
	if err != nil {
		unix.Munmap(data)
		return nil, err
	}

	return &File{data: data, recs: recs}, nil
}

// Close drops the mapping. Records handed out earlier stay valid, they
// hold their own copies.
func (f *File) Close() error {
	if f.data == nil {
		return nil
	}

	data := f.data
	f.data = nil

	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("unix.Munmap: %w", err)
	}
	return nil
}

// Records lists every record in file order.
func (f *File) Records() []Record {
	return f.recs
}

// Find returns every record whose key matches, in file order. More than
// one record may share an EDID, carrying different target geometries.
func (f *File) Find(key string) []Record {
	var out []Record
	for _, rec := range f.recs {
		if rec.Key == key {
			out = append(out, rec)
		}
	}
	return out
}

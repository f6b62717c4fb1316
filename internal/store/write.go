package store

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Marshal encodes one record in the on-disk layout.
func Marshal(rec *Record) ([]byte, error) {
	if len(rec.Name) > nameSize {
		return nil, fmt.Errorf("record name %q exceeds %d bytes", rec.Name, nameSize)
	}
	if len(rec.Key) > keySize {
		return nil, fmt.Errorf("record key exceeds %d bytes", keySize)
	}

	size := recHeaderSize + len(rec.Tree)
	buf := make([]byte, 4+size)

	binary.LittleEndian.PutUint32(buf, uint32(size))
	copy(buf[4:], rec.Name)
	copy(buf[4+nameSize:], rec.Key)
	binary.LittleEndian.PutUint32(buf[4+nameSize+keySize:], rec.Width)
	binary.LittleEndian.PutUint32(buf[4+nameSize+keySize+4:], rec.Height)
	binary.LittleEndian.PutUint32(buf[4+nameSize+keySize+8:], uint32(len(rec.Tree)))
	copy(buf[4+recHeaderSize:], rec.Tree)

	return buf, nil
}

// WriteFile replaces the configuration file atomically.
func WriteFile(path string, recs []Record) error {
	var buf []byte
	for i := range recs {
		b, err := Marshal(&recs[i])
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		buf = append(buf, b...)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("os.WriteFile: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("os.Rename: %w", err)
	}

	return nil
}

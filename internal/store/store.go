package store

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
)

// On-disk record layout, shared between the daemon and the management
// CLI. Little endian, no magic, no version: a leading size field (which
// does not count itself), a fixed header, then the split tree blob.
const (
	nameSize = 128
	keySize  = 768

	// name, key, target width, target height, tree byte count
	recHeaderSize = nameSize + keySize + 4 + 4 + 4

	// A key holds two hex digits per EDID byte.
	maxEdidBytes = keySize / 2
)

const fileName = "splitrandr.bin"

var (
	ErrNoConfig  = errors.New("no configuration file")
	ErrMalformed = errors.New("malformed configuration file")
)

// Record describes how one physical output, identified by its EDID, is
// carved into virtual outputs once its CRTC runs at the target size.
type Record struct {
	Name   string
	Key    string
	Width  uint32
	Height uint32
	Tree   []byte
}

// Key derives the lookup key for an EDID blob: lowercase hex of its
// first 384 bytes at most.
func Key(edid []byte) string {
	if len(edid) > maxEdidBytes {
		edid = edid[:maxEdidBytes]
	}
	return hex.EncodeToString(edid)
}

// DefaultPath resolves ${XDG_CONFIG_HOME:-$HOME/.config}/splitrandr.bin.
func DefaultPath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home := os.Getenv("HOME")
		if home == "" {
			return "", fmt.Errorf("%w: neither XDG_CONFIG_HOME nor HOME is set", ErrNoConfig)
		}
		dir = home + "/.config"
	}

	return dir + "/" + fileName, nil
}

// decodeRecords walks the length-prefixed records until the end of the
// data. Fields are copied out so the backing mapping can be dropped.
func decodeRecords(data []byte) ([]Record, error) {
	var out []Record

	for off := 0; off < len(data); {
		if off+4 > len(data) {
			return nil, fmt.Errorf("%w: record size field at %d overruns the file", ErrMalformed, off)
		}
		size := int(binary.LittleEndian.Uint32(data[off:]))

		body := off + 4
		if size < recHeaderSize || body+size > len(data) {
			return nil, fmt.Errorf("%w: record at %d claims %d bytes", ErrMalformed, off, size)
		}
		rec := data[body : body+size]

		treeLen := int(binary.LittleEndian.Uint32(rec[nameSize+keySize+8:]))
		if recHeaderSize+treeLen > size {
			return nil, fmt.Errorf("%w: split tree at %d claims %d bytes", ErrMalformed, off, treeLen)
		}

		out = append(out, Record{
			Name:   trimNul(rec[:nameSize]),
			Key:    trimNul(rec[nameSize : nameSize+keySize]),
			Width:  binary.LittleEndian.Uint32(rec[nameSize+keySize:]),
			Height: binary.LittleEndian.Uint32(rec[nameSize+keySize+4:]),
			Tree:   append([]byte(nil), rec[recHeaderSize:recHeaderSize+treeLen]...),
		})

		off = body + size
	}

	return out, nil
}

// trimNul interprets a fixed-size field as a NUL-terminated string.
func trimNul(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

package store

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, recs []Record) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "splitrandr.bin")
	require.NoError(t, WriteFile(path, recs))
	return path
}

func TestMarshalLayout(t *testing.T) {
	r := require.New(t)

	rec := Record{
		Name:   "desk",
		Key:    strings.Repeat("ab", 128),
		Width:  1920,
		Height: 1080,
		Tree:   []byte{'H', 0x1C, 0x02, 0x00, 0x00, 'N', 'N'},
	}

	buf, err := Marshal(&rec)
	r.NoError(err)

	// size excludes its own four bytes
	r.Len(buf, 4+908+len(rec.Tree))
	r.Equal(uint32(908+len(rec.Tree)), binary.LittleEndian.Uint32(buf[0:]))

	// fixed offsets: name at 4, key at 132, geometry at 900, tree at 912
	r.Equal("desk", trimNul(buf[4:4+128]))
	r.Equal(rec.Key, trimNul(buf[132:132+768]))
	r.Equal(uint32(1920), binary.LittleEndian.Uint32(buf[900:]))
	r.Equal(uint32(1080), binary.LittleEndian.Uint32(buf[904:]))
	r.Equal(uint32(len(rec.Tree)), binary.LittleEndian.Uint32(buf[908:]))
	r.Equal(rec.Tree, buf[912:])
}

func TestOpenRoundTrip(t *testing.T) {
	r := require.New(t)

	recs := []Record{
		{Name: "left", Key: strings.Repeat("aa", 64), Width: 1920, Height: 1080, Tree: []byte{'N'}},
		{Name: "right", Key: strings.Repeat("bb", 64), Width: 2560, Height: 1440, Tree: []byte{'V', 0x00, 0x05, 0x00, 0x00, 'N', 'N'}},
	}
	path := writeConfig(t, recs)

	f, err := Open(path)
	r.NoError(err)
	defer f.Close()

	r.Equal(recs, f.Records())
	r.NoError(f.Close())

	// records stay usable after the mapping is gone
	r.Equal("right", f.Records()[1].Name)
}

func TestFind(t *testing.T) {
	r := require.New(t)

	key := strings.Repeat("cd", 64)
	recs := []Record{
		{Name: "other", Key: strings.Repeat("aa", 64), Width: 1024, Height: 768, Tree: []byte{'N'}},
		{Name: "at full hd", Key: key, Width: 1920, Height: 1080, Tree: []byte{'N'}},
		{Name: "at 4k", Key: key, Width: 3840, Height: 2160, Tree: []byte{'N'}},
	}
	path := writeConfig(t, recs)

	f, err := Open(path)
	r.NoError(err)
	defer f.Close()

	found := f.Find(key)
	r.Len(found, 2, "both records for the key, in file order")
	r.Equal("at full hd", found[0].Name)
	r.Equal("at 4k", found[1].Name)

	r.Empty(f.Find(strings.Repeat("ee", 64)))
}

func TestOpenMissingFile(t *testing.T) {
	r := require.New(t)

	_, err := Open(filepath.Join(t.TempDir(), "nope.bin"))
	r.ErrorIs(err, ErrNoConfig)

	_, err = Open("")
	r.ErrorIs(err, ErrNoConfig)
}

func TestOpenEmptyFile(t *testing.T) {
	r := require.New(t)

	path := filepath.Join(t.TempDir(), "empty.bin")
	r.NoError(os.WriteFile(path, nil, 0o644))

	f, err := Open(path)
	r.NoError(err)
	defer f.Close()

	r.Empty(f.Records())
}

func TestOpenMalformed(t *testing.T) {
	testCases := []struct {
		comment string
		data    []byte
	}{
		{
			comment: "size field cut short",
			data:    []byte{0x01, 0x02},
		},
		{
			comment: "record overruns the file",
			data:    binary.LittleEndian.AppendUint32(nil, 4096),
		},
		{
			comment: "record smaller than its fixed header",
			data:    append(binary.LittleEndian.AppendUint32(nil, 16), bytes.Repeat([]byte{0}, 16)...),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.comment, func(t *testing.T) {
			r := require.New(t)

			path := filepath.Join(t.TempDir(), "bad.bin")
			r.NoError(os.WriteFile(path, tc.data, 0o644))

			_, err := Open(path)
			r.ErrorIs(err, ErrMalformed)
		})
	}

	t.Run("tree overruns the record", func(t *testing.T) {
		r := require.New(t)

		rec := Record{Name: "x", Key: "aa", Width: 1, Height: 1, Tree: []byte{'N'}}
		buf, err := Marshal(&rec)
		r.NoError(err)
		// claim more tree bytes than the record holds
		binary.LittleEndian.PutUint32(buf[908:], 99)

		path := filepath.Join(t.TempDir(), "bad.bin")
		r.NoError(os.WriteFile(path, buf, 0o644))

		_, err = Open(path)
		r.ErrorIs(err, ErrMalformed)
	})
}

func TestKey(t *testing.T) {
	r := require.New(t)

	r.Equal("", Key(nil))
	r.Equal("00ffab", Key([]byte{0x00, 0xFF, 0xAB}))

	// longer EDIDs are keyed by their first 384 bytes
	long := bytes.Repeat([]byte{0x11}, 500)
	r.Equal(strings.Repeat("11", 384), Key(long))
	r.Len(Key(long), 768)
}

func TestDefaultPath(t *testing.T) {
	r := require.New(t)

	t.Setenv("XDG_CONFIG_HOME", "/tmp/conf")
	path, err := DefaultPath()
	r.NoError(err)
	r.Equal("/tmp/conf/splitrandr.bin", path)

	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/someone")
	path, err = DefaultPath()
	r.NoError(err)
	r.Equal("/home/someone/.config/splitrandr.bin", path)

	t.Setenv("HOME", "")
	_, err = DefaultPath()
	r.ErrorIs(err, ErrNoConfig)
}

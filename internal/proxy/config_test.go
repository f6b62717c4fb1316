package proxy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kndndrj/splitrandr/internal/xsock"
)

func TestParseConfig(t *testing.T) {
	testCases := []struct {
		comment string
		args    []string
		env     string
		want    *Config
		wantErr error
	}{
		{
			comment: "defaults take the upstream from the environment",
			args:    nil,
			env:     ":0",
			want:    &Config{Display: ":8", Upstream: ":0"},
		},
		{
			comment: "everything explicit",
			args:    []string{"-display", ":9", "-upstream", ":1", "-config", "/tmp/split.bin", "-verbose"},
			env:     ":0",
			want:    &Config{Display: ":9", Upstream: ":1", ConfigPath: "/tmp/split.bin", Verbose: true},
		},
		{
			comment: "no upstream anywhere",
			args:    nil,
			env:     "",
			wantErr: errUpstreamEmpty,
		},
		{
			comment: "served and upstream display collide",
			args:    []string{"-display", ":8", "-upstream", "unix:8"},
			env:     "",
			wantErr: errSameDisplay,
		},
		{
			comment: "upstream on another machine",
			args:    []string{"-upstream", "otherbox:0"},
			env:     "",
			wantErr: xsock.ErrNotLocal,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.comment, func(t *testing.T) {
			r := require.New(t)
			t.Setenv("DISPLAY", tc.env)

			got, err := ParseConfig(tc.args)
			if tc.wantErr != nil {
				r.ErrorIs(err, tc.wantErr)
				return
			}
			r.NoError(err)
			r.Equal(tc.want, got)
		})
	}
}

func TestPidFileName(t *testing.T) {
	r := require.New(t)

	cfg := &Config{Display: ":8"}
	r.Equal("splitrandr_8", cfg.PidFileName())

	cfg = &Config{Display: "unix:10.0"}
	r.Equal("splitrandr_10", cfg.PidFileName())
}

package xsock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		comment string
		display string
		want    int
		wantErr bool
	}{
		{
			comment: "bare number",
			display: ":8",
			want:    8,
		},
		{
			comment: "screen suffix is ignored",
			display: ":8.0",
			want:    8,
		},
		{
			comment: "explicit unix transport",
			display: "unix:10",
			want:    10,
		},
		{
			comment: "display zero",
			display: ":0",
			want:    0,
		},
		{
			comment: "remote host",
			display: "somehost:3",
			wantErr: true,
		},
		{
			comment: "empty string",
			display: "",
			wantErr: true,
		},
		{
			comment: "no display number",
			display: ":",
			wantErr: true,
		},
		{
			comment: "number is not a number",
			display: ":abc",
			wantErr: true,
		},
		{
			comment: "negative number",
			display: ":-2",
			wantErr: true,
		},
		{
			comment: "no colon at all",
			display: "8",
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.comment, func(t *testing.T) {
			r := require.New(t)

			got, err := Parse(tc.display)
			if tc.wantErr {
				r.Error(err)
				return
			}
			r.NoError(err)
			r.Equal(tc.want, got)
		})
	}
}

func TestParseRemoteHostSentinel(t *testing.T) {
	r := require.New(t)

	_, err := Parse("somehost:3")
	r.ErrorIs(err, ErrNotLocal)

	_, err = Parse("tcp/somehost:3")
	r.ErrorIs(err, ErrNotLocal)
}

func TestSocketPath(t *testing.T) {
	r := require.New(t)

	r.Equal("/tmp/.X11-unix/X8", SocketPath(8))
	r.Equal("/tmp/.X11-unix/X0", SocketPath(0))
}

package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	testCases := []struct {
		comment    string
		in         string
		wantWidth  uint32
		wantHeight uint32
		wantErr    string
	}{
		{
			comment:    "plain mode",
			in:         "1920x1080",
			wantWidth:  1920,
			wantHeight: 1080,
		},
		{
			comment:    "uppercase separator",
			in:         "1920X1080",
			wantWidth:  1920,
			wantHeight: 1080,
		},
		{
			comment: "missing separator",
			in:      "1920",
			wantErr: "invalid mode format",
		},
		{
			comment: "width is not a number",
			in:      "wx1080",
			wantErr: "invalid width parameter",
		},
		{
			comment: "height is not a number",
			in:      "1920xh",
			wantErr: "invalid height parameter",
		},
		{
			comment: "zero size",
			in:      "0x0",
			wantErr: "should be positive",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.comment, func(t *testing.T) {
			r := require.New(t)

			w, h, err := parseMode(tc.in)
			if tc.wantErr != "" {
				r.Error(err)
				r.Contains(err.Error(), tc.wantErr)
				return
			}
			r.NoError(err)
			r.Equal(tc.wantWidth, w)
			r.Equal(tc.wantHeight, h)
		})
	}
}

func TestSubcommandFromString(t *testing.T) {
	r := require.New(t)

	for _, sub := range []Subcommand{SubcommandOutputs, SubcommandShow, SubcommandSet, SubcommandDelete} {
		r.Equal(sub, SubcommandFromString(sub.String()))
	}
	r.Equal(SubcommandUnknown, SubcommandFromString("serve"))
}

func TestParseSetFlags(t *testing.T) {
	testCases := []struct {
		comment string
		args    []string
		wantErr error
	}{
		{
			comment: "split by output name",
			args:    []string{"-output", "DP-1", "H", "540", "N", "N"},
		},
		{
			comment: "split by key",
			args:    []string{"-key", "00FFAB", "-mode", "1920x1080", "V", "960", "N", "N"},
		},
		{
			comment: "no target",
			args:    []string{"H", "540", "N", "N"},
			wantErr: errTargetMissing,
		},
		{
			comment: "both targets",
			args:    []string{"-output", "DP-1", "-key", "00ffab", "N"},
			wantErr: errTargetTwice,
		},
		{
			comment: "key without mode",
			args:    []string{"-key", "00ffab", "H", "540", "N", "N"},
			wantErr: errModeMissing,
		},
		{
			comment: "no tree",
			args:    []string{"-output", "DP-1"},
			wantErr: errTreeMissing,
		},
		{
			comment: "tree without a split",
			args:    []string{"-output", "DP-1", "N"},
			wantErr: errTreeWhole,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.comment, func(t *testing.T) {
			r := require.New(t)
			t.Setenv("DISPLAY", ":0")

			cfg, err := ParseSetFlags(tc.args)
			if tc.wantErr != nil {
				r.ErrorIs(err, tc.wantErr)
				return
			}
			r.NoError(err)
			r.NotNil(cfg.Tree)
		})
	}
}

func TestParseSetFlagsNormalizesKey(t *testing.T) {
	r := require.New(t)
	t.Setenv("DISPLAY", ":0")

	cfg, err := ParseSetFlags([]string{"-key", "00FFAB", "-mode", "2560x1440", "-name", "left panel", "V", "1280", "N", "N"})
	r.NoError(err)

	r.Equal("00ffab", cfg.Key)
	r.Equal("left panel", cfg.Name)
	r.Equal(uint32(2560), cfg.Width)
	r.Equal(uint32(1440), cfg.Height)
	r.Equal("V 1280 N N", cfg.Tree.String())
}

func TestParseSetFlagsRejectsBadTrees(t *testing.T) {
	r := require.New(t)
	t.Setenv("DISPLAY", ":0")

	_, err := ParseSetFlags([]string{"-output", "DP-1", "H", "540", "N"})
	r.Error(err)
	r.Contains(err.Error(), "split.Parse")

	_, err = ParseSetFlags([]string{"-key", "zz", "-mode", "1920x1080", "H", "540", "N", "N"})
	r.Error(err)
	r.Contains(err.Error(), "invalid key")

	// one more leaf than the generation bits can number
	huge := strings.TrimSpace(strings.Repeat("V 1 ", 1023) + strings.Repeat("N ", 1024))
	_, err = ParseSetFlags(append([]string{"-output", "DP-1"}, strings.Fields(huge)...))
	r.Error(err)
	r.Contains(err.Error(), "at most")
}

func TestParseDeleteFlags(t *testing.T) {
	testCases := []struct {
		comment string
		args    []string
		want    *DeleteConfig
		wantErr error
	}{
		{
			comment: "by output",
			args:    []string{"-display", ":0", "-output", "DP-1"},
			want:    &DeleteConfig{Display: ":0", Output: "DP-1"},
		},
		{
			comment: "by key prefix with mode",
			args:    []string{"-display", ":0", "-key", "00FFAB", "-mode", "1920x1080"},
			want:    &DeleteConfig{Display: ":0", Key: "00ffab", Width: 1920, Height: 1080, HasMode: true},
		},
		{
			comment: "no target",
			args:    []string{"-display", ":0"},
			wantErr: errTargetMissing,
		},
		{
			comment: "both targets",
			args:    []string{"-display", ":0", "-output", "DP-1", "-key", "00ffab"},
			wantErr: errTargetTwice,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.comment, func(t *testing.T) {
			r := require.New(t)
			t.Setenv("DISPLAY", "")

			cfg, err := ParseDeleteFlags(tc.args)
			if tc.wantErr != nil {
				r.ErrorIs(err, tc.wantErr)
				return
			}
			r.NoError(err)
			r.Equal(tc.want, cfg)
		})
	}
}

func TestParseOutputsFlagsNeedsDisplay(t *testing.T) {
	r := require.New(t)
	t.Setenv("DISPLAY", "")

	_, err := ParseOutputsFlags(nil)
	r.ErrorIs(err, errDisplayEmpty)

	cfg, err := ParseOutputsFlags([]string{"-display", ":0", "-config", "/tmp/split.bin"})
	r.NoError(err)
	r.Equal(":0", cfg.Display)
	r.Equal("/tmp/split.bin", cfg.Path)
	r.False(cfg.FullKey)

	cfg, err = ParseOutputsFlags([]string{"-display", ":0", "-full"})
	r.NoError(err)
	r.True(cfg.FullKey)
}

package config

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kndndrj/splitrandr/internal/split"
	"github.com/kndndrj/splitrandr/internal/xid"
)

type Subcommand int

const (
	SubcommandUnknown Subcommand = iota
	SubcommandOutputs
	SubcommandShow
	SubcommandSet
	SubcommandDelete
)

func SubcommandFromString(s string) Subcommand {
	switch s {
	case "outputs":
		return SubcommandOutputs
	case "show":
		return SubcommandShow
	case "set":
		return SubcommandSet
	case "delete":
		return SubcommandDelete
	}
	return SubcommandUnknown
}

func (s Subcommand) String() string {
	switch s {
	case SubcommandOutputs:
		return "outputs"
	case SubcommandShow:
		return "show"
	case SubcommandSet:
		return "set"
	case SubcommandDelete:
		return "delete"
	}
	return "unknown"
}

func GetSubcommand() (Subcommand, error) {
	if len(os.Args) < 2 {
		return 0, errors.New("expected a subcommand: outputs, show, set or delete")
	}

	subcommand := SubcommandFromString(os.Args[1])
	if subcommand == SubcommandUnknown {
		return 0, fmt.Errorf("unknown subcommand: %q", os.Args[1])
	}

	return subcommand, nil
}

var (
	errDisplayEmpty  = errors.New("no display to probe, pass -display or set DISPLAY")
	errTargetMissing = errors.New("pass -output or -key to pick the records")
	errTargetTwice   = errors.New("-output and -key are mutually exclusive")
	errModeMissing   = errors.New("-key needs an explicit -mode")
	errTreeMissing   = errors.New("expected a split tree - example: H 540 N N")
	errTreeWhole     = errors.New("the tree does not split anything")
)

type OutputsConfig struct {
	Display string
	Path    string
	FullKey bool
}

func ParseOutputsFlags(args []string) (*OutputsConfig, error) {
	subcmd := flag.NewFlagSet(SubcommandOutputs.String(), flag.ExitOnError)
	displayFlag := subcmd.String("display", os.Getenv("DISPLAY"), "Display to probe.")
	configFlag := subcmd.String("config", "", "Split configuration file. Empty means the user config dir.")
	fullFlag := subcmd.Bool("full", false, "Print full display keys instead of prefixes.")

	err := subcmd.Parse(args)
	if err != nil {
		return nil, err
	}

	if *displayFlag == "" {
		return nil, errDisplayEmpty
	}

	return &OutputsConfig{
		Display: *displayFlag,
		Path:    *configFlag,
		FullKey: *fullFlag,
	}, nil
}

type ShowConfig struct {
	Path string
}

func ParseShowFlags(args []string) (*ShowConfig, error) {
	subcmd := flag.NewFlagSet(SubcommandShow.String(), flag.ExitOnError)
	configFlag := subcmd.String("config", "", "Split configuration file. Empty means the user config dir.")

	err := subcmd.Parse(args)
	if err != nil {
		return nil, err
	}

	return &ShowConfig{Path: *configFlag}, nil
}

type SetConfig struct {
	Display string
	Path    string
	Output  string
	Key     string
	Name    string
	// Width and Height stay zero when the current mode of -output
	// should be probed.
	Width  uint32
	Height uint32
	Tree   *split.Node
}

// ParseSetFlags reads the set flags. The split tree comes after the
// flags as positional tokens: set -output DP-1 H 540 N N.
func ParseSetFlags(args []string) (*SetConfig, error) {
	subcmd := flag.NewFlagSet(SubcommandSet.String(), flag.ExitOnError)
	displayFlag := subcmd.String("display", os.Getenv("DISPLAY"), "Display to probe.")
	configFlag := subcmd.String("config", "", "Split configuration file. Empty means the user config dir.")
	outputFlag := subcmd.String("output", "", "Output to split, by connector name.")
	keyFlag := subcmd.String("key", "", "EDID key to split, full hex. Alternative to -output.")
	nameFlag := subcmd.String("name", "", "Label stored alongside -key. Probed otherwise.")
	modeFlag := subcmd.String("mode", "", "Mode the split applies to. <width>x<height> in [px]. Defaults to the current mode of -output.")

	err := subcmd.Parse(args)
	if err != nil {
		return nil, err
	}

	if *outputFlag == "" && *keyFlag == "" {
		return nil, errTargetMissing
	}
	if *outputFlag != "" && *keyFlag != "" {
		return nil, errTargetTwice
	}
	if *outputFlag != "" && *displayFlag == "" {
		return nil, errDisplayEmpty
	}

	key := strings.ToLower(*keyFlag)
	if key != "" {
		if _, err := hex.DecodeString(key); err != nil {
			return nil, fmt.Errorf("invalid key %q: %w", *keyFlag, err)
		}
		if *modeFlag == "" {
			return nil, errModeMissing
		}
	}

	var width, height uint32
	if *modeFlag != "" {
		width, height, err = parseMode(*modeFlag)
		if err != nil {
			return nil, err
		}
	}

	if len(subcmd.Args()) == 0 {
		return nil, errTreeMissing
	}
	tree, err := split.Parse(strings.Join(subcmd.Args(), " "))
	if err != nil {
		return nil, fmt.Errorf("split.Parse: %w", err)
	}
	if leaves := split.Leaves(tree); leaves < 2 {
		return nil, errTreeWhole
	} else if leaves > xid.MaxGeneration {
		return nil, fmt.Errorf("the tree produces %d outputs, at most %d fit", leaves, xid.MaxGeneration)
	}

	return &SetConfig{
		Display: *displayFlag,
		Path:    *configFlag,
		Output:  *outputFlag,
		Key:     key,
		Name:    *nameFlag,
		Width:   width,
		Height:  height,
		Tree:    tree,
	}, nil
}

type DeleteConfig struct {
	Display string
	Path    string
	Output  string
	// Key may be a unique prefix of a stored key.
	Key     string
	Width   uint32
	Height  uint32
	HasMode bool
}

func ParseDeleteFlags(args []string) (*DeleteConfig, error) {
	subcmd := flag.NewFlagSet(SubcommandDelete.String(), flag.ExitOnError)
	displayFlag := subcmd.String("display", os.Getenv("DISPLAY"), "Display to probe.")
	configFlag := subcmd.String("config", "", "Split configuration file. Empty means the user config dir.")
	outputFlag := subcmd.String("output", "", "Output whose records to drop, by connector name.")
	keyFlag := subcmd.String("key", "", "EDID key whose records to drop. Alternative to -output.")
	modeFlag := subcmd.String("mode", "", "Drop only the record for this mode. <width>x<height> in [px].")

	err := subcmd.Parse(args)
	if err != nil {
		return nil, err
	}

	if *outputFlag == "" && *keyFlag == "" {
		return nil, errTargetMissing
	}
	if *outputFlag != "" && *keyFlag != "" {
		return nil, errTargetTwice
	}
	if *outputFlag != "" && *displayFlag == "" {
		return nil, errDisplayEmpty
	}

	cfg := &DeleteConfig{
		Display: *displayFlag,
		Path:    *configFlag,
		Output:  *outputFlag,
		Key:     strings.ToLower(*keyFlag),
	}

	if *modeFlag != "" {
		cfg.Width, cfg.Height, err = parseMode(*modeFlag)
		if err != nil {
			return nil, err
		}
		cfg.HasMode = true
	}

	return cfg, nil
}

func parseMode(in string) (w, h uint32, err error) {
	sp := strings.Split(strings.ToLower(in), "x")
	if len(sp) != 2 {
		return 0, 0, fmt.Errorf("invalid mode format: %q, should be: <width>x<height>", in)
	}

	width, err := strconv.ParseUint(sp[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid width parameter: %q - not a number", sp[0])
	}

	height, err := strconv.ParseUint(sp[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid height parameter: %q - not a number", sp[1])
	}

	if width < 1 || height < 1 {
		return 0, 0, fmt.Errorf("invalid mode parameter: %q - width and height should be positive", in)
	}

	return uint32(width), uint32(height), nil
}

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kndndrj/splitrandr/internal/core"
	"github.com/kndndrj/splitrandr/internal/split"
	"github.com/kndndrj/splitrandr/internal/store"
	"github.com/kndndrj/splitrandr/internal/wire"
	"github.com/kndndrj/splitrandr/splitrandr-config/config"
)

// configPath resolves the file the subcommand works on.
func configPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	path, err := store.DefaultPath()
	if err != nil {
		return "", fmt.Errorf("store.DefaultPath: %w", err)
	}
	return path, nil
}

// loadRecords reads the configuration, treating a missing file as
// empty.
func loadRecords(path string) ([]store.Record, error) {
	f, err := store.Open(path)
	if err != nil {
		if errors.Is(err, store.ErrNoConfig) {
			return nil, nil
		}
		return nil, fmt.Errorf("store.Open: %w", err)
	}
	defer f.Close()

	return f.Records(), nil
}

// findOutput looks an output up by its connector name.
func findOutput(probe *core.Prober, name string) (id uint32, info *core.ProbedOutput, configTimestamp uint32, err error) {
	res, err := probe.ScreenResources()
	if err != nil {
		return 0, nil, 0, fmt.Errorf("probe.ScreenResources: %w", err)
	}

	for _, candidate := range res.Outputs {
		out, err := probe.OutputInfo(candidate, res.ConfigTimestamp)
		if err != nil {
			return 0, nil, 0, fmt.Errorf("probe.OutputInfo: %w", err)
		}
		if out.Name == name {
			return candidate, out, res.ConfigTimestamp, nil
		}
	}

	return 0, nil, 0, fmt.Errorf("no output named %q on the display", name)
}

// probeKey derives the record key of a connected output.
func probeKey(probe *core.Prober, name string) (string, error) {
	id, _, _, err := findOutput(probe, name)
	if err != nil {
		return "", err
	}

	edid, err := probe.OutputEDID(id)
	if err != nil {
		return "", fmt.Errorf("probe.OutputEDID: %w", err)
	}
	if len(edid) == 0 {
		return "", fmt.Errorf("output %q has no EDID, cannot key its records", name)
	}

	return store.Key(edid), nil
}

func shortKey(key string) string {
	if len(key) <= 32 {
		return key
	}
	return key[:32] + ".."
}

func connState(c uint8) string {
	switch c {
	case wire.ConnConnected:
		return "connected"
	case wire.ConnDisconnected:
		return "disconnected"
	}
	return "unknown"
}

func mainOutputs() error {
	cfg, err := config.ParseOutputsFlags(os.Args[2:])
	if err != nil {
		return err
	}

	path, err := configPath(cfg.Path)
	if err != nil {
		return err
	}
	recs, err := loadRecords(path)
	if err != nil {
		return err
	}

	probe, err := core.NewProber(cfg.Display)
	if err != nil {
		return fmt.Errorf("core.NewProber: %w", err)
	}
	defer probe.Close()

	res, err := probe.ScreenResources()
	if err != nil {
		return fmt.Errorf("probe.ScreenResources: %w", err)
	}

	for _, id := range res.Outputs {
		info, err := probe.OutputInfo(id, res.ConfigTimestamp)
		if err != nil {
			return fmt.Errorf("probe.OutputInfo: %w", err)
		}

		geometry := "off"
		if info.Crtc != 0 {
			crtc, err := probe.CrtcInfo(info.Crtc, res.ConfigTimestamp)
			if err != nil {
				return fmt.Errorf("probe.CrtcInfo: %w", err)
			}
			geometry = fmt.Sprintf("%dx%d+%d+%d", crtc.Width, crtc.Height, crtc.X, crtc.Y)
		}

		keyColumn := "no edid"
		edid, err := probe.OutputEDID(id)
		if err != nil {
			return fmt.Errorf("probe.OutputEDID: %w", err)
		}
		if len(edid) > 0 {
			key := store.Key(edid)
			n := 0
			for _, rec := range recs {
				if rec.Key == key {
					n++
				}
			}
			if cfg.FullKey {
				keyColumn = "key " + key
			} else {
				keyColumn = "key " + shortKey(key)
			}
			if n > 0 {
				keyColumn += fmt.Sprintf("  %d record(s)", n)
			}
		}

		fmt.Printf("%-10s %-12s %-16s %s\n", info.Name, connState(info.Connection), geometry, keyColumn)
	}

	return nil
}

func mainShow() error {
	cfg, err := config.ParseShowFlags(os.Args[2:])
	if err != nil {
		return err
	}

	path, err := configPath(cfg.Path)
	if err != nil {
		return err
	}
	recs, err := loadRecords(path)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Printf("no records in %s\n", path)
		return nil
	}

	for _, rec := range recs {
		treeColumn := "(malformed tree)"
		if tree, err := split.Decode(rec.Tree); err == nil {
			treeColumn = tree.String()
		}

		name := rec.Name
		if name == "" {
			name = "-"
		}

		fmt.Printf("%-10s %dx%-6d %-24s key %s\n", name, rec.Width, rec.Height, treeColumn, shortKey(rec.Key))
	}

	return nil
}

func mainSet() error {
	cfg, err := config.ParseSetFlags(os.Args[2:])
	if err != nil {
		return err
	}

	path, err := configPath(cfg.Path)
	if err != nil {
		return err
	}

	name, key := cfg.Name, cfg.Key
	width, height := cfg.Width, cfg.Height

	if cfg.Output != "" {
		probe, err := core.NewProber(cfg.Display)
		if err != nil {
			return fmt.Errorf("core.NewProber: %w", err)
		}
		defer probe.Close()

		id, info, configTimestamp, err := findOutput(probe, cfg.Output)
		if err != nil {
			return err
		}

		edid, err := probe.OutputEDID(id)
		if err != nil {
			return fmt.Errorf("probe.OutputEDID: %w", err)
		}
		if len(edid) == 0 {
			return fmt.Errorf("output %q has no EDID, cannot key its records", cfg.Output)
		}
		key = store.Key(edid)
		name = info.Name

		if width == 0 {
			if info.Crtc == 0 {
				return fmt.Errorf("output %q is off, pass -mode", cfg.Output)
			}
			crtc, err := probe.CrtcInfo(info.Crtc, configTimestamp)
			if err != nil {
				return fmt.Errorf("probe.CrtcInfo: %w", err)
			}
			width, height = uint32(crtc.Width), uint32(crtc.Height)
		}
	}

	// reject offsets the target mode cannot satisfy
	regions, err := split.Walk(width, height, cfg.Tree)
	if err != nil {
		return fmt.Errorf("split does not fit %dx%d: %w", width, height, err)
	}

	recs, err := loadRecords(path)
	if err != nil {
		return err
	}

	rec := store.Record{
		Name:   name,
		Key:    key,
		Width:  width,
		Height: height,
		Tree:   split.Encode(cfg.Tree),
	}

	replaced := false
	for i := range recs {
		if recs[i].Key == key && recs[i].Width == width && recs[i].Height == height {
			recs[i] = rec
			replaced = true
		}
	}
	if !replaced {
		recs = append(recs, rec)
	}

	err = store.WriteFile(path, recs)
	if err != nil {
		return fmt.Errorf("store.WriteFile: %w", err)
	}

	label := name
	if label == "" {
		label = shortKey(key)
	}
	fmt.Printf("%s %dx%d: %s -> %d outputs\n", label, width, height, cfg.Tree, len(regions))
	return nil
}

func mainDelete() error {
	cfg, err := config.ParseDeleteFlags(os.Args[2:])
	if err != nil {
		return err
	}

	path, err := configPath(cfg.Path)
	if err != nil {
		return err
	}
	recs, err := loadRecords(path)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("no records in %s", path)
	}

	key := cfg.Key
	if cfg.Output != "" {
		probe, err := core.NewProber(cfg.Display)
		if err != nil {
			return fmt.Errorf("core.NewProber: %w", err)
		}
		defer probe.Close()

		key, err = probeKey(probe, cfg.Output)
		if err != nil {
			return err
		}
	} else {
		key, err = expandKey(recs, key)
		if err != nil {
			return err
		}
	}

	var kept []store.Record
	for _, rec := range recs {
		match := rec.Key == key && (!cfg.HasMode || (rec.Width == cfg.Width && rec.Height == cfg.Height))
		if !match {
			kept = append(kept, rec)
		}
	}

	removed := len(recs) - len(kept)
	if removed == 0 {
		return errors.New("no records match")
	}

	err = store.WriteFile(path, kept)
	if err != nil {
		return fmt.Errorf("store.WriteFile: %w", err)
	}

	fmt.Printf("removed %d record(s)\n", removed)
	return nil
}

// expandKey resolves a key prefix against the stored records.
func expandKey(recs []store.Record, prefix string) (string, error) {
	var match string
	for _, rec := range recs {
		if !strings.HasPrefix(rec.Key, prefix) {
			continue
		}
		if match != "" && match != rec.Key {
			return "", fmt.Errorf("key %q is ambiguous", prefix)
		}
		match = rec.Key
	}

	if match == "" {
		return "", fmt.Errorf("no stored key matches %q", prefix)
	}
	return match, nil
}

func main() {
	// xgb chatters on the stdlib logger otherwise
	core.RouteXGBLogs(logrus.NewEntry(logrus.StandardLogger()))

	subcmd, err := config.GetSubcommand()
	if err != nil {
		logrus.Fatal(err)
	}

	switch subcmd {
	case config.SubcommandOutputs:
		err = mainOutputs()
	case config.SubcommandShow:
		err = mainShow()
	case config.SubcommandSet:
		err = mainSet()
	case config.SubcommandDelete:
		err = mainDelete()
	}
	if err != nil {
		logrus.Fatalf("%s: %s", subcmd, err)
	}
}

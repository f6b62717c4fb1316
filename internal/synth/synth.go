// Package synth turns split configuration records into synthetic randr
// entities. One synthesis pass runs per screen resources reply, so the
// entity set always describes the geometry the client was just told
// about.
package synth

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kndndrj/splitrandr/internal/core"
	"github.com/kndndrj/splitrandr/internal/fake"
	"github.com/kndndrj/splitrandr/internal/split"
	"github.com/kndndrj/splitrandr/internal/store"
	"github.com/kndndrj/splitrandr/internal/wire"
	"github.com/kndndrj/splitrandr/internal/xid"
)

// Prober is the part of core.Prober the synthesizer needs.
type Prober interface {
	OutputEDID(output uint32) ([]byte, error)
	OutputInfo(output, configTimestamp uint32) (*core.ProbedOutput, error)
	CrtcInfo(crtc, configTimestamp uint32) (*core.ProbedCrtc, error)
}

// Synthesizer derives synthetic outputs from the split configuration.
type Synthesizer struct {
	log        *logrus.Entry
	probe      Prober
	configPath string
}

func NewSynthesizer(logger *logrus.Entry, probe Prober, configPath string) *Synthesizer {
	return &Synthesizer{
		log:        logger,
		probe:      probe,
		configPath: configPath,
	}
}

// Synthesize builds the synthetic aggregate for one resources reply.
// Trouble with the config or a single output never fails the pass, the
// affected output simply stays unsplit.
func (s *Synthesizer) Synthesize(res *wire.ScreenResources) *fake.Resources {
	agg := fake.NewResources()

	cfg, err := store.Open(s.configPath)
	if err != nil {
		if errors.Is(err, store.ErrNoConfig) {
			s.log.WithError(err).Debug("no split config, display passes through")
		} else {
			s.log.WithError(err).Warn("unusable split config, display passes through")
		}
		return agg
	}
	defer cfg.Close()

	for _, output := range res.Outputs {
		if err := s.splitOutput(agg, cfg, res, output); err != nil {
			s.log.WithError(err).
				WithField("output", fmt.Sprintf("%#x", output)).
				Warn("output stays unsplit")
		}
	}

	return agg
}

// splitOutput applies the first configuration record that matches the
// output's EDID and current geometry. Records with the right EDID but
// the wrong geometry are skipped, a later record may still apply.
func (s *Synthesizer) splitOutput(agg *fake.Resources, cfg *store.File, res *wire.ScreenResources, output uint32) error {
	edid, err := s.probe.OutputEDID(output)
	if err != nil {
		return fmt.Errorf("probe.OutputEDID: %w", err)
	}
	if len(edid) == 0 {
		// outputs without an EDID are never split
		return nil
	}

	records := cfg.Find(store.Key(edid))
	if len(records) == 0 {
		return nil
	}

	info, err := s.probe.OutputInfo(output, res.ConfigTimestamp)
	if err != nil {
		return fmt.Errorf("probe.OutputInfo: %w", err)
	}
	if info.Crtc == 0 {
		// not driving a crtc, nothing to carve up
		return nil
	}

	crtc, err := s.probe.CrtcInfo(info.Crtc, res.ConfigTimestamp)
	if err != nil {
		return fmt.Errorf("probe.CrtcInfo: %w", err)
	}

	for _, rec := range records {
		if uint32(crtc.Width) != rec.Width || uint32(crtc.Height) != rec.Height {
			s.log.WithFields(logrus.Fields{
				"output": info.Name,
				"record": rec.Name,
			}).Debugf("record wants %dx%d, crtc runs %dx%d",
				rec.Width, rec.Height, crtc.Width, crtc.Height)
			continue
		}

		if err := s.applyRecord(agg, res, output, info, crtc, rec); err != nil {
			return fmt.Errorf("record %q: %w", rec.Name, err)
		}
		return nil
	}

	return nil
}

func (s *Synthesizer) applyRecord(agg *fake.Resources, res *wire.ScreenResources, output uint32, info *core.ProbedOutput, crtc *core.ProbedCrtc, rec store.Record) error {
	tree, err := split.Decode(rec.Tree)
	if err != nil {
		return fmt.Errorf("split.Decode: %w", err)
	}

	regions, err := split.Walk(rec.Width, rec.Height, tree)
	if err != nil {
		return fmt.Errorf("split.Walk: %w", err)
	}
	if len(regions) > xid.MaxGeneration {
		return fmt.Errorf("%d regions, only %d ids per output", len(regions), xid.MaxGeneration)
	}

	var baseMode *wire.ModeInfo
	for i := range res.Modes {
		if res.Modes[i].ID == crtc.Mode {
			baseMode = &res.Modes[i]
			break
		}
	}
	if baseMode == nil {
		s.log.WithField("output", info.Name).
			Debug("crtc mode missing from resources, regions go without modes")
	}

	for i, region := range regions {
		gen := uint32(i + 1)

		outID := xid.Augment(output, gen)
		crtcID := xid.Augment(info.Crtc, gen)

		clones := make([]uint32, len(info.Clones))
		for j, c := range info.Clones {
			clones[j] = xid.Augment(c, gen)
		}

		out := &fake.Output{
			ID:            outID,
			Parent:        output,
			Status:        info.Status,
			Timestamp:     info.Timestamp,
			Crtc:          crtcID,
			MmWidth:       scaleMm(info.MmWidth, region.Width, uint32(crtc.Width)),
			MmHeight:      scaleMm(info.MmHeight, region.Height, uint32(crtc.Height)),
			Connection:    info.Connection,
			SubpixelOrder: info.SubpixelOrder,
			Clones:        clones,
			Name:          fmt.Sprintf("%s~%d", info.Name, gen),
		}

		fc := &fake.Crtc{
			ID:        crtcID,
			Status:    crtc.Status,
			Timestamp: crtc.Timestamp,
			X:         crtc.X + int16(region.X),
			Y:         crtc.Y + int16(region.Y),
			Width:     uint16(region.Width),
			Height:    uint16(region.Height),
			Rotation:  crtc.Rotation,
			Rotations: crtc.Rotations,
			Output:    outID,
		}

		var mode *fake.Mode
		if baseMode != nil {
			m := fake.NewMode(crtcID, *baseMode, region.Width, region.Height)
			mode = &m
		}

		agg.AddSplit(output, info.Crtc, fc, out, mode)
	}

	return nil
}

// scaleMm prorates the parent's physical size onto a region.
func scaleMm(mm, regionPx, fullPx uint32) uint32 {
	if fullPx == 0 {
		return mm
	}
	return mm * regionPx / fullPx
}

package internal

import (
	"fmt"
	"strings"
)

// DashConfig carries the fields DashWriter interpolates into the MPD,
// mirroring client_encoder/dash_writer.h's DashConfig defaults.
type DashConfig struct {
	MinBufferTime             int // seconds
	MediaPresentationDuration int // seconds

	StartTime      int
	PeriodDuration int

	SegmentAlignment   bool
	Type               string
	BitstreamSwitching bool
	MaxWidth           int
	MaxHeight          int
	MaxFrameRate       int

	ContentComponentID int
	ContentType        string

	Timescale      int
	ChunkDuration  int    // milliseconds
	Media          string
	StartNumber    int
	Initialization string

	RepID        string
	MimeType     string
	Codecs       string
	Width        int
	Height       int
	StartWithSAP int
	Bandwidth    int
	FrameRate    int
}

// DefaultDashConfig mirrors DashConfig's C++ constructor defaults.
func DefaultDashConfig() DashConfig {
	return DashConfig{
		MinBufferTime:             1,
		MediaPresentationDuration: 36000,
		StartTime:                 0,
		PeriodDuration:            36000,
		SegmentAlignment:          true,
		Type:                      "dynamic",
		BitstreamSwitching:        false,
		MaxWidth:                  1920,
		MaxHeight:                 1080,
		MaxFrameRate:              60,
		ContentComponentID:        1,
		ContentType:               "video",
		Timescale:                 1000,
		ChunkDuration:             5000,
		StartNumber:               1,
		MimeType:                  "video/webm",
		Codecs:                    "vp8",
		StartWithSAP:              1,
		Bandwidth:                 1000000,
		FrameRate:                 30,
	}
}

// DashWriter builds an MPEG-DASH manifest, XML by hand the way the original
// DashWriter does — no XML library is wired here since the output is a
// small, fixed-shape document entirely under this package's control and no
// other example repo in the corpus pulls in an XML templating dependency
// for anything comparable; see DESIGN.md.
type DashWriter struct {
	name   string
	id     string
	indent int
}

// Init records name and id. WriteManifest derives the default
// SegmentTemplate media/initialization names from name; id does not appear
// in the manifest. Must be called before WriteManifest.
func (d *DashWriter) Init(name, id string) error {
	d.name = name
	d.id = id
	return nil
}

func (d *DashWriter) increaseIndent() { d.indent++ }
func (d *DashWriter) decreaseIndent() { d.indent-- }
func (d *DashWriter) pad() string     { return strings.Repeat("  ", d.indent) }

// WriteManifest renders config into an MPD document following the
// urn:mpeg:dash:profile:isoff-live:2011 live profile.
func (d *DashWriter) WriteManifest(config DashConfig) (string, error) {
	if d.name == "" {
		return "", ErrNotInitialized
	}

	media := fmt.Sprintf("%s_video_$Number$.webm", d.name)
	init := fmt.Sprintf("%s_video_init.webm", d.name)
	if config.Media != "" {
		media = config.Media
	}
	if config.Initialization != "" {
		init = config.Initialization
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(fmt.Sprintf(
		"<MPD xmlns=\"urn:mpeg:dash:schema:mpd:2011\" profiles=\"urn:mpeg:dash:profile:isoff-live:2011\" "+
			"type=\"%s\" minBufferTime=\"PT%dS\" mediaPresentationDuration=\"PT%dS\">\n",
		config.Type, config.MinBufferTime, config.MediaPresentationDuration))
	d.increaseIndent()

	b.WriteString(fmt.Sprintf("%s<Period start=\"PT%dS\" duration=\"PT%dS\">\n",
		d.pad(), config.StartTime, config.PeriodDuration))
	d.increaseIndent()

	b.WriteString(fmt.Sprintf("%s<AdaptationSet segmentAlignment=\"%t\" bitstreamSwitching=\"%t\" "+
		"maxWidth=\"%d\" maxHeight=\"%d\" maxFrameRate=\"%d\">\n",
		d.pad(), config.SegmentAlignment, config.BitstreamSwitching,
		config.MaxWidth, config.MaxHeight, config.MaxFrameRate))
	d.increaseIndent()

	b.WriteString(fmt.Sprintf("%s<ContentComponent id=\"%d\" contentType=\"%s\"/>\n",
		d.pad(), config.ContentComponentID, config.ContentType))

	b.WriteString(fmt.Sprintf("%s<SegmentTemplate timescale=\"%d\" duration=\"%d\" "+
		"media=\"%s\" startNumber=\"%d\" initialization=\"%s\"/>\n",
		d.pad(), config.Timescale, config.ChunkDuration, media, config.StartNumber, init))

	b.WriteString(fmt.Sprintf("%s<Representation id=\"%s\" mimeType=\"%s\" codecs=\"%s\" "+
		"width=\"%d\" height=\"%d\" startWithSAP=\"%d\" bandwidth=\"%d\" frameRate=\"%d\"/>\n",
		d.pad(), config.RepID, config.MimeType, config.Codecs,
		config.Width, config.Height, config.StartWithSAP, config.Bandwidth, config.FrameRate))

	d.decreaseIndent()
	b.WriteString(d.pad() + "</AdaptationSet>\n")
	d.decreaseIndent()
	b.WriteString(d.pad() + "</Period>\n")
	d.decreaseIndent()
	b.WriteString("</MPD>\n")

	d.indent = 0
	return b.String(), nil
}

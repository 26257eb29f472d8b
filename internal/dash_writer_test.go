package internal

import (
	"strings"
	"testing"
)

func TestDashWriterRequiresInit(t *testing.T) {
	d := &DashWriter{}
	if _, err := d.WriteManifest(DefaultDashConfig()); err != ErrNotInitialized {
		t.Fatalf("got %v, want ErrNotInitialized", err)
	}
}

func TestDashWriterManifestShape(t *testing.T) {
	d := &DashWriter{}
	if err := d.Init("stream", "1"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	cfg := DefaultDashConfig()
	cfg.Width = 640
	cfg.Height = 480
	cfg.RepID = "stream"
	manifest, err := d.WriteManifest(cfg)
	if err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}

	for _, want := range []string{
		`profiles="urn:mpeg:dash:profile:isoff-live:2011"`,
		`type="dynamic"`,
		`timescale="1000"`,
		`media="stream_video_$Number$.webm"`,
		`initialization="stream_video_init.webm"`,
		`width="640"`,
		`height="480"`,
		"<ContentComponent",
		"</AdaptationSet>",
		"</Period>",
		"</MPD>",
	} {
		if !strings.Contains(manifest, want) {
			t.Fatalf("manifest missing %q:\n%s", want, manifest)
		}
	}

	// Nesting follows MPD > Period > AdaptationSet with two-space indents.
	if !strings.Contains(manifest, "\n  <Period") {
		t.Fatalf("Period not indented under MPD")
	}
	if !strings.Contains(manifest, "\n    <AdaptationSet") {
		t.Fatalf("AdaptationSet not indented under Period")
	}
	if !strings.HasPrefix(manifest, `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Fatalf("missing XML declaration")
	}
}

func TestDashWriterHonorsTemplateOverrides(t *testing.T) {
	d := &DashWriter{}
	d.Init("stream", "1")
	cfg := DefaultDashConfig()
	cfg.Media = "custom_$Number$.webm"
	cfg.Initialization = "custom_init.webm"
	cfg.StartNumber = 7
	manifest, err := d.WriteManifest(cfg)
	if err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	if !strings.Contains(manifest, `media="custom_$Number$.webm"`) ||
		!strings.Contains(manifest, `startNumber="7"`) {
		t.Fatalf("overrides not applied:\n%s", manifest)
	}
}

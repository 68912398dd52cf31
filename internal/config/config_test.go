package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultCarriesWireFormat(t *testing.T) {
	cfg := Default()

	if cfg.RelayPort != 28282 {
		t.Errorf("RelayPort = %d, want 28282", cfg.RelayPort)
	}
	if cfg.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000", cfg.SampleRate)
	}
	if cfg.Channels != 1 {
		t.Errorf("Channels = %d, want 1", cfg.Channels)
	}
	if cfg.PackageID != "com.micmic.mobilemic" {
		t.Errorf("PackageID = %q", cfg.PackageID)
	}
	if len(cfg.OutputHints) == 0 || len(cfg.CaptureHints) == 0 {
		t.Fatal("default hint lists must not be empty")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "micmic.yaml")

	cfg := Default()
	cfg.OutputLabel = "CABLE Input (VB-Audio Virtual Cable)"
	cfg.CaptureLabel = "CABLE Output (VB-Audio Virtual Cable)"
	cfg.AutoSetDefault = false
	cfg.RelayPort = 29000

	if err := SaveTo(cfg, cfgPath); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	loaded, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.OutputLabel != cfg.OutputLabel {
		t.Errorf("OutputLabel = %q, want %q", loaded.OutputLabel, cfg.OutputLabel)
	}
	if loaded.CaptureLabel != cfg.CaptureLabel {
		t.Errorf("CaptureLabel = %q, want %q", loaded.CaptureLabel, cfg.CaptureLabel)
	}
	if loaded.AutoSetDefault {
		t.Error("AutoSetDefault not persisted")
	}
	if loaded.RelayPort != 29000 {
		t.Errorf("RelayPort = %d, want 29000", loaded.RelayPort)
	}
}

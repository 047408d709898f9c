package config

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RESTAddress == "" {
		t.Error("expected a default REST address")
	}
	if cfg.SignalServerURL == "" {
		t.Error("expected a default signal server URL")
	}
	if cfg.ChunkSize != 256*1024 {
		t.Errorf("expected chunk size 256KiB, got %d", cfg.ChunkSize)
	}
	if cfg.MaxConcurrentTransfers <= 0 {
		t.Error("expected a positive max concurrent transfers")
	}
	if cfg.EventBufferSize <= 0 {
		t.Error("expected a positive event buffer size")
	}
}

func TestLoadConfigFallsBackToDefault(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.RESTAddress != DefaultConfig().RESTAddress {
		t.Errorf("expected LoadConfig to return default REST address, got %q", cfg.RESTAddress)
	}
}

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mizunoh/blobvault/pkg/blob"
)

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := loadConfig(dir)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.RegionSize != blob.DefaultRegionSize {
		t.Errorf("RegionSize = %d, want %d", cfg.RegionSize, blob.DefaultRegionSize)
	}
	if cfg.WipeChunkSize != blob.DefaultWipeChunkSize {
		t.Errorf("WipeChunkSize = %d, want %d", cfg.WipeChunkSize, blob.DefaultWipeChunkSize)
	}
	if cfg.ShareChunkSize <= 0 {
		t.Errorf("ShareChunkSize = %d, want positive", cfg.ShareChunkSize)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	dir := t.TempDir()

	want := Config{
		RegionSize:     1 << 20,
		WipeChunkSize:  1 << 16,
		ShareChunkSize: 1 << 18,
	}
	if err := saveConfig(dir, want); err != nil {
		t.Fatalf("saveConfig() error = %v", err)
	}

	info, err := os.Stat(configPath(dir))
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config mode = %o, want 0600", info.Mode().Perm())
	}

	got, err := loadConfig(dir)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if got != want {
		t.Errorf("loadConfig() = %+v, want %+v", got, want)
	}
}

func TestLoadConfigRepairsInvalidValues(t *testing.T) {
	dir := t.TempDir()

	raw := "region_size: -5\nwipe_chunk_size: 0\nshare_chunk_size: -1\n"
	if err := os.WriteFile(filepath.Join(dir, configFileName), []byte(raw), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := loadConfig(dir)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.RegionSize != blob.DefaultRegionSize {
		t.Errorf("RegionSize = %d, want default", cfg.RegionSize)
	}
	if cfg.WipeChunkSize != blob.DefaultWipeChunkSize {
		t.Errorf("WipeChunkSize = %d, want default", cfg.WipeChunkSize)
	}
	if cfg.ShareChunkSize <= 0 {
		t.Errorf("ShareChunkSize = %d, want positive", cfg.ShareChunkSize)
	}
}

func TestDetectMime(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		content []byte
		want    string
	}{
		{"by extension", "photo.png", nil, "image/png"},
		{"by content", "noext", []byte("plain text content"), "text/plain; charset=utf-8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectMime(tt.path, tt.content)
			if !strings.HasPrefix(got, strings.SplitN(tt.want, ";", 2)[0]) {
				t.Errorf("detectMime(%q) = %q, want prefix %q", tt.path, got, tt.want)
			}
		})
	}
}

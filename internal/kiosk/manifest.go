package kiosk

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const manifestFilename = "manifest.json"

// CountManifest はページ数判定要求に必要な情報を保持します。
type CountManifest struct {
	RequestID string    `json:"requestId"`
	File      InputFile `json:"file"`
	CreatedAt time.Time `json:"createdAt"`
}

// InputFile はアップロードされたファイルのメタデータを表します。
type InputFile struct {
	StoredName   string `json:"storedName"`
	OriginalName string `json:"originalName"`
	MediaType    string `json:"mediaType,omitempty"`
	Size         int64  `json:"size"`
}

func writeManifest(dir string, manifest *CountManifest) error {
	if manifest == nil {
		return fmt.Errorf("manifest is nil")
	}
	path := filepath.Join(dir, manifestFilename)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(manifest)
}

func loadManifest(dir string) (*CountManifest, error) {
	path := filepath.Join(dir, manifestFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var manifest CountManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &manifest, nil
}

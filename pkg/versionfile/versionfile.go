package versionfile

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/twpayne/go-vfs"
)

const (
	DefaultPath = "version.json"

	// DateFormat matches what the packaged application expects to parse
	// back out of version.json at startup.
	DateFormat = "2006-01-02 15:04:05"

	DefaultDescription = "POS Printer Software"
	DefaultBuildType   = "Release"
)

// Metadata is written by the pipeline on every build and read back only by
// the packaged application, never by the pipeline itself.
type Metadata struct {
	Version     string `json:"version"`
	BuildDate   string `json:"build_date"`
	Description string `json:"description"`
	BuildType   string `json:"build_type"`
}

func New(version string, now time.Time) Metadata {
	return Metadata{
		Version:     version,
		BuildDate:   now.Format(DateFormat),
		Description: DefaultDescription,
		BuildType:   DefaultBuildType,
	}
}

// Write rewrites path with meta. When the file already exists its contents
// are merge-patched rather than replaced, so keys relkit does not know
// about survive the rewrite.
func Write(fs vfs.FS, path string, meta Metadata) error {
	if meta.Version == "" {
		return fmt.Errorf("version metadata must carry a non-empty version")
	}

	patch, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	merged := patch
	if existing, err := fs.ReadFile(path); err == nil {
		merged, err = jsonpatch.MergePatch(existing, patch)
		if err != nil {
			return fmt.Errorf("merging existing %s: %v", path, err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	var doc interface{}
	if err := json.Unmarshal(merged, &doc); err != nil {
		return err
	}
	pretty, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return err
	}

	return fs.WriteFile(path, append(pretty, '\n'), 0644)
}

func Read(fs vfs.FS, path string) (*Metadata, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

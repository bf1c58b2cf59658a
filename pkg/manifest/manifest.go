package manifest

import (
	"fmt"
	"path/filepath"
)

// Entry is one file or directory that belongs in the distribution bundle.
// Source may be a local path (relative to the project root) or a go-getter
// URL. Dest is relative to the bundle root and defaults to the source's
// base name.
type Entry struct {
	Name     string
	Source   string
	Dest     string
	Required bool
}

func (e Entry) DestPath() string {
	if e.Dest != "" {
		return e.Dest
	}
	return filepath.Base(e.Source)
}

type Manifest struct {
	Entries []Entry
}

func (m *Manifest) Append(entries ...Entry) {
	m.Entries = append(m.Entries, entries...)
}

func (m *Manifest) Validate() error {
	seen := map[string]string{}
	for _, e := range m.Entries {
		if e.Name == "" {
			return fmt.Errorf("manifest entry with source %q has no name", e.Source)
		}
		if e.Source == "" {
			return fmt.Errorf("manifest entry %q has no source", e.Name)
		}
		dest := e.DestPath()
		if prev, ok := seen[dest]; ok {
			return fmt.Errorf("manifest entries %q and %q both write to %q", prev, e.Name, dest)
		}
		seen[dest] = e.Name
	}
	return nil
}

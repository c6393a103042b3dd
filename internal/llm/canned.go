package llm

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// CannedSet holds the offline payloads an adapter returns when its provider
// is unavailable. Each call returns a fresh copy.
type CannedSet struct {
	raw map[string][]byte
}

// LoadCannedSet reads every <framework>.json file under dir.
func LoadCannedSet(fsys fs.FS, dir string) (*CannedSet, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read canned payloads: %w", err)
	}
	set := &CannedSet{raw: make(map[string][]byte, len(entries))}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read canned payload %s: %w", e.Name(), err)
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("canned payload %s is not valid JSON", e.Name())
		}
		set.raw[strings.TrimSuffix(e.Name(), ".json")] = data
	}
	if _, ok := set.raw["swot"]; !ok {
		return nil, fmt.Errorf("canned payloads missing swot fallback")
	}
	return set, nil
}

// Payload returns the canned payload for frameworkID, falling back to SWOT.
func (s *CannedSet) Payload(frameworkID string) Payload {
	data, ok := s.raw[frameworkID]
	if !ok {
		data = s.raw["swot"]
	}
	var out map[string]any
	_ = json.Unmarshal(data, &out)
	return out
}

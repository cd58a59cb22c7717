package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ManifestEntry is one row of the dashboard manifest: a semantic
// Type from the parser plugin, the file name (inside the dashboard
// directory) of the generated JSON, and the raw data file it describes.
type ManifestEntry struct {
	Type    string `json:"type"`
	DDJSON  string `json:"dd_json"`
	RawData string `json:"raw_data"`
}

// ReadManifest loads the dashboard manifest, or an empty one if it
// doesn't exist yet.
func ReadManifest(path string) ([]ManifestEntry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dashboard manifest %s: %w", path, err)
	}
	var entries []ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse dashboard manifest %s: %w", path, err)
	}
	return entries, nil
}

// WriteManifest rewrites the manifest wholesale, sorted by raw_data
// for deterministic diffs between runs.
func WriteManifest(path string, entries []ManifestEntry) error {
	sort.Slice(entries, func(i, j int) bool { return entries[i].RawData < entries[j].RawData })
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dashboard manifest: %w", err)
	}
	return atomicWriteFile(path, data, 0o644)
}

// UpsertEntry sets or replaces the manifest entry for rawData, keyed
// by raw_data, returning the updated slice.
func UpsertEntry(entries []ManifestEntry, entry ManifestEntry) []ManifestEntry {
	for i, e := range entries {
		if e.RawData == entry.RawData {
			entries[i] = entry
			return entries
		}
	}
	return append(entries, entry)
}

// RemoveEntry deletes the manifest entry for rawData (if present) and
// deletes its orphaned dd_json file under dashboardDir. Absence of
// either is not an error.
func RemoveEntry(entries []ManifestEntry, rawData, dashboardDir string) []ManifestEntry {
	out := entries[:0]
	for _, e := range entries {
		if e.RawData == rawData {
			if e.DDJSON != "" {
				_ = os.Remove(filepath.Join(dashboardDir, filepath.Base(e.DDJSON)))
			}
			continue
		}
		out = append(out, e)
	}
	return out
}

// UpdateDashboard applies a parser plugin's output for one raw data
// file: writes ddJSON under dashboardDir/<stem>.json and upserts the
// manifest entry for it. A nil/empty pluginJSON (the plugin produced
// no usable output) instead removes any existing entry, per spec §4.7.
func UpdateDashboard(cruiseID, manifestPath, dashboardDir, rawDataRelPath, dataType string, pluginJSON []byte) error {
	lock := lockFor(cruiseID)
	lock.Lock()
	defer lock.Unlock()

	entries, err := ReadManifest(manifestPath)
	if err != nil {
		return err
	}

	if len(pluginJSON) == 0 {
		entries = RemoveEntry(entries, rawDataRelPath, dashboardDir)
		return WriteManifest(manifestPath, entries)
	}

	var probe map[string]any
	if err := json.Unmarshal(pluginJSON, &probe); err != nil {
		entries = RemoveEntry(entries, rawDataRelPath, dashboardDir)
		return WriteManifest(manifestPath, entries)
	}
	if _, hasError := probe["error"]; hasError {
		entries = RemoveEntry(entries, rawDataRelPath, dashboardDir)
		return WriteManifest(manifestPath, entries)
	}

	stem := rawDataRelPath
	if ext := filepath.Ext(stem); ext != "" {
		stem = stem[:len(stem)-len(ext)]
	}
	ddFilename := filepath.Base(stem) + ".json"
	ddPath := filepath.Join(dashboardDir, ddFilename)

	if err := atomicWriteFile(ddPath, pluginJSON, 0o644); err != nil {
		return err
	}

	entries = UpsertEntry(entries, ManifestEntry{
		Type:    dataType,
		DDJSON:  ddFilename,
		RawData: rawDataRelPath,
	})
	return WriteManifest(manifestPath, entries)
}

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/monitoring-gap-etl/internal/config"
	"github.com/spf13/cobra"
)

// addManifestFlags registers the flags that select sources and coordinates.
func addManifestFlags(cmd *cobra.Command) {
	cmd.Flags().String("sources", "", "YAML sources manifest")
	cmd.Flags().StringArray("source", nil, "source as label=path[,path...] (repeatable)")
	cmd.Flags().StringSlice("coords", nil, "coordinate table CSV files (default: derived from sources)")
}

// manifestFromFlags builds the run manifest from --sources, then appends
// every --source flag. --coords replaces the manifest's coordinate files.
func manifestFromFlags(cmd *cobra.Command) (*config.Manifest, error) {
	sourcesFile, _ := cmd.Flags().GetString("sources")
	sourceFlags, _ := cmd.Flags().GetStringArray("source")
	coords, _ := cmd.Flags().GetStringSlice("coords")

	if sourcesFile == "" && len(sourceFlags) == 0 {
		return nil, errors.New("no sources given: use --sources or --source")
	}

	m := &config.Manifest{}
	if sourcesFile != "" {
		loaded, err := config.LoadManifest(sourcesFile)
		if err != nil {
			return nil, err
		}
		m = loaded
	}
	for _, v := range sourceFlags {
		spec, err := parseSourceFlag(v)
		if err != nil {
			return nil, err
		}
		m.Sources = append(m.Sources, spec)
	}
	if len(coords) > 0 {
		m.Coordinates.Paths = coords
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// parseSourceFlag parses "label=path1,path2".
func parseSourceFlag(v string) (config.SourceSpec, error) {
	label, rawPaths, ok := strings.Cut(v, "=")
	label = strings.TrimSpace(label)
	if !ok || label == "" {
		return config.SourceSpec{}, fmt.Errorf("invalid --source %q: want label=path[,path...]", v)
	}

	var paths []string
	for _, p := range strings.Split(rawPaths, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return config.SourceSpec{}, fmt.Errorf("invalid --source %q: no paths", v)
	}
	return config.SourceSpec{Label: label, Paths: paths}, nil
}

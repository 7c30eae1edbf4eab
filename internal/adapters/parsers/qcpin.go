package parsers

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-json"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/rows"
)

// ParseQCPin decodes a QC pin file: one JSON object holding an
// "interrogation" entry and one entry per range reply.
func ParseQCPin(ctx context.Context, path string, profile Timing) ([]*rows.Shot, []*rows.Acoustic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read %s: %v", asset.ErrParse, path, err)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", asset.ErrParse, path, err)
	}

	b := &shotBuilder{profile: profile}
	if raw, ok := entries["interrogation"]; ok {
		var ev sv3Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, nil, fmt.Errorf("%w: %s interrogation: %v", asset.ErrParse, path, err)
		}
		b.interrogation(&ev)
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		if k != "interrogation" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		var ev sv3Event
		if err := json.Unmarshal(entries[k], &ev); err != nil {
			return nil, nil, fmt.Errorf("%w: %s entry %s: %v", asset.ErrParse, path, k, err)
		}
		b.reply(&ev)
	}
	return b.shots, b.acoustic, nil
}

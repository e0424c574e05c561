package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/conduit/internal/ir"
	"github.com/roach88/conduit/internal/querysql"
)

// marshalPayload converts a payload to canonical JSON TEXT for storage.
func marshalPayload(payload ir.IRObject) (string, error) {
	if payload == nil {
		payload = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// unmarshalPayload parses stored canonical JSON TEXT. Integers keep full
// precision via json.Number.
func unmarshalPayload(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	obj, err := ir.ParseObject([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return obj, nil
}

func marshalTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func unmarshalTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unmarshal received_at: %w", err)
	}
	return t, nil
}

func marshalPeaks(peaks []string) (string, error) {
	if peaks == nil {
		peaks = []string{}
	}
	data, err := json.Marshal(peaks)
	if err != nil {
		return "", fmt.Errorf("marshal peaks: %w", err)
	}
	return string(data), nil
}

func unmarshalPeaks(data string) ([]string, error) {
	var peaks []string
	if err := json.Unmarshal([]byte(data), &peaks); err != nil {
		return nil, fmt.Errorf("unmarshal peaks: %w", err)
	}
	return peaks, nil
}

// indexEntry is one row of index_entries before its sequence is known.
type indexEntry struct {
	path  string
	value string
}

// indexEntries extracts the index rows for payload over the given paths.
// A path absent from the payload yields no entry, so filters on it never
// match that event.
func indexEntries(payload ir.IRObject, paths []string) ([]indexEntry, error) {
	var entries []indexEntry
	for _, path := range paths {
		rest, ok := strings.CutPrefix(path, ir.PayloadPrefix)
		if !ok {
			continue
		}
		v, ok := ir.Lookup(payload, rest)
		if !ok {
			continue
		}
		value, err := querysql.IndexValue(v)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", path, err)
		}
		entries = append(entries, indexEntry{path: path, value: value})
	}
	return entries, nil
}

// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package storage

import (
	"bytes"
	stdJSON "encoding/json"
	"errors"
	"fmt"
	"sort"

	errs "github.com/AzureAD/msal-go-token-cache/apps/errors"
	"github.com/AzureAD/msal-go-token-cache/apps/internal/json"
	"github.com/AzureAD/msal-go-token-cache/apps/internal/logger"
)

// FormatCurrent names the JSON contract in CorruptCacheError.
const FormatCurrent = "current"

// SkippedEntity describes an entity that Deserialize could not use.
type SkippedEntity struct {
	Section string
	Key     string
	Err     error
}

// Report lists what Deserialize dropped. Dropped data never fails a deserialization.
type Report struct {
	Skipped []SkippedEntity
	// SkippedSections are known sections whose value was not a JSON object.
	SkippedSections []string
}

// Empty reports whether nothing was dropped.
func (r Report) Empty() bool {
	return len(r.Skipped) == 0 && len(r.SkippedSections) == 0
}

// Serialize writes the contents of a as the JSON contract shared by MSAL libraries: an object
// with one section per entity kind, each an object keyed by canonical key. Every section is
// always written; the AppMetadata section marks the document as the current format. Unknown
// sections read by Deserialize are written back unchanged.
func Serialize(a *Accessor) ([]byte, error) {
	entities, sections := a.snapshot()

	doc := make(map[string]stdJSON.RawMessage, len(Kinds)+len(sections))
	for k, v := range sections {
		doc[k] = v
	}
	for _, kind := range Kinds {
		section := make(map[string]stdJSON.RawMessage, len(entities[kind]))
		for key, e := range entities[kind] {
			b, err := json.Marshal(e)
			if err != nil {
				return nil, fmt.Errorf("could not marshal %s %q: %w", kind, key, err)
			}
			section[key] = b
		}
		b, err := json.Marshal(section)
		if err != nil {
			return nil, err
		}
		doc[kind.String()] = b
	}
	return json.Marshal(doc)
}

// Deserialize replaces the contents of a with the document in b.
//
// Empty input, null and JSON that is not an object yield an empty cache. Input that is not
// JSON at all also empties the cache, and returns a *errors.CorruptCacheError so the host can
// decide to delete the persisted data. Each entity decodes on its own: one that is malformed
// or fails validation is skipped, logged and listed in the Report. Entities are stored under
// their canonical key whatever key the document used. Deserialize never reports a change
// to the OnChange callback.
func Deserialize(b []byte, a *Accessor) (Report, error) {
	report := Report{}
	entities := newEntityMaps()
	sections := map[string]stdJSON.RawMessage{}

	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		a.replace(entities, sections)
		return report, nil
	}

	top := map[string]stdJSON.RawMessage{}
	if err := stdJSON.Unmarshal(trimmed, &top); err != nil {
		a.replace(entities, sections)
		var typeErr *stdJSON.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			a.log.Info("cache data is not a JSON object, starting with an empty cache", logger.Field("type", typeErr.Value))
			return report, nil
		}
		return report, &errs.CorruptCacheError{Format: FormatCurrent, Size: len(b), Err: err}
	}

	for _, kind := range Kinds {
		raw, ok := top[kind.String()]
		if !ok {
			continue
		}
		delete(top, kind.String())
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			continue
		}

		records := map[string]stdJSON.RawMessage{}
		if err := stdJSON.Unmarshal(raw, &records); err != nil {
			report.SkippedSections = append(report.SkippedSections, kind.String())
			a.log.Warn("skipped cache section that is not an object", logger.Field("section", kind.String()), logger.Field("error", err))
			continue
		}

		keys := make([]string, 0, len(records))
		for k := range records {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			e, err := decodeEntity(kind, records[key])
			if err == nil {
				err = e.Validate()
			}
			if err != nil {
				report.Skipped = append(report.Skipped, SkippedEntity{Section: kind.String(), Key: key, Err: err})
				a.log.Warn("skipped malformed cache entity", logger.Field("section", kind.String()), logger.Field("key", key), logger.Field("error", err))
				continue
			}
			canonical := e.Key().String()
			if canonical != key {
				a.log.Debug("cache entity stored under its canonical key", logger.Field("key", key), logger.Field("canonical", canonical))
			}
			entities[kind][canonical] = e
		}
	}
	for k, v := range top {
		sections[k] = v
	}

	a.replace(entities, sections)
	if !report.Empty() {
		a.log.Warn("cache deserialized with skipped data",
			logger.Field("skippedEntities", len(report.Skipped)), logger.Field("skippedSections", len(report.SkippedSections)))
	}
	return report, nil
}

func decodeEntity(kind Kind, raw []byte) (Entity, error) {
	switch kind {
	case KindAccessToken:
		e := AccessToken{}
		err := json.Unmarshal(raw, &e)
		return e, err
	case KindRefreshToken:
		e := RefreshToken{}
		err := json.Unmarshal(raw, &e)
		return e, err
	case KindIDToken:
		e := IDToken{}
		err := json.Unmarshal(raw, &e)
		return e, err
	case KindAccount:
		e := Account{}
		err := json.Unmarshal(raw, &e)
		return e, err
	case KindAppMetaData:
		e := AppMetaData{}
		err := json.Unmarshal(raw, &e)
		return e, err
	}
	return nil, fmt.Errorf("unknown entity kind %s", kind)
}

// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package legacy translates between the cache and the single-blob format written by older
// clients: a JSON object with the sections access_tokens, refresh_tokens, id_tokens and
// accounts, each an array of strings that each hold one JSON encoded record.
//
// Old and new clients may share one store, so the Bridge never drops what it cannot
// understand. Records that fail to parse, unknown top-level keys and records that have not
// changed since they were imported are written back exactly as they were read.
package legacy

import (
	"bytes"
	stdJSON "encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"sync"

	errs "github.com/AzureAD/msal-go-token-cache/apps/errors"
	"github.com/AzureAD/msal-go-token-cache/apps/internal/json"
	"github.com/AzureAD/msal-go-token-cache/apps/internal/logger"
	"github.com/AzureAD/msal-go-token-cache/apps/internal/storage"
)

// Format names the legacy format in CorruptCacheError.
const Format = "legacy"

type original struct {
	raw stdJSON.RawMessage
	rec interface{}
}

// Bridge imports legacy documents into an Accessor and exports an Accessor as a legacy
// document. It remembers what the last Import read so Export can write it back. A Bridge is
// safe for concurrent use.
type Bridge struct {
	log *slog.Logger

	mu          sync.Mutex
	originals   map[storage.Kind]map[string]original
	unparseable map[string][]stdJSON.RawMessage
	extra       map[string]stdJSON.RawMessage
}

// New is the constructor for Bridge. log may be nil.
func New(log *slog.Logger) *Bridge {
	b := &Bridge{log: logger.Component(log, "legacy")}
	b.reset()
	return b
}

// reset must be called with b.mu held, or before b is shared.
func (b *Bridge) reset() {
	b.originals = map[storage.Kind]map[string]original{}
	for _, kind := range sectionKinds {
		b.originals[kind] = map[string]original{}
	}
	b.unparseable = map[string][]stdJSON.RawMessage{}
	b.extra = map[string]stdJSON.RawMessage{}
}

// decodeDocument returns the top-level object of data. A nil map and nil error mean the
// document holds no data.
func decodeDocument(data []byte) (map[string]stdJSON.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	doc := map[string]stdJSON.RawMessage{}
	if err := stdJSON.Unmarshal(trimmed, &doc); err != nil {
		var typeErr *stdJSON.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, nil
		}
		return nil, &errs.CorruptCacheError{Format: Format, Size: len(data), Err: err}
	}
	return doc, nil
}

// decodeRecord decodes one array element of section.
func decodeRecord(section string, elem stdJSON.RawMessage) (interface{}, storage.Entity, error) {
	var s string
	if err := stdJSON.Unmarshal(elem, &s); err != nil {
		return nil, nil, fmt.Errorf("record is not a JSON string: %w", err)
	}

	var (
		rec interface{}
		err error
	)
	switch section {
	case SectionAccessTokens:
		r := AccessTokenRecord{}
		err = json.Unmarshal([]byte(s), &r)
		rec = r
	case SectionRefreshTokens:
		r := RefreshTokenRecord{}
		err = json.Unmarshal([]byte(s), &r)
		rec = r
	case SectionIDTokens:
		r := IDTokenRecord{}
		err = json.Unmarshal([]byte(s), &r)
		rec = r
	case SectionAccounts:
		r := AccountRecord{}
		err = json.Unmarshal([]byte(s), &r)
		rec = r
	default:
		return nil, nil, fmt.Errorf("unknown legacy section %q", section)
	}
	if err != nil {
		return nil, nil, err
	}

	var e storage.Entity
	switch r := rec.(type) {
	case AccessTokenRecord:
		e = r.entity()
	case RefreshTokenRecord:
		e = r.entity()
	case IDTokenRecord:
		e = r.entity()
	case AccountRecord:
		e = r.entity()
	}
	if err := e.Validate(); err != nil {
		return nil, nil, err
	}
	return rec, e, nil
}

// Import reads a legacy document into dst. Legacy data is authoritative: a record replaces
// the entity with the same key, unless the entity already says the same thing, in which case
// the entity keeps the fields the legacy format cannot carry. Each record is parsed on its
// own; failures are skipped and reported. Import does not report a change to dst's OnChange
// callback. Input that is not JSON returns a *errors.CorruptCacheError and leaves dst as is.
func (b *Bridge) Import(data []byte, dst *storage.Accessor) (storage.Report, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	report := storage.Report{}
	b.reset()

	doc, err := decodeDocument(data)
	if err != nil {
		return report, err
	}

	var load []storage.Entity
	for _, section := range sections {
		raw, ok := doc[section]
		if !ok {
			continue
		}
		delete(doc, section)
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			continue
		}

		var elems []stdJSON.RawMessage
		if err := stdJSON.Unmarshal(raw, &elems); err != nil {
			report.SkippedSections = append(report.SkippedSections, section)
			b.log.Warn("skipped legacy section that is not an array", logger.Field("section", section), logger.Field("error", err))
			continue
		}

		kind := sectionKinds[section]
		for i, elem := range elems {
			rec, e, err := decodeRecord(section, elem)
			if err != nil {
				b.unparseable[section] = append(b.unparseable[section], elem)
				report.Skipped = append(report.Skipped, storage.SkippedEntity{Section: section, Key: strconv.Itoa(i), Err: err})
				b.log.Warn("retained legacy record that could not be parsed", logger.Field("section", section), logger.Field("index", i), logger.Field("error", err))
				continue
			}

			key := e.Key().String()
			b.originals[kind][key] = original{raw: elem, rec: rec}
			if existing, ok := dst.Get(kind, key); ok && sameRecord(record(existing), rec) {
				continue
			}
			load = append(load, e)
		}
	}
	for k, v := range doc {
		b.extra[k] = v
	}

	dst.Load(load...)
	b.log.Debug("imported legacy cache", logger.Field("entities", len(load)), logger.Field("skipped", len(report.Skipped)))
	return report, nil
}

func sameRecord(a, b interface{}) bool {
	return reflect.DeepEqual(withoutExtras(a), withoutExtras(b))
}

// Export writes every access token, refresh token, id token and account of src as a legacy
// document, followed by the records and top-level keys the last Import could not parse.
func (b *Bridge) Export(src *storage.Accessor) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc := make(map[string]stdJSON.RawMessage, len(b.extra)+len(sections))
	for k, v := range b.extra {
		doc[k] = v
	}

	for _, section := range sections {
		kind := sectionKinds[section]
		elems := []stdJSON.RawMessage{}
		for _, e := range src.All(kind) {
			rec := record(e)
			orig, imported := b.originals[kind][e.Key().String()]
			if imported && sameRecord(orig.rec, rec) {
				elems = append(elems, orig.raw)
				continue
			}
			if imported {
				rec = withExtras(rec, extrasOf(orig.rec))
			}
			inner, err := json.Marshal(rec)
			if err != nil {
				return nil, fmt.Errorf("could not marshal legacy %s record: %w", section, err)
			}
			elem, err := stdJSON.Marshal(string(inner))
			if err != nil {
				return nil, err
			}
			elems = append(elems, elem)
		}
		elems = append(elems, b.unparseable[section]...)

		raw, err := stdJSON.Marshal(elems)
		if err != nil {
			return nil, err
		}
		doc[section] = raw
	}
	return json.Marshal(doc)
}

// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package json provides functions for marshalling and unmarshalling types to JSON. These
// functions are a thin layer over encoding/json that add one feature: a struct may carry a
// field named AdditionalFields of type map[string]interface{}. On Unmarshal, every JSON
// field that does not map to a struct field is stored there as a json.RawMessage. On Marshal,
// the content of AdditionalFields is written back next to the struct's own fields.
//
// This lets the cache read documents written by newer (or foreign) MSAL libraries and write
// them back without dropping fields it does not understand.
package json

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

const addField = "AdditionalFields"

var (
	mapStrInterType = reflect.TypeOf(map[string]interface{}{})
	unmarshalerType = reflect.TypeOf((*json.Unmarshaler)(nil)).Elem()
	marshalerType   = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
)

// Marshal is used to marshal a type into its JSON representation. It
// wraps the stdlib calls in order to marshal a struct or *struct so
// that a field called "AdditionalFields" of type map[string]interface{}
// with "-" used inside struct tag `json:"-"` can be marshalled as if
// they were fields within the struct.
func Marshal(i interface{}) ([]byte, error) {
	v := reflect.ValueOf(i)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return []byte("null"), nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct || v.Type().Implements(marshalerType) {
		return json.Marshal(i)
	}
	return marshalStruct(v)
}

// Unmarshal unmarshals a []byte representing JSON into i, which must be a *struct. In addition,
// if the struct has a field called AdditionalFields of type map[string]interface{}, JSON data
// representing fields not in the struct will be written as key/value pairs to AdditionalFields.
func Unmarshal(b []byte, i interface{}) error {
	if len(b) == 0 {
		return nil
	}

	v := reflect.ValueOf(i)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("json.Unmarshal() received type %T, which is not a *struct", i)
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("json.Unmarshal() received type %T, which is not a *struct", i)
	}
	return unmarshalStruct(b, v)
}

// MarshalRaw marshals i into a json.RawMessage. If I cannot be marshalled,
// this will panic. This is exposed to help test AdditionalField values
// which are stored as json.RawMessage.
func MarshalRaw(i interface{}) json.RawMessage {
	b, err := json.Marshal(i)
	if err != nil {
		panic(err)
	}
	return json.RawMessage(b)
}

// additionalFields returns the AdditionalFields value of struct v, if it has one.
func additionalFields(v reflect.Value) (reflect.Value, bool, error) {
	f, ok := v.Type().FieldByName(addField)
	if !ok {
		return reflect.Value{}, false, nil
	}
	if f.Type != mapStrInterType {
		return reflect.Value{}, false, fmt.Errorf("type %s has field %s that is %s, must be map[string]interface{}", v.Type(), addField, f.Type)
	}
	return v.FieldByIndex(f.Index), true, nil
}

// hasAdditionalFields reports if t is a struct (or *struct) that should be handled
// by this package rather than by encoding/json directly.
func hasAdditionalFields(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	if t.Implements(unmarshalerType) || reflect.PointerTo(t).Implements(unmarshalerType) {
		return false
	}
	_, ok := t.FieldByName(addField)
	return ok
}

type fieldInfo struct {
	name      string
	omitEmpty bool
	index     int
}

// fields returns the JSON visible fields of struct type t, excluding AdditionalFields.
func fields(t reflect.Type) []fieldInfo {
	var out []fieldInfo
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Name == addField {
			continue
		}
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if name == "" {
			name = f.Name
		}
		out = append(out, fieldInfo{
			name:      name,
			omitEmpty: strings.Contains(opts, "omitempty"),
			index:     i,
		})
	}
	return out
}

func marshalStruct(v reflect.Value) ([]byte, error) {
	af, hasAF, err := additionalFields(v)
	if err != nil {
		return nil, err
	}

	out := map[string]json.RawMessage{}
	for _, fi := range fields(v.Type()) {
		fv := v.Field(fi.index)
		if fi.omitEmpty && fv.IsZero() {
			continue
		}
		var b []byte
		if hasAdditionalFields(fv.Type()) {
			b, err = Marshal(fv.Interface())
		} else {
			b, err = json.Marshal(fv.Interface())
		}
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fi.name, err)
		}
		out[fi.name] = b
	}

	if hasAF && !af.IsNil() {
		iter := af.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			if _, ok := out[k]; ok {
				// A real field always wins over a stale additional field.
				continue
			}
			b, err := json.Marshal(iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("additional field %s: %w", k, err)
			}
			out[k] = b
		}
	}
	return writeObject(out)
}

// writeObject writes m as a JSON object with keys in sorted order.
func writeObject(m map[string]json.RawMessage) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := bytes.Buffer{}
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(m[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func unmarshalStruct(b []byte, v reflect.Value) error {
	af, hasAF, err := additionalFields(v)
	if err != nil {
		return err
	}

	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	for _, fi := range fields(v.Type()) {
		msg, ok := raw[fi.name]
		if !ok {
			continue
		}
		delete(raw, fi.name)
		if err := decodeField(msg, v.Field(fi.index)); err != nil {
			return fmt.Errorf("field %s: %w", fi.name, err)
		}
	}

	if hasAF && len(raw) > 0 {
		m := make(map[string]interface{}, len(raw))
		for k, r := range raw {
			m[k] = r
		}
		af.Set(reflect.ValueOf(m))
	}
	return nil
}

func decodeField(msg json.RawMessage, fv reflect.Value) error {
	if !hasAdditionalFields(fv.Type()) {
		return json.Unmarshal(msg, fv.Addr().Interface())
	}
	if bytes.Equal(bytes.TrimSpace(msg), []byte("null")) {
		return nil
	}
	if fv.Kind() == reflect.Ptr {
		if fv.IsNil() {
			fv.Set(reflect.New(fv.Type().Elem()))
		}
		fv = fv.Elem()
	}
	return unmarshalStruct(msg, fv)
}

package staff

import (
	"encoding/json"
	"maps"
	"reflect"
	"strings"
)

// recordFields has Record's layout without its JSON methods.
type recordFields Record

// recordKeys are the top-level member names Record maps to typed fields.
var recordKeys = jsonNames(reflect.TypeOf(recordFields{}))

func jsonNames(t reflect.Type) map[string]struct{} {
	names := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			continue
		case "":
			name = f.Name
		}
		names[name] = struct{}{}
	}
	return names
}

// UnmarshalJSON decodes the typed fields and keeps every other top-level
// member: strings land in Extra, anything else is carried verbatim.
func (r *Record) UnmarshalJSON(data []byte) error {
	var known recordFields
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	*r = Record(known)
	for key, raw := range members {
		if _, ok := recordKeys[key]; ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if r.Extra == nil {
				r.Extra = make(map[string]string)
			}
			r.Extra[key] = s
			continue
		}
		if r.opaque == nil {
			r.opaque = make(map[string]json.RawMessage)
		}
		r.opaque[key] = raw
	}
	return nil
}

// MarshalJSON writes Extra and the carried members back at the top level.
// A typed field always wins over an extra member of the same name.
func (r Record) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(recordFields(r))
	if err != nil || (len(r.Extra) == 0 && len(r.opaque) == 0) {
		return base, err
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(base, &members); err != nil {
		return nil, err
	}
	for key, raw := range r.opaque {
		if _, ok := recordKeys[key]; !ok {
			members[key] = raw
		}
	}
	for key, value := range r.Extra {
		if _, ok := recordKeys[key]; ok {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		members[key] = raw
	}
	return json.Marshal(members)
}

// keepUnknown carries stored members the editor did not send back.
func keepUnknown(dst *Record, stored Record) {
	for key, value := range stored.Extra {
		if _, ok := dst.Extra[key]; ok {
			continue
		}
		if _, ok := dst.opaque[key]; ok {
			continue
		}
		if dst.Extra == nil {
			dst.Extra = make(map[string]string)
		}
		dst.Extra[key] = value
	}
	for key, raw := range stored.opaque {
		if _, ok := dst.opaque[key]; ok {
			continue
		}
		if _, ok := dst.Extra[key]; ok {
			continue
		}
		if dst.opaque == nil {
			dst.opaque = make(map[string]json.RawMessage)
		}
		dst.opaque[key] = raw
	}
}

func cloneUnknown(r Record) Record {
	r.Extra = maps.Clone(r.Extra)
	r.opaque = maps.Clone(r.opaque)
	return r
}

package cookiestore

import (
	"errors"
	"fmt"
	"net/url"
	"sort"

	"github.com/goccy/go-json"
)

var errMalformed = errors.New("cookiestore: malformed cookie")

type entry struct {
	Value   json.RawMessage `json:"value"`
	Session bool            `json:"session"`
}

// data is the namespace payload as it appears in the cookie:
// {"storage": {<key>: {"value": ..., "session": bool}}, "keys": [<key>, ...]}.
type data struct {
	Storage map[string]entry `json:"storage"`
	Keys    []string         `json:"keys"`
}

func emptyData() data {
	return data{Storage: map[string]entry{}, Keys: []string{}}
}

func (d data) clone() data {
	out := data{Storage: make(map[string]entry, len(d.Storage)), Keys: append([]string{}, d.Keys...)}
	for k, e := range d.Storage {
		out.Storage[k] = e
	}
	return out
}

// parse decodes a raw cookie value. The keys list is reconciled with the
// storage map so both always name the same set: unknown or duplicate keys
// are dropped and stored names missing from keys are appended.
func parse(raw string) (data, error) {
	unescaped, err := url.QueryUnescape(raw)
	if err != nil {
		return data{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	var shape struct {
		Storage *map[string]entry `json:"storage"`
		Keys    *[]string         `json:"keys"`
	}
	if err := json.Unmarshal([]byte(unescaped), &shape); err != nil {
		return data{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if shape.Storage == nil || shape.Keys == nil {
		return data{}, fmt.Errorf("%w: missing storage or keys", errMalformed)
	}

	d := emptyData()
	for k, e := range *shape.Storage {
		if len(e.Value) == 0 {
			e.Value = json.RawMessage("null")
		}
		d.Storage[k] = e
	}
	seen := make(map[string]bool, len(*shape.Keys))
	for _, k := range *shape.Keys {
		if _, ok := d.Storage[k]; ok && !seen[k] {
			seen[k] = true
			d.Keys = append(d.Keys, k)
		}
	}
	for _, k := range sortedMissing(d.Storage, seen) {
		d.Keys = append(d.Keys, k)
	}
	return d, nil
}

func encode(d data) (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return url.QueryEscape(string(b)), nil
}

func sortedMissing(storage map[string]entry, seen map[string]bool) []string {
	var out []string
	for k := range storage {
		if !seen[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

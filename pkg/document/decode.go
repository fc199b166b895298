package document

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Decode fills out from the flat field map using mapstructure tags and
// returns the fields that out has no slot for. Numbers are converted between
// widths and strings are accepted for numeric fields.
func Decode(in map[string]any, out any) (map[string]any, error) {
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata:         &md,
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating decoder: %w", err)
	}
	if err := dec.Decode(in); err != nil {
		return nil, err
	}

	if len(md.Unused) == 0 {
		return nil, nil
	}
	extra := make(map[string]any, len(md.Unused))
	for _, k := range md.Unused {
		if v, ok := in[k]; ok {
			extra[k] = v
		}
	}
	return extra, nil
}

type fieldWriter struct {
	doc Document
}

func (w fieldWriter) str(name, v string) {
	if v != "" {
		w.doc[name] = v
	}
}

func (w fieldWriter) int(name string, v *int64) {
	if v != nil {
		w.doc[name] = *v
	}
}

func (w fieldWriter) float(name string, v *float64) {
	if v != nil {
		w.doc[name] = *v
	}
}

func (w fieldWriter) strs(name string, v []string) {
	if len(v) > 0 {
		w.doc[name] = append([]string(nil), v...)
	}
}

// extra merges unknown fields back in without overriding typed ones.
func (w fieldWriter) extra(fields map[string]any) {
	for k, v := range fields {
		if _, ok := w.doc[k]; ok || v == nil {
			continue
		}
		w.doc[k] = v
	}
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

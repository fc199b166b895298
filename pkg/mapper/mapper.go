// Package mapper flattens genome and taxon source objects into search
// documents. Mapping is pure: it performs no I/O and the same input always
// produces the same output.
package mapper

import (
	"errors"
	"fmt"
	"time"

	"github.com/araddon/dateparse"
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/mapstructure"
)

// ErrMalformedSourceObject is returned when an object lacks a required
// identifying field or has a shape that cannot be mapped. It is never retried.
var ErrMalformedSourceObject = errors.New("malformed source object")

// Mapper converts source objects to documents.
type Mapper struct {
	logger hclog.Logger
}

// New creates a Mapper.
func New(logger hclog.Logger) *Mapper {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Mapper{logger: logger.Named("mapper")}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedSourceObject, fmt.Sprintf(format, args...))
}

// decode fills out from a source object body. Scalars are converted between
// types where the conversion is lossless enough for indexing (11 -> "11",
// "11" -> 11, true -> 1).
func decode(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// normalizeDate renders a save date as RFC 3339 in UTC. Unparseable values
// are kept as given.
func normalizeDate(s string) string {
	if s == "" {
		return ""
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return s
	}
	return t.UTC().Format(time.RFC3339)
}

// flatExtra keeps the unknown fields that can be stored in a flat document:
// scalars and lists of scalars.
func flatExtra(extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return nil
	}
	out := make(map[string]any, len(extra))
	for k, v := range extra {
		switch t := v.(type) {
		case string, bool, int, int64, float64:
			out[k] = v
		case []any:
			ok := true
			for _, e := range t {
				switch e.(type) {
				case string, bool, int, int64, float64:
				default:
					ok = false
				}
			}
			if ok {
				out[k] = v
			}
		case []string:
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

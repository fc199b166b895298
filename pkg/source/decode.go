package source

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Format is the encoding of a stored object file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromKey picks a format from a file name or object key extension.
func FormatFromKey(key string) Format {
	switch strings.ToLower(path.Ext(key)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// DecodeObject decodes a stored file body. Files may either hold the bare
// object or an envelope of the form {"info": {...}, "data": {...}}.
func DecodeObject(ref Reference, body []byte, format Format) (*Object, error) {
	raw := map[string]any{}
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("error decoding yaml object %s: %w", ref, err)
		}
	default:
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("error decoding json object %s: %w", ref, err)
		}
	}

	data, ok := raw["data"].(map[string]any)
	if !ok {
		return &Object{Ref: ref, Data: raw}, nil
	}

	obj := &Object{Ref: ref, Data: data}
	if info, ok := raw["info"].(map[string]any); ok {
		obj.Info.WorkspaceName, _ = info["workspace_name"].(string)
		obj.Info.ObjectName, _ = info["object_name"].(string)
		switch v := info["save_date"].(type) {
		case string:
			obj.Info.SaveDate = v
		case time.Time:
			obj.Info.SaveDate = v.UTC().Format(time.RFC3339)
		}
	}
	return obj, nil
}

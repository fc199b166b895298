// Package source defines the object store collaborator that supplies genome
// and taxon objects by reference.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when the store holds no object for a reference.
	ErrNotFound = errors.New("source object not found")

	// ErrInvalidReference is returned for references that are not of the
	// form ws/obj/ver or name/ver.
	ErrInvalidReference = errors.New("invalid object reference")
)

// Reference identifies a versioned object in the store. The raw string is
// kept verbatim and used as the ws_ref join key.
type Reference struct {
	Raw       string
	Workspace string
	Object    string
	Version   string
}

func (r Reference) String() string { return r.Raw }

// ParseReference validates ref and splits it into its parts. Two-part
// references (name/ver) leave Workspace empty.
func ParseReference(ref string) (Reference, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Reference{}, fmt.Errorf("%w: empty reference", ErrInvalidReference)
	}

	parts := strings.Split(ref, "/")
	for _, p := range parts {
		if p == "" {
			return Reference{}, fmt.Errorf("%w: %q has an empty segment", ErrInvalidReference, ref)
		}
	}

	switch len(parts) {
	case 2:
		return Reference{Raw: ref, Object: parts[0], Version: parts[1]}, nil
	case 3:
		return Reference{Raw: ref, Workspace: parts[0], Object: parts[1], Version: parts[2]}, nil
	default:
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
}

// ObjectInfo is the store's metadata about an object.
type ObjectInfo struct {
	WorkspaceName string `json:"workspace_name,omitempty" yaml:"workspace_name,omitempty"`
	ObjectName    string `json:"object_name,omitempty" yaml:"object_name,omitempty"`
	SaveDate      string `json:"save_date,omitempty" yaml:"save_date,omitempty"`
}

// Object is a fetched source object. Data is the decoded object body and is
// owned by the store; callers must not mutate it.
type Object struct {
	Ref  Reference
	Info ObjectInfo
	Data map[string]any
}

// ObjectStore resolves references to objects.
type ObjectStore interface {
	// Name returns the store implementation name.
	Name() string

	// Fetch returns the object for ref, or an error wrapping ErrNotFound.
	Fetch(ctx context.Context, ref Reference) (*Object, error)
}


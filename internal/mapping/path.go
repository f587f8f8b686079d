package mapping

import (
	"fmt"
	"strings"
)

// Virtual source column prefixes. A virtual column signals that the value
// does not come from the row at all.
const (
	VirtualDefault = "virtual:default" // always use the mapping's default
	VirtualSkip    = "virtual:skip"    // contribute nothing for this row
	VirtualRandom  = "virtual:random"  // generate a random value
)

// IsVirtual reports whether a source column is a virtual pseudo-column.
func IsVirtual(source string) bool {
	return strings.HasPrefix(source, "virtual:")
}

// Path is a parsed target path. Exactly one of Attribute and Relation is
// set: a path with no dot addresses a direct attribute, one dot addresses a
// relation fragment.
type Path struct {
	Attribute string

	Relation string
	Field    string // empty for star payloads
	Pivot    bool   // relation.pivot.field
	Star     bool   // relation.* full-array payload
	Optional bool   // ?field: a null value suppresses the field, not the row
	Create   bool   // field+: create the related record on a lookup miss
}

// ParsePath parses a dot-path target. Supported shapes:
//
//	attribute
//	relation.field
//	relation.field+
//	relation.?field
//	relation.*
//	relation.pivot.field
func ParsePath(target string) (Path, error) {
	if target == "" {
		return Path{}, fmt.Errorf("empty target path")
	}

	parts := strings.Split(target, ".")
	switch len(parts) {
	case 1:
		return Path{Attribute: parts[0]}, nil
	case 2:
		if parts[1] == "*" {
			return Path{Relation: parts[0], Star: true}, nil
		}
		p := Path{Relation: parts[0]}
		p.Field, p.Optional, p.Create = parseField(parts[1])
		if p.Field == "" {
			return Path{}, fmt.Errorf("target path %q: empty relation field", target)
		}
		return p, nil
	case 3:
		if parts[1] != "pivot" {
			return Path{}, fmt.Errorf("target path %q: expected pivot segment, got %q", target, parts[1])
		}
		p := Path{Relation: parts[0], Pivot: true}
		p.Field, p.Optional, p.Create = parseField(parts[2])
		if p.Field == "" || p.Create {
			return Path{}, fmt.Errorf("target path %q: invalid pivot field", target)
		}
		return p, nil
	default:
		return Path{}, fmt.Errorf("target path %q: too many segments", target)
	}
}

func parseField(s string) (field string, optional, create bool) {
	if strings.HasPrefix(s, "?") {
		optional = true
		s = s[1:]
	}
	if strings.HasSuffix(s, "+") {
		create = true
		s = s[:len(s)-1]
	}
	return s, optional, create
}

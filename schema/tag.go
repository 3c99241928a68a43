package schema

import (
	"fmt"
	"strings"
)

// TagKey is the struct tag key read by the reflector.
const TagKey = "db"

// EnumMode selects how an enum-typed field is encoded in its column.
type EnumMode uint8

const (
	// EnumNone marks a non-enum field.
	EnumNone EnumMode = iota
	// EnumName stores the enum as its string name.
	EnumName
	// EnumOrdinal stores the enum as its integer ordinal.
	EnumOrdinal
)

// Tag is the parsed form of a `db` struct tag. The reflector consumes it
// directly; static tooling parses the same grammar through ParseTag so
// both sides agree on what a tag means.
type Tag struct {
	Skip    bool
	Columns []string
	PK      bool
	FK      bool
	Inline  bool
	Version bool
	Auto    bool
	Escape  bool
	Enum    EnumMode
	Convert string
}

// ParseTag parses `db:"column[|column...][,option...]"`. An empty name part
// leaves column resolution to the configured naming strategy; multi-column
// fields (compound keys, converters) list their columns separated by '|'.
func ParseTag(tag string) (Tag, error) {
	var info Tag
	if tag == "-" {
		info.Skip = true
		return info, nil
	}
	parts := strings.Split(tag, ",")
	if name := strings.TrimSpace(parts[0]); name != "" {
		for _, c := range strings.Split(name, "|") {
			c = strings.TrimSpace(c)
			if c == "" {
				return info, fmt.Errorf("empty column name in %q", tag)
			}
			info.Columns = append(info.Columns, c)
		}
	}
	for _, opt := range parts[1:] {
		opt = strings.TrimSpace(opt)
		switch {
		case opt == "pk":
			info.PK = true
		case opt == "fk":
			info.FK = true
		case opt == "inline":
			info.Inline = true
		case opt == "version":
			info.Version = true
		case opt == "auto":
			info.Auto = true
		case opt == "escape":
			info.Escape = true
		case strings.HasPrefix(opt, "enum="):
			switch v := strings.TrimPrefix(opt, "enum="); v {
			case "name":
				info.Enum = EnumName
			case "ordinal":
				info.Enum = EnumOrdinal
			default:
				return info, fmt.Errorf("unknown enum mode %q", v)
			}
		case strings.HasPrefix(opt, "convert="):
			name := strings.TrimPrefix(opt, "convert=")
			if name == "" {
				return info, fmt.Errorf("empty converter name in %q", tag)
			}
			info.Convert = name
		case opt == "":
			// Trailing comma, ignore.
		default:
			return info, fmt.Errorf("unknown tag option %q", opt)
		}
	}
	return info, nil
}

package access

import "fmt"

// AssignmentSource tags where a resolved grant came from.
type AssignmentSource int

const (
	SourceNone AssignmentSource = iota
	SourceGroup
	SourceDirect
)

func (s AssignmentSource) String() string {
	switch s {
	case SourceNone:
		return "None"
	case SourceGroup:
		return "Group"
	case SourceDirect:
		return "Direct"
	}
	return fmt.Sprintf("AssignmentSource(%d)", int(s))
}

// MarshalText renders the source as "None", "Group" or "Direct".
func (s AssignmentSource) MarshalText() ([]byte, error) {
	switch s {
	case SourceNone, SourceGroup, SourceDirect:
		return []byte(s.String()), nil
	}
	return nil, fmt.Errorf("access: invalid assignment source %d", int(s))
}

func (s *AssignmentSource) UnmarshalText(text []byte) error {
	switch string(text) {
	case "None":
		*s = SourceNone
	case "Group":
		*s = SourceGroup
	case "Direct":
		*s = SourceDirect
	default:
		return fmt.Errorf("access: unknown assignment source %q", text)
	}
	return nil
}

// Granted reports whether the source represents a held grant.
func (s AssignmentSource) Granted() bool {
	return s == SourceGroup || s == SourceDirect
}

package schema

import "fmt"

// FieldType is a destination collection field type.
type FieldType uint8

const (
	FieldUnknown FieldType = iota
	FieldBoolean
	FieldColor
	FieldNumber
	FieldString
	FieldFormattedText
	FieldImage
	FieldFile
	FieldLink
	FieldDate
	FieldEnum
)

var fieldTypeNames = map[FieldType]string{
	FieldBoolean:       "boolean",
	FieldColor:         "color",
	FieldNumber:        "number",
	FieldString:        "string",
	FieldFormattedText: "formattedText",
	FieldImage:         "image",
	FieldFile:          "file",
	FieldLink:          "link",
	FieldDate:          "date",
	FieldEnum:          "enum",
}

func (f FieldType) String() string {
	if s, ok := fieldTypeNames[f]; ok {
		return s
	}
	return "unknown"
}

// ParseFieldType resolves a destination type name.
func ParseFieldType(s string) (FieldType, error) {
	for k, v := range fieldTypeNames {
		if v == s {
			return k, nil
		}
	}
	return FieldUnknown, fmt.Errorf("unknown field type %q", s)
}

func (f FieldType) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *FieldType) UnmarshalText(b []byte) error {
	v, err := ParseFieldType(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

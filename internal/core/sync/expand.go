package sync

import (
	"strconv"

	"collection-sync/internal/core/schema"
)

// MaxFanOut caps the number of sub-fields one multi-valued field expands to.
const MaxFanOut = 10

// ExpandFields resolves List values, which the destination cannot store,
// into scalars. A field whose lists never hold more than one element is
// collapsed in place; wider fields are replaced by numbered sub-fields
// "<id>-[[i]]" named "<name> i+1", at most MaxFanOut of them. Item field
// data is rewritten in place.
//
// floor holds the widths of the previous run. When unchanged records were
// skipped the batch does not see every value, so a field never shrinks below
// its previous width. The returned map holds the width of every fanned-out
// field.
func ExpandFields(fields []schema.CollectionField, items []schema.CollectionItem, floor map[string]int) ([]schema.CollectionField, map[string]int) {
	out := make([]schema.CollectionField, 0, len(fields))
	widths := make(map[string]int)
	for _, f := range fields {
		width, hasList := fanOutWidth(f.ID, items)
		if prev := min(floor[f.ID], MaxFanOut); prev > 1 && prev > width {
			width, hasList = prev, true
		}
		if !hasList {
			out = append(out, f)
			continue
		}
		if width <= 1 {
			collapse(f, items)
			out = append(out, f)
			continue
		}
		widths[f.ID] = width
		for i := 0; i < width; i++ {
			sub := f
			sub.ID = schema.FanOutID(f.ID, i)
			sub.Name = f.Name + " " + strconv.Itoa(i+1)
			out = append(out, sub)
		}
		fanOut(f, width, items)
	}
	return out, widths
}

func fanOutWidth(id string, items []schema.CollectionItem) (int, bool) {
	width, hasList := 0, false
	for _, it := range items {
		if l, ok := it.FieldData[id].(schema.List); ok {
			hasList = true
			width = max(width, len(l))
		}
	}
	return min(width, MaxFanOut), hasList
}

func collapse(f schema.CollectionField, items []schema.CollectionItem) {
	for _, it := range items {
		l, ok := it.FieldData[f.ID].(schema.List)
		if !ok {
			continue
		}
		switch {
		case len(l) > 0:
			it.FieldData[f.ID] = l[0]
		case f.Type == schema.FieldEnum:
			it.FieldData[f.ID] = schema.Str(schema.NoneOptionID)
		default:
			delete(it.FieldData, f.ID)
		}
	}
}

func fanOut(f schema.CollectionField, width int, items []schema.CollectionItem) {
	for _, it := range items {
		if it.FieldData == nil {
			continue
		}
		var vals schema.List
		switch v := it.FieldData[f.ID].(type) {
		case schema.List:
			vals = v
		case schema.Scalar:
			vals = schema.List{v}
		}
		delete(it.FieldData, f.ID)
		for i := 0; i < width; i++ {
			key := schema.FanOutID(f.ID, i)
			switch {
			case i < len(vals):
				it.FieldData[key] = vals[i]
			case f.Type == schema.FieldEnum:
				it.FieldData[key] = schema.Str(schema.NoneOptionID)
			}
		}
	}
}

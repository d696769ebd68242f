package fieldconv

import (
	"encoding/json"
	"strings"

	"collection-sync/internal/core/schema"
)

type airtableAttachment struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Type     string `json:"type"`
}

type airtableCollaborator struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (c airtableCollaborator) display() string {
	if c.Name != "" {
		return c.Name
	}
	if c.Email != "" {
		return c.Email
	}
	return c.ID
}

func registerAirtable(r *Registry) {
	r.add(schema.AirtableSingleLineText, schema.FieldString, stringValue)
	r.add(schema.AirtableMultilineText, schema.FieldString, stringValue)
	r.add(schema.AirtableMultilineText, schema.FieldFormattedText, textHTML)
	r.add(schema.AirtableRichText, schema.FieldFormattedText, markdownHTML)
	r.add(schema.AirtableRichText, schema.FieldString, stringValue)
	r.add(schema.AirtableEmail, schema.FieldString, stringValue)
	r.add(schema.AirtableURL, schema.FieldLink, stringValue)
	r.add(schema.AirtableURL, schema.FieldString, stringValue)
	r.add(schema.AirtablePhoneNumber, schema.FieldString, stringValue)

	for _, n := range []schema.NativeType{
		schema.AirtableNumber, schema.AirtableCurrency, schema.AirtablePercent,
		schema.AirtableRating, schema.AirtableCount,
	} {
		r.add(n, schema.FieldNumber, numberValue)
	}
	r.add(schema.AirtableAutoNumber, schema.FieldNumber, numberValue)
	r.add(schema.AirtableAutoNumber, schema.FieldString, numberAsString)
	r.add(schema.AirtableDuration, schema.FieldString, durationString)
	r.add(schema.AirtableDuration, schema.FieldNumber, numberValue)

	r.add(schema.AirtableCheckbox, schema.FieldBoolean, boolValue)

	r.add(schema.AirtableSingleSelect, schema.FieldEnum, airtableSelectEnum)
	r.add(schema.AirtableSingleSelect, schema.FieldString, stringValue)
	r.add(schema.AirtableMultipleSelects, schema.FieldEnum, airtableMultiSelectEnum)
	r.add(schema.AirtableMultipleSelects, schema.FieldString, airtableJoined)
	r.add(schema.AirtableExternalSyncSource, schema.FieldEnum, airtableSelectEnum)
	r.add(schema.AirtableExternalSyncSource, schema.FieldString, stringValue)

	for _, n := range []schema.NativeType{
		schema.AirtableDate, schema.AirtableDateTime,
		schema.AirtableCreatedTime, schema.AirtableLastModifiedTime,
	} {
		r.add(n, schema.FieldDate, dateString)
	}

	r.add(schema.AirtableAttachments, schema.FieldImage, airtableAttachments)
	r.add(schema.AirtableAttachments, schema.FieldFile, airtableAttachments)
	r.add(schema.AirtableAttachments, schema.FieldLink, airtableAttachments)

	r.add(schema.AirtableRecordLinks, schema.FieldString, airtableJoined)
	r.add(schema.AirtableCollaborator, schema.FieldString, airtableCollaboratorName)
	r.add(schema.AirtableCreatedBy, schema.FieldString, airtableCollaboratorName)
	r.add(schema.AirtableLastModifiedBy, schema.FieldString, airtableCollaboratorName)
	r.add(schema.AirtableCollaborators, schema.FieldString, airtableCollaboratorNames)

	r.add(schema.AirtableBarcode, schema.FieldString, airtableBarcode)
	r.add(schema.AirtableButton, schema.FieldLink, airtableButton)

	for _, n := range []schema.NativeType{schema.AirtableFormula, schema.AirtableRollup, schema.AirtableLookup} {
		r.add(n, schema.FieldString, looseString)
		r.add(n, schema.FieldNumber, looseNumber)
		r.add(n, schema.FieldBoolean, looseBool)
		r.add(n, schema.FieldDate, looseDate)
	}

	r.add(schema.AirtableAIText, schema.FieldString, airtableAIText)
	r.add(schema.AirtableAIText, schema.FieldFormattedText, func(raw json.RawMessage, c Context) (schema.Value, error) {
		v, err := airtableAIText(raw, c)
		if err != nil || v == nil {
			return v, err
		}
		return str(TextToHTML(v.(schema.Scalar).String())), nil
	})

	r.rank(schema.AirtableSingleLineText, schema.AirtableAutoNumber, schema.AirtableFormula, schema.AirtableEmail)
}

func textHTML(raw json.RawMessage, _ Context) (schema.Value, error) {
	s, ok, err := decode[string](raw)
	if !ok {
		return nil, err
	}
	return str(TextToHTML(s)), nil
}

func markdownHTML(raw json.RawMessage, _ Context) (schema.Value, error) {
	s, ok, err := decode[string](raw)
	if !ok || strings.TrimSpace(s) == "" {
		return nil, err
	}
	out, err := MarkdownToHTML(s)
	if err != nil {
		return nil, err
	}
	return str(out), nil
}

func airtableSelectEnum(raw json.RawMessage, c Context) (schema.Value, error) {
	name, ok, err := decode[string](raw)
	if err != nil {
		return nil, err
	}
	if !ok || name == "" {
		return schema.Str(schema.NoneOptionID), nil
	}
	return schema.Str(optionID(c.Property, name)), nil
}

func airtableMultiSelectEnum(raw json.RawMessage, c Context) (schema.Value, error) {
	names, _, err := decode[[]string](raw)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(names))
	for _, n := range names {
		ids = append(ids, optionID(c.Property, n))
	}
	if v := multi(ids, c); v != nil {
		return v, nil
	}
	return schema.Str(schema.NoneOptionID), nil
}

func airtableJoined(raw json.RawMessage, c Context) (schema.Value, error) {
	vals, ok, err := decode[[]string](raw)
	if !ok {
		return nil, err
	}
	return joined(vals, c), nil
}

func airtableAttachments(raw json.RawMessage, c Context) (schema.Value, error) {
	atts, ok, err := decode[[]airtableAttachment](raw)
	if !ok {
		return nil, err
	}
	urls := make([]string, 0, len(atts))
	for _, a := range atts {
		urls = append(urls, a.URL)
	}
	return multi(urls, c), nil
}

func airtableCollaboratorName(raw json.RawMessage, _ Context) (schema.Value, error) {
	u, ok, err := decode[airtableCollaborator](raw)
	if !ok {
		return nil, err
	}
	return str(u.display()), nil
}

func airtableCollaboratorNames(raw json.RawMessage, c Context) (schema.Value, error) {
	us, ok, err := decode[[]airtableCollaborator](raw)
	if !ok {
		return nil, err
	}
	names := make([]string, 0, len(us))
	for _, u := range us {
		names = append(names, u.display())
	}
	return joined(names, c), nil
}

func airtableBarcode(raw json.RawMessage, _ Context) (schema.Value, error) {
	b, ok, err := decode[struct {
		Text string `json:"text"`
	}](raw)
	if !ok {
		return nil, err
	}
	return str(b.Text), nil
}

func airtableButton(raw json.RawMessage, _ Context) (schema.Value, error) {
	b, ok, err := decode[struct {
		Label string  `json:"label"`
		URL   *string `json:"url"`
	}](raw)
	if !ok || b.URL == nil {
		return nil, err
	}
	return str(*b.URL), nil
}

func airtableAIText(raw json.RawMessage, _ Context) (schema.Value, error) {
	a, ok, err := decode[struct {
		State string  `json:"state"`
		Value *string `json:"value"`
	}](raw)
	if !ok || a.Value == nil {
		return nil, err
	}
	return str(*a.Value), nil
}

func looseString(raw json.RawMessage, c Context) (schema.Value, error) {
	v, ok, err := decode[any](raw)
	if !ok {
		return nil, err
	}
	return joined(anyScalars(v), c), nil
}

func looseNumber(raw json.RawMessage, _ Context) (schema.Value, error) {
	v, ok, err := decode[any](raw)
	if !ok {
		return nil, err
	}
	if f, ok := anyNumber(v); ok {
		return schema.Num(f), nil
	}
	return nil, nil
}

func looseBool(raw json.RawMessage, _ Context) (schema.Value, error) {
	v, ok, err := decode[any](raw)
	if !ok {
		return schema.Bool(false), err
	}
	if b, ok := anyBool(v); ok {
		return schema.Bool(b), nil
	}
	return nil, nil
}

func looseDate(raw json.RawMessage, c Context) (schema.Value, error) {
	v, ok, err := decode[any](raw)
	if !ok {
		return nil, err
	}
	vals := anyScalars(v)
	if len(vals) == 0 {
		return nil, nil
	}
	return FormatDate(vals[0], c.Settings.WithTime())
}

package fieldconv

import (
	"encoding/json"
	"strconv"

	"collection-sync/internal/core/schema"
)

type notionOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type notionDate struct {
	Start string  `json:"start"`
	End   *string `json:"end"`
}

type notionUser struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Person *struct {
		Email string `json:"email"`
	} `json:"person,omitempty"`
}

func (u notionUser) display() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Person != nil && u.Person.Email != "":
		return u.Person.Email
	}
	return u.ID
}

type notionUniqueID struct {
	Prefix *string  `json:"prefix"`
	Number *float64 `json:"number"`
}

// notionTyped is a value tagged with its own type, as returned for formula
// results, rollup results and rollup array elements.
type notionTyped struct {
	Type string
	Raw  map[string]json.RawMessage
}

func (t *notionTyped) UnmarshalJSON(b []byte) error {
	if err := json.Unmarshal(b, &t.Raw); err != nil {
		return err
	}
	if v, ok := t.Raw["type"]; ok {
		return json.Unmarshal(v, &t.Type)
	}
	return nil
}

func (t notionTyped) inner() json.RawMessage { return t.Raw[t.Type] }

type notionIcon struct {
	Type  string `json:"type"`
	Emoji string `json:"emoji"`
	NotionFile
}

func registerNotion(r *Registry) {
	r.add(schema.NotionTitle, schema.FieldString, richPlain)

	r.add(schema.NotionRichText, schema.FieldFormattedText, richHTML)
	r.add(schema.NotionRichText, schema.FieldString, richPlain)

	for _, n := range []schema.NativeType{schema.NotionSelect, schema.NotionStatus} {
		r.add(n, schema.FieldEnum, notionSelectEnum)
		r.add(n, schema.FieldString, notionSelectName)
	}
	r.add(schema.NotionMultiSelect, schema.FieldEnum, notionMultiSelectEnum)
	r.add(schema.NotionMultiSelect, schema.FieldString, notionMultiSelectNames)

	r.add(schema.NotionNumber, schema.FieldNumber, numberValue)
	r.add(schema.NotionCheckbox, schema.FieldBoolean, boolValue)

	r.add(schema.NotionDate, schema.FieldDate, notionDateValue)
	r.add(schema.NotionCreatedTime, schema.FieldDate, dateString)
	r.add(schema.NotionLastEditedTime, schema.FieldDate, dateString)

	r.add(schema.NotionURL, schema.FieldLink, stringValue)
	r.add(schema.NotionURL, schema.FieldString, stringValue)
	r.add(schema.NotionEmail, schema.FieldString, stringValue)
	r.add(schema.NotionPhoneNumber, schema.FieldString, stringValue)

	r.add(schema.NotionFiles, schema.FieldImage, notionFiles)
	r.add(schema.NotionFiles, schema.FieldFile, notionFiles)
	r.add(schema.NotionFiles, schema.FieldLink, notionFiles)

	r.add(schema.NotionPeople, schema.FieldString, notionPeople)
	r.add(schema.NotionCreatedBy, schema.FieldString, notionUserName)
	r.add(schema.NotionLastEditedBy, schema.FieldString, notionUserName)
	r.add(schema.NotionRelation, schema.FieldString, notionRelation)

	r.add(schema.NotionFormula, schema.FieldString, func(raw json.RawMessage, c Context) (schema.Value, error) {
		return r.notionTypedString(raw, c)
	})
	r.add(schema.NotionFormula, schema.FieldNumber, notionTypedNumber)
	r.add(schema.NotionFormula, schema.FieldBoolean, notionTypedBool)
	r.add(schema.NotionFormula, schema.FieldDate, notionTypedDate)

	r.add(schema.NotionRollup, schema.FieldString, func(raw json.RawMessage, c Context) (schema.Value, error) {
		return r.notionTypedString(raw, c)
	})
	r.add(schema.NotionRollup, schema.FieldNumber, notionTypedNumber)

	r.add(schema.NotionUniqueID, schema.FieldString, notionUniqueIDString)
	r.add(schema.NotionUniqueID, schema.FieldNumber, notionUniqueIDNumber)

	r.add(schema.NotionPageContent, schema.FieldFormattedText, notionPageContent)
	r.add(schema.NotionPageCover, schema.FieldImage, notionCover)
	r.add(schema.NotionPageIcon, schema.FieldString, notionIconString)
	r.add(schema.NotionPageIcon, schema.FieldImage, notionIconImage)

	r.rank(schema.NotionTitle, schema.NotionUniqueID, schema.NotionRichText, schema.NotionFormula)
}

func richPlain(raw json.RawMessage, _ Context) (schema.Value, error) {
	runs, ok, err := decode[[]RichText](raw)
	if !ok {
		return nil, err
	}
	return str(PlainText(runs)), nil
}

func richHTML(raw json.RawMessage, _ Context) (schema.Value, error) {
	runs, ok, err := decode[[]RichText](raw)
	if !ok || len(runs) == 0 {
		return nil, err
	}
	return str(SanitizeHTML(RichTextHTML(runs))), nil
}

func notionSelectEnum(raw json.RawMessage, c Context) (schema.Value, error) {
	o, ok, err := decode[notionOption](raw)
	if err != nil {
		return nil, err
	}
	if !ok || (o.ID == "" && o.Name == "") {
		return schema.Str(schema.NoneOptionID), nil
	}
	if o.ID != "" {
		return schema.Str(o.ID), nil
	}
	return schema.Str(optionID(c.Property, o.Name)), nil
}

func notionSelectName(raw json.RawMessage, _ Context) (schema.Value, error) {
	o, ok, err := decode[notionOption](raw)
	if !ok {
		return nil, err
	}
	return str(o.Name), nil
}

func notionMultiSelectEnum(raw json.RawMessage, c Context) (schema.Value, error) {
	opts, _, err := decode[[]notionOption](raw)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(opts))
	for _, o := range opts {
		id := o.ID
		if id == "" {
			id = optionID(c.Property, o.Name)
		}
		ids = append(ids, id)
	}
	if v := multi(ids, c); v != nil {
		return v, nil
	}
	return schema.Str(schema.NoneOptionID), nil
}

func notionMultiSelectNames(raw json.RawMessage, c Context) (schema.Value, error) {
	opts, ok, err := decode[[]notionOption](raw)
	if !ok {
		return nil, err
	}
	names := make([]string, 0, len(opts))
	for _, o := range opts {
		names = append(names, o.Name)
	}
	return joined(names, c), nil
}

func notionDateValue(raw json.RawMessage, c Context) (schema.Value, error) {
	d, ok, err := decode[notionDate](raw)
	if !ok {
		return nil, err
	}
	return FormatDate(d.Start, c.Settings.WithTime())
}

func notionFiles(raw json.RawMessage, c Context) (schema.Value, error) {
	files, ok, err := decode[[]NotionFile](raw)
	if !ok {
		return nil, err
	}
	urls := make([]string, 0, len(files))
	for _, f := range files {
		urls = append(urls, f.URL())
	}
	return multi(urls, c), nil
}

func notionPeople(raw json.RawMessage, c Context) (schema.Value, error) {
	users, ok, err := decode[[]notionUser](raw)
	if !ok {
		return nil, err
	}
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.display())
	}
	return joined(names, c), nil
}

func notionUserName(raw json.RawMessage, _ Context) (schema.Value, error) {
	u, ok, err := decode[notionUser](raw)
	if !ok {
		return nil, err
	}
	return str(u.display()), nil
}

func notionRelation(raw json.RawMessage, c Context) (schema.Value, error) {
	refs, ok, err := decode[[]struct {
		ID string `json:"id"`
	}](raw)
	if !ok {
		return nil, err
	}
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}
	return joined(ids, c), nil
}

// notionTypedString renders a formula or rollup result as text. Array
// rollups are flattened element by element through the string converter of
// each element's own type.
func (r *Registry) notionTypedString(raw json.RawMessage, c Context) (schema.Value, error) {
	t, ok, err := decode[notionTyped](raw)
	if !ok {
		return nil, err
	}
	if t.Type == "array" {
		elems, _, err := decode[[]notionTyped](t.inner())
		if err != nil {
			return nil, err
		}
		var parts []string
		for _, e := range elems {
			v, err := r.notionTypedString(mustJSON(e.Raw), c)
			if err != nil {
				return nil, err
			}
			parts = append(parts, valueStrings(v)...)
		}
		return joined(parts, c), nil
	}
	n := schema.ParseNativeType(schema.IntegrationNotion, t.Type)
	if n == schema.NativeUnknown {
		// Formula results use plain JSON kinds: string, number, boolean, date.
		switch t.Type {
		case "string":
			return stringValue(t.inner(), c)
		case "number":
			return numberAsString(t.inner(), c)
		case "boolean":
			return boolAsString(t.inner(), c)
		}
		return nil, nil
	}
	conv, ok := r.Lookup(n, schema.FieldString)
	if !ok {
		if n == schema.NotionDate {
			return notionDateValue(t.inner(), c)
		}
		if n == schema.NotionNumber {
			return numberAsString(t.inner(), c)
		}
		if n == schema.NotionCheckbox {
			return boolAsString(t.inner(), c)
		}
		return nil, nil
	}
	return conv(t.inner(), Context{Property: schema.SourceProperty{Type: n}, Settings: c.Settings})
}

func notionTypedNumber(raw json.RawMessage, c Context) (schema.Value, error) {
	t, ok, err := decode[notionTyped](raw)
	if !ok {
		return nil, err
	}
	switch t.Type {
	case "number":
		return numberValue(t.inner(), c)
	case "string":
		s, _, err := decode[string](t.inner())
		if err != nil {
			return nil, err
		}
		if f, ok := anyNumber(s); ok {
			return schema.Num(f), nil
		}
	case "array":
		elems, _, err := decode[[]notionTyped](t.inner())
		if err != nil {
			return nil, err
		}
		for _, e := range elems {
			if v, err := notionTypedNumber(mustJSON(e.Raw), c); err != nil || v != nil {
				return v, err
			}
		}
	}
	return nil, nil
}

func notionTypedBool(raw json.RawMessage, c Context) (schema.Value, error) {
	t, ok, err := decode[notionTyped](raw)
	if !ok {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(nonNull(t.inner()), &v); err != nil {
		return nil, err
	}
	if b, ok := anyBool(v); ok {
		return schema.Bool(b), nil
	}
	return nil, nil
}

func notionTypedDate(raw json.RawMessage, c Context) (schema.Value, error) {
	t, ok, err := decode[notionTyped](raw)
	if !ok {
		return nil, err
	}
	switch t.Type {
	case "date":
		return notionDateValue(t.inner(), c)
	case "string":
		return dateString(t.inner(), c)
	}
	return nil, nil
}

func notionUniqueIDString(raw json.RawMessage, _ Context) (schema.Value, error) {
	u, ok, err := decode[notionUniqueID](raw)
	if !ok || u.Number == nil {
		return nil, err
	}
	n := strconv.FormatInt(int64(*u.Number), 10)
	if u.Prefix != nil && *u.Prefix != "" {
		return schema.Str(*u.Prefix + "-" + n), nil
	}
	return schema.Str(n), nil
}

func notionUniqueIDNumber(raw json.RawMessage, _ Context) (schema.Value, error) {
	u, ok, err := decode[notionUniqueID](raw)
	if !ok || u.Number == nil {
		return nil, err
	}
	return schema.Num(*u.Number), nil
}

func notionPageContent(raw json.RawMessage, _ Context) (schema.Value, error) {
	blocks, ok, err := decode[[]Block](raw)
	if !ok {
		return nil, err
	}
	return str(SanitizeHTML(BlocksHTML(blocks))), nil
}

func notionCover(raw json.RawMessage, _ Context) (schema.Value, error) {
	f, ok, err := decode[NotionFile](raw)
	if !ok {
		return nil, err
	}
	return str(f.URL()), nil
}

func notionIconString(raw json.RawMessage, _ Context) (schema.Value, error) {
	ic, ok, err := decode[notionIcon](raw)
	if !ok {
		return nil, err
	}
	if ic.Type == "emoji" {
		return str(ic.Emoji), nil
	}
	return str(ic.URL()), nil
}

func notionIconImage(raw json.RawMessage, _ Context) (schema.Value, error) {
	ic, ok, err := decode[notionIcon](raw)
	if !ok || ic.Type == "emoji" {
		return nil, err
	}
	return str(ic.URL()), nil
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func nonNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

func valueStrings(v schema.Value) []string {
	switch vv := v.(type) {
	case schema.Scalar:
		return []string{vv.String()}
	case schema.List:
		out := make([]string, 0, len(vv))
		for _, s := range vv {
			out = append(out, s.String())
		}
		return out
	}
	return nil
}

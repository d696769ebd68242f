package fieldconv

import (
	"encoding/json"
	"strings"
	"testing"

	"collection-sync/internal/core/schema"
)

func convert(t *testing.T, n schema.NativeType, f schema.FieldType, raw string, c Context) schema.Value {
	t.Helper()
	conv, ok := Default.Lookup(n, f)
	if !ok {
		t.Fatalf("no converter for %s -> %s", n, f)
	}
	c.Property.Type = n
	v, err := conv(json.RawMessage(raw), c)
	if err != nil {
		t.Fatalf("%s -> %s: %v", n, f, err)
	}
	return v
}

func scalarString(t *testing.T, v schema.Value) string {
	t.Helper()
	s, ok := v.(schema.Scalar)
	if !ok {
		t.Fatalf("expected scalar, got %#v", v)
	}
	return s.String()
}

func TestEveryNativeTypeHasAConverter(t *testing.T) {
	for _, in := range []schema.Integration{schema.IntegrationNotion, schema.IntegrationAirtable, schema.IntegrationSheets} {
		for _, n := range schema.NativeTypes(in) {
			types := Default.AllowedTypes(n)
			if len(types) == 0 {
				t.Fatalf("%s/%s has no allowed types", in, n)
			}
			for _, f := range types {
				if _, ok := Default.Lookup(n, f); !ok {
					t.Fatalf("%s -> %s allowed but has no converter", n, f)
				}
			}
		}
	}
	if got := Default.AllowedTypes(schema.NativeUnknown); len(got) != 0 {
		t.Fatalf("unknown type should be unsupported, got %v", got)
	}
}

func TestAllowedTypesDefaultFirst(t *testing.T) {
	got := Default.AllowedTypes(schema.NotionRichText)
	if len(got) != 2 || got[0] != schema.FieldFormattedText || got[1] != schema.FieldString {
		t.Fatalf("rich_text allowed = %v", got)
	}
	got[0] = schema.FieldBoolean
	if Default.AllowedTypes(schema.NotionRichText)[0] != schema.FieldFormattedText {
		t.Fatalf("AllowedTypes must return a copy")
	}
}

func TestRankSlugCandidates(t *testing.T) {
	props := []schema.SourceProperty{
		{ID: "a", Type: schema.NotionEmail},
		{ID: "b", Type: schema.NotionRichText},
		{ID: "c", Type: schema.NotionCheckbox},
		{ID: "d", Type: schema.NotionURL},
		{ID: "e", Type: schema.NotionTitle},
		{ID: "f", Type: schema.NotionUniqueID},
	}
	got := Default.RankSlugCandidates(props)
	var ids []string
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	// checkbox has no string conversion; email and url are unranked and keep order.
	if strings.Join(ids, ",") != "e,f,b,a,d" {
		t.Fatalf("ranked = %v", ids)
	}
}

func TestDefaultSlugFieldPrefersTitle(t *testing.T) {
	s := schema.Schema{
		TitlePropertyID: "name",
		Properties: []schema.SourceProperty{
			{ID: "id", Type: schema.NotionUniqueID},
			{ID: "name", Type: schema.NotionTitle},
		},
	}
	p, ok := Default.DefaultSlugField(s)
	if !ok || p.ID != "name" {
		t.Fatalf("slug field = %+v, %v", p, ok)
	}
	s = schema.Schema{Properties: []schema.SourceProperty{
		{ID: "n", Type: schema.AirtableNumber},
		{ID: "auto", Type: schema.AirtableAutoNumber},
		{ID: "line", Type: schema.AirtableSingleLineText},
	}}
	if p, _ := Default.DefaultSlugField(s); p.ID != "line" {
		t.Fatalf("airtable slug field = %q", p.ID)
	}
}

func TestSlugText(t *testing.T) {
	p := schema.SourceProperty{ID: "title", Type: schema.NotionTitle}
	got, err := Default.SlugText(json.RawMessage(`[{"plain_text":"Hello "},{"plain_text":"World"}]`), p)
	if err != nil || got != "Hello World" {
		t.Fatalf("SlugText = %q, %v", got, err)
	}
	got, _ = Default.SlugText(json.RawMessage(`[]`), p)
	if got != "" {
		t.Fatalf("empty title gave %q", got)
	}
}

func TestNotionStatusEnumResolvesOptionID(t *testing.T) {
	c := Context{Property: schema.SourceProperty{Options: []schema.EnumOption{{ID: "s-todo", Name: "Todo"}, {ID: "s-done", Name: "Done"}}}}
	if got := scalarString(t, convert(t, schema.NotionStatus, schema.FieldEnum, `{"name":"Done"}`, c)); got != "s-done" {
		t.Fatalf("status enum = %q", got)
	}
	if got := scalarString(t, convert(t, schema.NotionStatus, schema.FieldEnum, `{"id":"x1","name":"Other"}`, c)); got != "x1" {
		t.Fatalf("status enum with id = %q", got)
	}
	if got := scalarString(t, convert(t, schema.NotionSelect, schema.FieldEnum, `null`, c)); got != schema.NoneOptionID {
		t.Fatalf("empty select = %q", got)
	}
	if got := scalarString(t, convert(t, schema.NotionStatus, schema.FieldString, `{"name":"Done"}`, c)); got != "Done" {
		t.Fatalf("status string = %q", got)
	}
}

func TestNotionMultiSelect(t *testing.T) {
	c := Context{}
	v := convert(t, schema.NotionMultiSelect, schema.FieldEnum, `[{"id":"a","name":"A"},{"id":"b","name":"B"}]`, c)
	l, ok := v.(schema.List)
	if !ok || len(l) != 2 || l[1].String() != "b" {
		t.Fatalf("multi enum = %#v", v)
	}
	if got := scalarString(t, convert(t, schema.NotionMultiSelect, schema.FieldString, `[{"name":"A"},{"name":"B"}]`, c)); got != "A, B" {
		t.Fatalf("multi string = %q", got)
	}
	off := false
	c.Settings.MultipleValues = &off
	if got := scalarString(t, convert(t, schema.NotionMultiSelect, schema.FieldEnum, `[{"id":"a"},{"id":"b"}]`, c)); got != "a" {
		t.Fatalf("single-valued multi enum = %q", got)
	}
}

func TestRichTextHTML(t *testing.T) {
	href := "https://example.com"
	runs := []RichText{
		{PlainText: "bold", Annotations: Annotations{Bold: true}},
		{PlainText: " & "},
		{PlainText: "link", Href: &href, Annotations: Annotations{Italic: true, Color: "red"}},
		{PlainText: "x", Annotations: Annotations{Code: true, Color: "blue_background"}},
	}
	got := RichTextHTML(runs)
	want := `<strong>bold</strong> &amp; <a href="https://example.com"><span style="color: red"><em>link</em></span></a>` +
		`<span style="background-color: blue"><code>x</code></span>`
	if got != want {
		t.Fatalf("RichTextHTML =\n%s\nwant\n%s", got, want)
	}
	if PlainText(runs) != "bold & linkx" {
		t.Fatalf("PlainText = %q", PlainText(runs))
	}
}

func TestRichTextConverterSanitizes(t *testing.T) {
	v := convert(t, schema.NotionRichText, schema.FieldFormattedText,
		`[{"plain_text":"a\nb","annotations":{"strikethrough":true,"underline":true}},{"plain_text":"x","href":"javascript:alert(1)"}]`, Context{})
	got := scalarString(t, v)
	if !strings.Contains(got, "<u><s>a<br/>b</s></u>") && !strings.Contains(got, "<u><s>a<br>b</s></u>") {
		t.Fatalf("formatted = %q", got)
	}
	if strings.Contains(got, "javascript") {
		t.Fatalf("unsafe href survived: %q", got)
	}
}

func TestBlocksHTMLGroupsLists(t *testing.T) {
	raw := `[
		{"type":"heading_1","heading_1":{"rich_text":[{"plain_text":"Title"}]}},
		{"type":"bulleted_list_item","bulleted_list_item":{"rich_text":[{"plain_text":"one"}]}},
		{"type":"bulleted_list_item","bulleted_list_item":{"rich_text":[{"plain_text":"two"}]}},
		{"type":"divider"},
		{"type":"paragraph","paragraph":{"rich_text":[{"plain_text":"end"}]}}
	]`
	var blocks []Block
	if err := json.Unmarshal([]byte(raw), &blocks); err != nil {
		t.Fatal(err)
	}
	got := BlocksHTML(blocks)
	want := "<h1>Title</h1><ul><li>one</li><li>two</li></ul><hr><p>end</p>"
	if got != want {
		t.Fatalf("BlocksHTML = %q", got)
	}
}

func TestNotionDates(t *testing.T) {
	c := Context{}
	if got := scalarString(t, convert(t, schema.NotionDate, schema.FieldDate, `{"start":"2024-03-05T23:30:00.000+02:00"}`, c)); got != "2024-03-05" {
		t.Fatalf("date without time = %q", got)
	}
	on := true
	c.Settings.IncludeTime = &on
	if got := scalarString(t, convert(t, schema.NotionDate, schema.FieldDate, `{"start":"2024-03-05T23:30:00.000+02:00"}`, c)); got != "2024-03-05T21:30:00Z" {
		t.Fatalf("date with time = %q", got)
	}
	if v := convert(t, schema.NotionDate, schema.FieldDate, `null`, c); v != nil {
		t.Fatalf("null date = %#v", v)
	}
}

func TestNotionFormulaAndRollup(t *testing.T) {
	c := Context{}
	if got := scalarString(t, convert(t, schema.NotionFormula, schema.FieldString, `{"type":"number","number":4.5}`, c)); got != "4.5" {
		t.Fatalf("formula number as string = %q", got)
	}
	if got := scalarString(t, convert(t, schema.NotionFormula, schema.FieldBoolean, `{"type":"boolean","boolean":true}`, c)); got != "true" {
		t.Fatalf("formula bool = %q", got)
	}
	rollup := `{"type":"array","array":[{"type":"title","title":[{"plain_text":"A"}]},{"type":"rich_text","rich_text":[{"plain_text":"B"}]}]}`
	if got := scalarString(t, convert(t, schema.NotionRollup, schema.FieldString, rollup, c)); got != "A, B" {
		t.Fatalf("rollup array = %q", got)
	}
	if got := scalarString(t, convert(t, schema.NotionRollup, schema.FieldNumber, `{"type":"number","number":3}`, c)); got != "3" {
		t.Fatalf("rollup number = %q", got)
	}
}

func TestNotionUniqueIDAndFiles(t *testing.T) {
	c := Context{}
	if got := scalarString(t, convert(t, schema.NotionUniqueID, schema.FieldString, `{"prefix":"TASK","number":12}`, c)); got != "TASK-12" {
		t.Fatalf("unique id = %q", got)
	}
	files := `[{"name":"a.png","type":"file","file":{"url":"https://s3/a.png"}},{"name":"b","type":"external","external":{"url":"https://x/b.jpg"}}]`
	v := convert(t, schema.NotionFiles, schema.FieldImage, files, c)
	l, ok := v.(schema.List)
	if !ok || len(l) != 2 || l[0].String() != "https://s3/a.png" || l[1].String() != "https://x/b.jpg" {
		t.Fatalf("files = %#v", v)
	}
	if got := scalarString(t, convert(t, schema.NotionPageIcon, schema.FieldString, `{"type":"emoji","emoji":"🚀"}`, c)); got != "🚀" {
		t.Fatalf("icon = %q", got)
	}
}

func TestMissingValuesAreNil(t *testing.T) {
	c := Context{}
	for _, tc := range []struct {
		n   schema.NativeType
		f   schema.FieldType
		raw string
	}{
		{schema.NotionRichText, schema.FieldString, `[]`},
		{schema.NotionNumber, schema.FieldNumber, `null`},
		{schema.NotionURL, schema.FieldLink, `null`},
		{schema.AirtableSingleLineText, schema.FieldString, ``},
		{schema.AirtableAttachments, schema.FieldImage, `[]`},
		{schema.SheetsText, schema.FieldString, `"  "`},
	} {
		if v := convert(t, tc.n, tc.f, tc.raw, c); v != nil {
			t.Fatalf("%s -> %s on %q = %#v, want nil", tc.n, tc.f, tc.raw, v)
		}
	}
}

func TestAirtableConverters(t *testing.T) {
	c := Context{Property: schema.SourceProperty{Options: []schema.EnumOption{{ID: "selA", Name: "Alpha"}}}}
	if got := scalarString(t, convert(t, schema.AirtableSingleSelect, schema.FieldEnum, `"Alpha"`, c)); got != "selA" {
		t.Fatalf("single select = %q", got)
	}
	if got := scalarString(t, convert(t, schema.AirtableCheckbox, schema.FieldBoolean, ``, c)); got != "false" {
		t.Fatalf("absent checkbox = %q", got)
	}
	if got := scalarString(t, convert(t, schema.AirtableCollaborators, schema.FieldString, `[{"id":"u1","name":"Ann"},{"id":"u2","email":"b@x.io"}]`, c)); got != "Ann, b@x.io" {
		t.Fatalf("collaborators = %q", got)
	}
	if got := scalarString(t, convert(t, schema.AirtableLookup, schema.FieldString, `["x",2,true]`, c)); got != "x, 2, true" {
		t.Fatalf("lookup = %q", got)
	}
	got := scalarString(t, convert(t, schema.AirtableRichText, schema.FieldFormattedText, "\"**hi** there\"", c))
	if got != "<p><strong>hi</strong> there</p>" {
		t.Fatalf("markdown = %q", got)
	}
	if got := scalarString(t, convert(t, schema.AirtableButton, schema.FieldLink, `{"label":"Open","url":"https://a.b"}`, c)); got != "https://a.b" {
		t.Fatalf("button = %q", got)
	}
}

func TestSheetsConverters(t *testing.T) {
	c := Context{}
	if got := scalarString(t, convert(t, schema.SheetsNumber, schema.FieldString, `12`, c)); got != "12" {
		t.Fatalf("number as string = %q", got)
	}
	if got := scalarString(t, convert(t, schema.SheetsBoolean, schema.FieldBoolean, `"TRUE"`, c)); got != "true" {
		t.Fatalf("bool = %q", got)
	}
	if got := scalarString(t, convert(t, schema.SheetsDate, schema.FieldDate, `"1/2/2024"`, c)); got != "2024-01-02" {
		t.Fatalf("date = %q", got)
	}
	if got := scalarString(t, convert(t, schema.SheetsHTML, schema.FieldFormattedText, `"<p onclick=\"x()\">hi</p>"`, c)); got != "<p>hi</p>" {
		t.Fatalf("html = %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		secs   float64
		format string
		want   string
	}{
		{125, "h:mm:ss", "0:02:05"},
		{125, "h:mm", "0:02"},
		{3725, "", "1:02"},
		{3725.5, "h:mm:ss.S", "1:02:05.5"},
		{1.25, "h:mm:ss.SS", "0:00:01.25"},
		{61.0129, "h:mm:ss.SSS", "0:01:01.012"},
		{-90, "h:mm:ss", "-0:01:30"},
	}
	for _, tc := range cases {
		got, err := FormatDuration(tc.secs, tc.format)
		if err != nil {
			t.Fatalf("FormatDuration(%v, %q): %v", tc.secs, tc.format, err)
		}
		if got != tc.want {
			t.Fatalf("FormatDuration(%v, %q) = %q, want %q", tc.secs, tc.format, got, tc.want)
		}
	}
	if _, err := FormatDuration(1, "mm:ss"); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestAirtableDurationUsesPropertyFormat(t *testing.T) {
	c := Context{Property: schema.SourceProperty{Format: "h:mm:ss"}}
	if got := scalarString(t, convert(t, schema.AirtableDuration, schema.FieldString, `125`, c)); got != "0:02:05" {
		t.Fatalf("duration = %q", got)
	}
}

func TestEnumCasesNoneFirst(t *testing.T) {
	label := "Nothing"
	cases := EnumCases(schema.SourceProperty{Options: []schema.EnumOption{{ID: "a", Name: "A"}}}, schema.FieldSettings{NoneOptionLabel: &label})
	if len(cases) != 2 || cases[0].ID != schema.NoneOptionID || cases[0].Name != "Nothing" || cases[1].ID != "a" {
		t.Fatalf("cases = %+v", cases)
	}
}

package fieldconv

import (
	"html"
	"strings"
)

// RichText is one Notion rich text run.
type RichText struct {
	PlainText   string      `json:"plain_text"`
	Href        *string     `json:"href"`
	Annotations Annotations `json:"annotations"`
}

// Annotations are the inline styles of a rich text run.
type Annotations struct {
	Bold          bool   `json:"bold"`
	Italic        bool   `json:"italic"`
	Strikethrough bool   `json:"strikethrough"`
	Underline     bool   `json:"underline"`
	Code          bool   `json:"code"`
	Color         string `json:"color"`
}

// PlainText concatenates the runs without markup.
func PlainText(runs []RichText) string {
	var b strings.Builder
	for _, r := range runs {
		b.WriteString(r.PlainText)
	}
	return b.String()
}

// RichTextHTML renders runs as inline HTML. Tags nest innermost-first in the
// order code, bold, italic, strikethrough, underline, color, link.
func RichTextHTML(runs []RichText) string {
	var b strings.Builder
	for _, r := range runs {
		s := strings.ReplaceAll(html.EscapeString(r.PlainText), "\n", "<br>")
		a := r.Annotations
		if a.Code {
			s = "<code>" + s + "</code>"
		}
		if a.Bold {
			s = "<strong>" + s + "</strong>"
		}
		if a.Italic {
			s = "<em>" + s + "</em>"
		}
		if a.Strikethrough {
			s = "<s>" + s + "</s>"
		}
		if a.Underline {
			s = "<u>" + s + "</u>"
		}
		if a.Color != "" && a.Color != "default" {
			if bg, ok := strings.CutSuffix(a.Color, "_background"); ok {
				s = `<span style="background-color: ` + bg + `">` + s + "</span>"
			} else {
				s = `<span style="color: ` + a.Color + `">` + s + "</span>"
			}
		}
		if r.Href != nil && *r.Href != "" {
			s = `<a href="` + html.EscapeString(*r.Href) + `">` + s + "</a>"
		}
		b.WriteString(s)
	}
	return b.String()
}

// Block is a Notion content block with its children already resolved.
type Block struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	Children []Block `json:"children,omitempty"`

	Paragraph        *textBlock  `json:"paragraph,omitempty"`
	Heading1         *textBlock  `json:"heading_1,omitempty"`
	Heading2         *textBlock  `json:"heading_2,omitempty"`
	Heading3         *textBlock  `json:"heading_3,omitempty"`
	BulletedListItem *textBlock  `json:"bulleted_list_item,omitempty"`
	NumberedListItem *textBlock  `json:"numbered_list_item,omitempty"`
	Quote            *textBlock  `json:"quote,omitempty"`
	Callout          *textBlock  `json:"callout,omitempty"`
	Toggle           *textBlock  `json:"toggle,omitempty"`
	ToDo             *todoBlock  `json:"to_do,omitempty"`
	Code             *codeBlock  `json:"code,omitempty"`
	Image            *NotionFile `json:"image,omitempty"`
}

type textBlock struct {
	RichText []RichText `json:"rich_text"`
}

type todoBlock struct {
	RichText []RichText `json:"rich_text"`
	Checked  bool       `json:"checked"`
}

type codeBlock struct {
	RichText []RichText `json:"rich_text"`
	Language string     `json:"language"`
}

// BlocksHTML renders page content. Consecutive list items are grouped into a
// single list element.
func BlocksHTML(blocks []Block) string {
	var b strings.Builder
	listTag := ""
	closeList := func() {
		if listTag != "" {
			b.WriteString("</" + listTag + ">")
			listTag = ""
		}
	}
	openList := func(tag string) {
		if listTag != tag {
			closeList()
			b.WriteString("<" + tag + ">")
			listTag = tag
		}
	}
	for _, blk := range blocks {
		switch {
		case blk.BulletedListItem != nil:
			openList("ul")
			b.WriteString("<li>" + RichTextHTML(blk.BulletedListItem.RichText) + BlocksHTML(blk.Children) + "</li>")
			continue
		case blk.NumberedListItem != nil:
			openList("ol")
			b.WriteString("<li>" + RichTextHTML(blk.NumberedListItem.RichText) + BlocksHTML(blk.Children) + "</li>")
			continue
		}
		closeList()
		switch {
		case blk.Paragraph != nil:
			if len(blk.Paragraph.RichText) > 0 {
				b.WriteString("<p>" + RichTextHTML(blk.Paragraph.RichText) + "</p>")
			}
		case blk.Heading1 != nil:
			b.WriteString("<h1>" + RichTextHTML(blk.Heading1.RichText) + "</h1>")
		case blk.Heading2 != nil:
			b.WriteString("<h2>" + RichTextHTML(blk.Heading2.RichText) + "</h2>")
		case blk.Heading3 != nil:
			b.WriteString("<h3>" + RichTextHTML(blk.Heading3.RichText) + "</h3>")
		case blk.Quote != nil:
			b.WriteString("<blockquote>" + RichTextHTML(blk.Quote.RichText) + "</blockquote>")
		case blk.Callout != nil:
			b.WriteString("<p>" + RichTextHTML(blk.Callout.RichText) + "</p>")
		case blk.Toggle != nil:
			b.WriteString("<details><summary>" + RichTextHTML(blk.Toggle.RichText) + "</summary>" + BlocksHTML(blk.Children) + "</details>")
		case blk.ToDo != nil:
			box := "☐ "
			if blk.ToDo.Checked {
				box = "☑ "
			}
			b.WriteString("<p>" + box + RichTextHTML(blk.ToDo.RichText) + "</p>")
		case blk.Code != nil:
			b.WriteString("<pre><code>" + html.EscapeString(PlainText(blk.Code.RichText)) + "</code></pre>")
		case blk.Image != nil:
			if u := blk.Image.URL(); u != "" {
				b.WriteString(`<img src="` + html.EscapeString(u) + `">`)
			}
		case blk.Type == "divider":
			b.WriteString("<hr>")
		}
	}
	closeList()
	return b.String()
}

// NotionFile is a Notion file object (uploaded or external).
type NotionFile struct {
	Name string `json:"name"`
	Type string `json:"type"`
	File *struct {
		URL string `json:"url"`
	} `json:"file,omitempty"`
	External *struct {
		URL string `json:"url"`
	} `json:"external,omitempty"`
}

// URL returns the file's download location.
func (f NotionFile) URL() string {
	if f.File != nil && f.File.URL != "" {
		return f.File.URL
	}
	if f.External != nil {
		return f.External.URL
	}
	return ""
}

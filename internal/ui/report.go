package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"collection-sync/internal/core/schema"
	coresync "collection-sync/internal/core/sync"
)

// MaxListedEntries caps each status list in the rendered report.
const MaxListedEntries = 20

// RenderReport formats a finished run for the terminal.
func RenderReport(rep *coresync.Report) string {
	var b strings.Builder
	st := rep.Stats
	b.WriteString(titleStyle.Render("Sync Report") + " " + subtitleStyle.Render(rep.Collection) + "\n")
	b.WriteString(subtleStyle.Render(fmt.Sprintf("Run %s  |  %s  |  %s",
		rep.RunID, rep.Integration, st.Duration.Round(time.Millisecond))) + "\n\n")

	var stats strings.Builder
	errs, warns, _ := rep.Status.Counts()
	if rep.Outcome == schema.OutcomeSuccess {
		stats.WriteString(okStyle.Render("✓ Success"))
	} else {
		stats.WriteString(warnStyle.Render("⚠ Completed with errors"))
	}
	if errs > 0 {
		stats.WriteString("  " + errorStyle.Render(fmt.Sprintf("✗ %d Errors", errs)))
	}
	if warns > 0 {
		stats.WriteString("  " + warnStyle.Render(fmt.Sprintf("⚠ %d Warnings", warns)))
	}
	stats.WriteString(fmt.Sprintf("\n%d Fetched  |  %d Upserted  |  %d Unchanged  |  %d Removed",
		st.Fetched, st.Upserted, st.Unchanged, st.Removed))
	if st.Skipped > 0 || st.Collisions > 0 {
		stats.WriteString(fmt.Sprintf("\n%d Skipped  |  %d Slug collisions", st.Skipped, st.Collisions))
	}
	b.WriteString(statsBox.Render(stats.String()))
	b.WriteString("\n\n")

	// Errors first
	writeEntries(&b, errorStyle.Render("ERRORS"), rep.Status.Errors)
	writeEntries(&b, warnStyle.Render("WARNINGS"), rep.Status.Warnings)
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeEntries(b *strings.Builder, header string, entries []schema.StatusEntry) {
	if len(entries) == 0 {
		return
	}
	b.WriteString(header + "\n")
	for i, e := range entries {
		if i == MaxListedEntries {
			b.WriteString(subtleStyle.Render(fmt.Sprintf("  … and %d more", len(entries)-i)) + "\n")
			break
		}
		loc := e.Locator
		if loc == "" {
			loc = "(collection)"
		}
		line := "  " + loc
		if e.FieldID != "" {
			line += " [" + e.FieldID + "]"
		}
		b.WriteString(line + " - " + e.Message + "\n")
	}
	b.WriteString("\n")
}

// WriteJSON writes rep as indented JSON.
func WriteJSON(w io.Writer, rep *coresync.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// Dump writes rep as JSON to path.
func Dump(path string, rep *coresync.Report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// RenderFields lists source properties with their mapping choices.
func RenderFields(sch schema.Schema, mappings []schema.FieldMapping, slugID string, allowed func(schema.NativeType) []schema.FieldType) string {
	byID := make(map[string]schema.FieldMapping, len(mappings))
	for _, m := range mappings {
		byID[m.SourcePropertyID] = m
	}
	var b strings.Builder
	b.WriteString(listHeaderStyle.Render(sch.DisplayName) + "\n\n")
	for _, p := range sch.Properties {
		m, ok := byID[p.ID]
		mark := "  "
		switch {
		case p.ID == slugID:
			mark = okStyle.Render("★ ")
		case ok && m.Enabled:
			mark = okStyle.Render("✓ ")
		}
		types := allowed(p.Type)
		line := mark + fieldNameStyle.Render(p.Name) + subtleStyle.Render(" ("+p.ID+", "+p.Type.String()+")")
		if len(types) == 0 {
			line += " " + subtleStyle.Render("unsupported")
		} else if ok && m.Enabled {
			line += " → " + fieldTypeStyle.Render(m.Type.String())
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n" + renderFooter("", "★ slug  ✓ synced"))
	return b.String() + "\n"
}

// RenderStatus summarises the run metadata stored on a collection.
func RenderStatus(md schema.RunMetadata, items int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(md.DisplayName) + "\n\n")
	fmt.Fprintf(&b, "Integration:  %s\n", md.Integration)
	fmt.Fprintf(&b, "Locator:      %s\n", string(md.Locator))
	fmt.Fprintf(&b, "Slug field:   %s\n", md.SlugFieldID)
	if md.LastSyncedTime != nil {
		fmt.Fprintf(&b, "Last synced:  %s\n", md.LastSyncedTime.Format(time.RFC3339))
	} else {
		b.WriteString("Last synced:  never\n")
	}
	fmt.Fprintf(&b, "Items:        %d\n", items)
	fmt.Fprintf(&b, "Fields:       %d mapped, %d ignored\n", len(md.FieldSettings), len(md.IgnoredFieldIDs))
	return b.String()
}

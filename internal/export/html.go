package export

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"tessera/api/internal/block"
	"tessera/api/internal/table"
)

// BlocksToHTML renders a tab's blocks to an HTML fragment. Unknown or
// malformed content degrades to a placeholder rather than failing the
// whole export.
func BlocksToHTML(blocks []renderBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		sb.WriteString(`<section class="block block-` + html.EscapeString(string(b.Type)) + `">`)
		sb.WriteString(renderBlockHTML(b))
		sb.WriteString("</section>\n")
	}
	return sb.String()
}

// renderBlock is the minimal projection of a block the renderer needs.
// Tasks carries the server-stored task rows for task blocks, whose
// content document keeps only title and order.
type renderBlock struct {
	Type    block.Type
	Content json.RawMessage
	Tasks   []block.Task
}

func renderBlockHTML(b renderBlock) string {
	switch b.Type {
	case block.TypeText:
		return renderText(b.Content)
	case block.TypeTable:
		return renderTable(b.Content)
	case block.TypeTasks:
		return renderTasks(b.Content, b.Tasks)
	case block.TypeTimeline:
		return renderTimeline(b.Content)
	case block.TypeImage:
		return renderImage(b.Content)
	case block.TypeEmbed:
		return renderEmbed(b.Content)
	default:
		return `<p class="placeholder">[` + html.EscapeString(string(b.Type)) + ` block]</p>`
	}
}

func renderText(raw json.RawMessage) string {
	var content struct {
		Title string `json:"title"`
		Text  string `json:"text"`
	}
	if err := json.Unmarshal(raw, &content); err != nil {
		return ""
	}
	var sb strings.Builder
	if content.Title != "" {
		sb.WriteString("<h2>" + html.EscapeString(content.Title) + "</h2>")
	}
	for _, line := range strings.Split(content.Text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		sb.WriteString("<p>" + html.EscapeString(line) + "</p>")
	}
	return sb.String()
}

func renderTable(raw json.RawMessage) string {
	var content block.TableContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return ""
	}
	view := table.ComputeView(&content)

	var sb strings.Builder
	if content.Title != "" {
		sb.WriteString("<h2>" + html.EscapeString(content.Title) + "</h2>")
	}
	sb.WriteString("<table><thead><tr>")
	for _, cell := range view.Header {
		sb.WriteString("<th>" + html.EscapeString(cell) + "</th>")
	}
	sb.WriteString("</tr></thead><tbody>")
	for _, row := range view.Rows {
		sb.WriteString("<tr>")
		for _, cell := range row {
			sb.WriteString("<td>" + html.EscapeString(cell) + "</td>")
		}
		sb.WriteString("</tr>")
	}
	hasFormulas := false
	for _, cell := range view.FormulaRow {
		if cell != "" {
			hasFormulas = true
			break
		}
	}
	if hasFormulas {
		sb.WriteString(`<tr class="formula">`)
		for _, cell := range view.FormulaRow {
			sb.WriteString("<td>" + html.EscapeString(cell) + "</td>")
		}
		sb.WriteString("</tr>")
	}
	sb.WriteString("</tbody></table>")
	return sb.String()
}

// renderTasks renders the task list in stored order, with checkboxes for
// done state and the resolved due date when present. stored wins over
// any inline tasks array; the latter only exists on temp blocks.
func renderTasks(raw json.RawMessage, stored []block.Task) string {
	var content struct {
		Title string       `json:"title"`
		Order []string     `json:"order"`
		Tasks []block.Task `json:"tasks"`
	}
	if err := json.Unmarshal(raw, &content); err != nil {
		return ""
	}
	if len(stored) > 0 {
		content.Tasks = stored
	}

	byID := make(map[string]block.Task, len(content.Tasks))
	for _, t := range content.Tasks {
		byID[t.ID] = t
	}
	ordered := make([]block.Task, 0, len(content.Tasks))
	seen := make(map[string]bool, len(content.Tasks))
	for _, id := range content.Order {
		if t, ok := byID[id]; ok && !seen[id] {
			ordered = append(ordered, t)
			seen[id] = true
		}
	}
	for _, t := range content.Tasks {
		if !seen[t.ID] {
			ordered = append(ordered, t)
		}
	}

	var sb strings.Builder
	if content.Title != "" {
		sb.WriteString("<h2>" + html.EscapeString(content.Title) + "</h2>")
	}
	sb.WriteString(`<ul class="tasks">`)
	for _, t := range ordered {
		mark := "&#9744;"
		if t.Status == "done" {
			mark = "&#9745;"
		}
		sb.WriteString("<li>" + mark + " " + html.EscapeString(t.Text))
		if t.DueDate != "" {
			sb.WriteString(` <span class="due">` + html.EscapeString(t.DueDate) + `</span>`)
		}
		sb.WriteString("</li>")
	}
	sb.WriteString("</ul>")
	return sb.String()
}

func renderTimeline(raw json.RawMessage) string {
	var content block.TimelineContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return ""
	}
	var sb strings.Builder
	if content.Title != "" {
		sb.WriteString("<h2>" + html.EscapeString(content.Title) + "</h2>")
	}
	sb.WriteString("<table><thead><tr><th>Event</th><th>Start</th><th>End</th><th>Status</th></tr></thead><tbody>")
	for _, ev := range content.Events {
		end := ev.End
		if ev.IsMilestone {
			end = "milestone"
		}
		sb.WriteString(fmt.Sprintf("<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>",
			html.EscapeString(ev.Title),
			html.EscapeString(ev.Start),
			html.EscapeString(end),
			html.EscapeString(ev.Status)))
	}
	sb.WriteString("</tbody></table>")
	return sb.String()
}

func renderImage(raw json.RawMessage) string {
	var content struct {
		URL     string `json:"url"`
		Caption string `json:"caption"`
	}
	if err := json.Unmarshal(raw, &content); err != nil || content.URL == "" {
		return ""
	}
	out := `<figure><img src="` + html.EscapeString(content.URL) + `" alt="">`
	if content.Caption != "" {
		out += "<figcaption>" + html.EscapeString(content.Caption) + "</figcaption>"
	}
	return out + "</figure>"
}

func renderEmbed(raw json.RawMessage) string {
	var content struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &content); err != nil || content.URL == "" {
		return ""
	}
	escaped := html.EscapeString(content.URL)
	return `<p class="embed"><a href="` + escaped + `">` + escaped + `</a></p>`
}

package engine

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"text/tabwriter"
)

var sectionTitles = map[Category]string{
	CategoryTop:    "Tops",
	CategoryBottom: "Bottoms",
	CategoryShoe:   "Shoes",
}

// RenderText writes the summary as aligned plain text
func RenderText(w io.Writer, s *UsageSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, cat := range Categories {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintln(tw, sectionTitles[cat])
		ranking := s.Ranking(cat)
		if len(ranking) == 0 {
			fmt.Fprintln(tw, "  (none worn)")
			continue
		}
		for _, u := range ranking {
			fmt.Fprintf(tw, "  %s\tx%d\n", u.Description, u.Count)
		}
	}
	return tw.Flush()
}

// TextReport returns RenderText output as a string
func TextReport(s *UsageSummary) (string, error) {
	var b strings.Builder
	if err := RenderText(&b, s); err != nil {
		return "", err
	}
	return b.String(), nil
}

var htmlReport = template.Must(template.New("report").Parse(`<html><body>
{{range .}}<h3>{{.Title}}</h3>
{{if .Rows}}<table>
<tr><th align="left">Item</th><th align="right">Worn</th></tr>
{{range .Rows}}<tr><td>{{.Description}}</td><td align="right">{{.Count}}</td></tr>
{{end}}</table>
{{else}}<p>None worn.</p>
{{end}}{{end}}</body></html>
`))

type htmlSection struct {
	Title string
	Rows  []UsageCount
}

// RenderHTML writes the summary as an HTML email body
func RenderHTML(w io.Writer, s *UsageSummary) error {
	sections := make([]htmlSection, 0, len(Categories))
	for _, cat := range Categories {
		sections = append(sections, htmlSection{Title: sectionTitles[cat], Rows: s.Ranking(cat)})
	}
	return htmlReport.Execute(w, sections)
}

package web

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/regimport/internal/core"
)

const pageStyle = `body{font-family:sans-serif;margin:2rem;color:#222}
table{border-collapse:collapse;margin-bottom:2rem}
th,td{border:1px solid #ccc;padding:.3rem .6rem;text-align:left}
.missing{color:#888}.failed{color:#b00}`

// summaryPage renders the table summary and, when present, the latest run.
func summaryPage(summaries []core.TableSummary, latest *core.RunResult) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>regimport</title><style>")
		b.WriteString(pageStyle)
		b.WriteString("</style></head><body><h1>Database summary</h1>")
		b.WriteString("<table><thead><tr><th>Table</th><th>Rows</th><th>Columns</th></tr></thead><tbody>")
		for _, s := range summaries {
			switch {
			case s.Error != "":
				fmt.Fprintf(&b, `<tr class="failed"><td>%s</td><td colspan="2">%s</td></tr>`,
					templ.EscapeString(s.Table), templ.EscapeString(s.Error))
			case !s.Exists:
				fmt.Fprintf(&b, `<tr class="missing"><td>%s</td><td colspan="2">not loaded</td></tr>`,
					templ.EscapeString(s.Table))
			default:
				fmt.Fprintf(&b, "<tr><td>%s</td><td>%d</td><td>%s</td></tr>",
					templ.EscapeString(s.Table), s.Rows, templ.EscapeString(strings.Join(s.Columns, ", ")))
			}
		}
		b.WriteString("</tbody></table>")

		if latest != nil {
			writeRun(&b, latest)
		}
		b.WriteString("</body></html>")

		_, err := io.WriteString(w, b.String())
		return err
	})
}

func writeRun(b *strings.Builder, run *core.RunResult) {
	fmt.Fprintf(b, "<h2>Latest run</h2><p>%s &middot; %s &middot; %s &middot; %d rows</p>",
		templ.EscapeString(run.Source), run.StartedAt.Format("2006-01-02 15:04:05"),
		run.Duration.Round(time.Millisecond), run.RowsLoaded())
	b.WriteString("<table><thead><tr><th>Sheet</th><th>Table</th><th>Rows</th><th>Issues</th></tr></thead><tbody>")
	for _, s := range run.Sheets {
		if s.Failed() {
			fmt.Fprintf(b, `<tr class="failed"><td>%s</td><td>%s</td><td colspan="2">%s (%s)</td></tr>`,
				templ.EscapeString(s.Label), templ.EscapeString(s.Table),
				templ.EscapeString(s.Error), templ.EscapeString(s.Code))
			continue
		}
		fmt.Fprintf(b, "<tr><td>%s</td><td>%s</td><td>%d</td><td>%s</td></tr>",
			templ.EscapeString(s.Label), templ.EscapeString(s.Table), s.Rows,
			templ.EscapeString(strings.Join(s.Report.Issues, "; ")))
	}
	b.WriteString("</tbody></table>")
}

package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/opentrace-console/internal/client/models"
	"github.com/dmitrijs2005/opentrace-console/internal/client/poller"
	"github.com/dmitrijs2005/opentrace-console/internal/client/views"
	"github.com/dustin/go-humanize"
)

func table(fn func(w *tabwriter.Writer)) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fn(w)
	_ = w.Flush()
	return b.String()
}

// header renders the status line of a view. It returns false when there is
// no data to draw below it.
func header[T any](b *strings.Builder, title string, st poller.State[T]) bool {
	switch {
	case st.Loading:
		fmt.Fprintf(b, "[%s] loading...\n", title)
		return false
	case st.Refreshing:
		fmt.Fprintf(b, "[%s] refreshing...\n", title)
	case st.HasData:
		fmt.Fprintf(b, "[%s] updated %s\n", title, humanize.Time(st.UpdatedAt))
	}

	if st.Err != nil {
		switch {
		case errors.Is(st.Err, views.ErrNoResource):
			fmt.Fprintf(b, "[%s] no resource selected, use 'select <id>'\n", title)
		case errors.Is(st.Err, views.ErrRangeIncomplete):
			fmt.Fprintf(b, "[%s] %s\n", title, st.Err)
		default:
			fmt.Fprintf(b, "[%s] error: %s\n", title, st.Err)
		}
	}
	if st.ShowEmpty() && st.Err == nil {
		fmt.Fprintf(b, "[%s] no data\n", title)
	}
	return st.HasData
}

func renderDashboard(st poller.State[*models.DashboardStats]) string {
	var b strings.Builder
	if !header(&b, "dashboard", st) || st.Refreshing || st.Data == nil {
		return b.String()
	}
	d := st.Data
	b.WriteString(table(func(w *tabwriter.Writer) {
		fmt.Fprintf(w, "visitors\t%s\n", humanize.Comma(d.Visitors))
		fmt.Fprintf(w, "views\t%s\n", humanize.Comma(d.Views))
		fmt.Fprintf(w, "avg session\t%s\n", d.Session)
		fmt.Fprintf(w, "bounce\t%s\n", d.Bounce)
		if d.Retention != nil {
			fmt.Fprintf(w, "retention d7/d30\t%s / %s\n", d.Retention.D7, d.Retention.D30)
		}
	}))
	b.WriteString(renderChart(d.ChartData))
	return b.String()
}

func renderLive(st poller.State[*models.LiveFeed]) string {
	var b strings.Builder
	if !header(&b, "live", st) || st.Refreshing || st.Data == nil {
		return b.String()
	}
	d := st.Data
	if d.Error != "" {
		fmt.Fprintf(&b, "backend: %s\n", d.Error)
	}
	fmt.Fprintf(&b, "online now: %d\n", d.Online)
	if len(d.Locations) > 0 {
		b.WriteString(table(func(w *tabwriter.Writer) {
			fmt.Fprintln(w, "CITY\tVISITORS")
			for _, l := range d.Locations {
				fmt.Fprintf(w, "%s\t%d\n", l.City, l.Count)
			}
		}))
	}
	if len(d.Events) > 0 {
		b.WriteString(table(func(w *tabwriter.Writer) {
			fmt.Fprintln(w, "TIME\tTYPE\tURL")
			for _, e := range d.Events {
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.TS, e.Type, e.URL)
			}
		}))
	}
	return b.String()
}

func renderExploration(st poller.State[*models.Exploration]) string {
	var b strings.Builder
	if !header(&b, "analytics", st) || st.Refreshing || st.Data == nil {
		return b.String()
	}
	d := st.Data
	b.WriteString(table(func(w *tabwriter.Writer) {
		fmt.Fprintf(w, "visitors\t%s\n", humanize.Comma(d.Visitors))
		fmt.Fprintf(w, "views\t%s\n", humanize.Comma(d.Views))
		fmt.Fprintf(w, "bounce\t%s\n", d.Bounce)
	}))
	b.WriteString(renderChart(d.ChartData))
	b.WriteString(renderCounts("PAGE", d.Pages))
	b.WriteString(renderCounts("SOURCE", d.Sources))
	return b.String()
}

func renderFunnels(st poller.State[[]models.Funnel]) string {
	var b strings.Builder
	if !header(&b, "funnels", st) || st.Refreshing {
		return b.String()
	}
	if len(st.Data) == 0 {
		b.WriteString("No funnels for this resource.\n")
		return b.String()
	}
	b.WriteString(table(func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "ID\tNAME\tSTEPS\tCREATED")
		for _, f := range st.Data {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", f.ID, f.Name, f.StepsCount, created(f.CreatedAt))
		}
	}))
	return b.String()
}

// retentionDays is the highest day_N column shown.
const retentionDays = 7

func renderRetention(st poller.State[*models.RetentionReport]) string {
	var b strings.Builder
	if !header(&b, "retention", st) || st.Refreshing || st.Data == nil {
		return b.String()
	}
	if len(st.Data.Cohorts) == 0 {
		b.WriteString("No cohorts in this window.\n")
		return b.String()
	}
	b.WriteString(table(func(w *tabwriter.Writer) {
		fmt.Fprint(w, "COHORT\tUSERS")
		for d := 0; d <= retentionDays; d++ {
			fmt.Fprintf(w, "\tD%d", d)
		}
		fmt.Fprintln(w)
		for _, c := range st.Data.Cohorts {
			fmt.Fprintf(w, "%s\t%s", c.CohortDate, humanize.Comma(c.CohortSize))
			for d := 0; d <= retentionDays; d++ {
				v, ok := c.Retention[fmt.Sprintf("day_%d", d)]
				if !ok {
					fmt.Fprint(w, "\t-")
					continue
				}
				fmt.Fprintf(w, "\t%s", humanize.Ftoa(v))
			}
			fmt.Fprintln(w)
		}
	}))
	return b.String()
}

func renderMonitor(st poller.State[*models.SystemMonitor]) string {
	var b strings.Builder
	if !header(&b, "monitor", st) || st.Refreshing || st.Data == nil {
		return b.String()
	}
	m := st.Data
	b.WriteString(table(func(w *tabwriter.Writer) {
		fmt.Fprintf(w, "status\t%s\n", m.Status)
		fmt.Fprintf(w, "host\t%s %s (%s)\n", m.System.Platform, m.System.Release, m.System.Arch)
		fmt.Fprintf(w, "uptime\t%s\n", time.Duration(m.System.UptimeSeconds)*time.Second)
		fmt.Fprintf(w, "cpu\t%.1f%% of %d cores\n", m.CPU.Percent, m.CPU.Cores)
		if len(m.CPU.LoadAvg) == 3 {
			fmt.Fprintf(w, "load\t%.2f %.2f %.2f\n", m.CPU.LoadAvg[0], m.CPU.LoadAvg[1], m.CPU.LoadAvg[2])
		}
		fmt.Fprintf(w, "memory\t%s / %s (%.1f%%)\n", humanize.IBytes(m.Memory.Used), humanize.IBytes(m.Memory.Total), m.Memory.Percent)
		fmt.Fprintf(w, "disk\t%s / %s (%.1f%%)\n", humanize.IBytes(m.Disk.Used), humanize.IBytes(m.Disk.Total), m.Disk.Percent)
	}))
	return b.String()
}

func renderChart(points []models.ChartPoint) string {
	if len(points) == 0 {
		return ""
	}
	var peak int64
	for _, p := range points {
		peak = max(peak, p.Value)
	}
	return table(func(w *tabwriter.Writer) {
		for _, p := range points {
			bar := 0
			if peak > 0 {
				bar = int(p.Value * 30 / peak)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\n", p.Name, strings.Repeat("#", bar), p.Value)
		}
	})
}

func renderCounts(title string, rows []models.NamedCount) string {
	if len(rows) == 0 {
		return ""
	}
	return table(func(w *tabwriter.Writer) {
		fmt.Fprintf(w, "%s\tCOUNT\n", title)
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\n", r.Name, humanize.Comma(r.Count))
		}
	})
}

func renderResources(rs []models.Resource, selected int64) string {
	if len(rs) == 0 {
		return "No resources yet. Use 'add' to create one.\n"
	}
	return table(func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "\tID\tNAME\tTYPE\tUID\tSTATUS\tCREATED")
		for _, r := range rs {
			mark := ""
			if r.ID == selected {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
				mark, r.ID, r.Name, r.Type, r.UID, r.Status, created(r.CreatedAt))
		}
	})
}

func renderCampaigns(cs []models.Campaign) string {
	if len(cs) == 0 {
		return "No campaigns.\n"
	}
	return table(func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "ID\tNAME\tSOURCE\tMEDIUM\tCAMPAIGN\tSLUG\tRESOURCE")
		for _, c := range cs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				c.ID, c.Name, c.Source, c.Medium, c.Campaign, c.Slug, optionalID(c.ResourceID))
		}
	})
}

func renderEvents(es []models.Event) string {
	if len(es) == 0 {
		return "No events.\n"
	}
	return table(func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "ID\tNAME\tTRIGGER\tSELECTOR\tRESOURCE\tHITS")
		for _, e := range es {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
				e.ID, e.Name, e.Trigger, e.Selector, e.ResourceID, humanize.Comma(e.Count))
		}
	})
}

func renderTags(ts []models.Tag) string {
	if len(ts) == 0 {
		return "No tags.\n"
	}
	return table(func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "ID\tNAME\tPROVIDER\tACTIVE\tRESOURCE")
		for _, t := range ts {
			fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\n", t.ID, t.Name, t.Provider, t.IsActive, optionalID(t.ResourceID))
		}
	})
}

func created(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func optionalID(id *int64) string {
	if id == nil {
		return "all"
	}
	return fmt.Sprint(*id)
}

// Package view projects a folder's contents into the renderable row
// sequence: partition, sort, group, paginate. Project is a pure
// function of its inputs, so identical inputs always produce identical
// ordering and the UI never jitters on re-render.
package view

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/paperdrive/paperdrive/pkg/models"
)

// SortKey selects the attribute rows are ordered by.
type SortKey string

const (
	SortByName         SortKey = "name"
	SortBySize         SortKey = "size"
	SortByDateAdded    SortKey = "dateAdded"
	SortByDateModified SortKey = "dateModified"
)

// SortDirection is ascending or descending.
type SortDirection string

const (
	Ascending  SortDirection = "asc"
	Descending SortDirection = "desc"
)

// GroupKey selects how rows are bucketed under collapsible headers.
type GroupKey string

const (
	GroupNone   GroupKey = "none"
	GroupByType GroupKey = "type"
	GroupByDate GroupKey = "date"
)

// Config is the projection configuration.
type Config struct {
	SortKey   SortKey
	SortDir   SortDirection
	GroupKey  GroupKey
	PageSize  int
	// Now anchors the relative date buckets. Zero means time.Now();
	// tests pin it for determinism.
	Now time.Time
}

// Group is one bucket of rows with its header label and full member
// count. Rows may be shorter than Total when pagination truncates the
// bucket.
type Group struct {
	Label string
	Total int
	Rows  []models.Node
}

// Projection is the renderable output.
type Projection struct {
	Groups  []Group
	Total   int  // leaf rows before pagination
	Visible int  // leaf rows exposed
	HasMore bool // true when another page remains
}

// Rows flattens the visible rows across groups.
func (p Projection) Rows() []models.Node {
	var out []models.Node
	for _, g := range p.Groups {
		out = append(out, g.Rows...)
	}
	return out
}

// GroupUnknownDate labels nodes whose dates are unusable.
const GroupUnknownDate = "Unknown Date"

// Project computes the row sequence for one folder's nodes under cfg,
// exposing the first PageSize*pagesRevealed leaf rows. Expanding a
// group costs nothing; only the top-level reveal count pages.
func Project(nodes []models.Node, cfg Config, pagesRevealed int) Projection {
	if cfg.SortKey == "" {
		cfg.SortKey = SortByName
	}
	if cfg.SortDir == "" {
		cfg.SortDir = Ascending
	}
	if cfg.GroupKey == "" {
		cfg.GroupKey = GroupNone
	}
	if pagesRevealed < 1 {
		pagesRevealed = 1
	}

	sorted := make([]models.Node, len(nodes))
	copy(sorted, nodes)
	sortNodes(sorted, cfg)

	groups := bucket(sorted, cfg)

	total := len(sorted)
	limit := total
	if cfg.PageSize > 0 {
		limit = cfg.PageSize * pagesRevealed
		if limit > total {
			limit = total
		}
	}

	visible := 0
	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		if visible >= limit {
			break
		}
		take := limit - visible
		if take > len(g.Rows) {
			take = len(g.Rows)
		}
		out = append(out, Group{Label: g.Label, Total: g.Total, Rows: g.Rows[:take]})
		visible += take
	}

	return Projection{
		Groups:  out,
		Total:   total,
		Visible: visible,
		HasMore: visible < total,
	}
}

// sortNodes orders the slice by the configured key. Folders sort before
// documents only under the name key; any other key interleaves them.
// The sort is stable, so input order breaks remaining ties.
func sortNodes(nodes []models.Node, cfg Config) {
	desc := cfg.SortDir == Descending
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]

		if cfg.SortKey == SortByName && a.Kind != b.Kind {
			return a.IsFolder()
		}

		switch cfg.SortKey {
		case SortBySize:
			sa, sb := sizeFor(a), sizeFor(b)
			if sa == sb {
				return false
			}
			if desc {
				return sa > sb
			}
			return sa < sb
		case SortByDateAdded:
			return lessByDate(a.CreatedAt, b.CreatedAt, desc)
		case SortByDateModified:
			return lessByDate(a.UpdatedAt, b.UpdatedAt, desc)
		default:
			na, nb := strings.ToLower(a.Name), strings.ToLower(b.Name)
			if na == nb {
				return false
			}
			if desc {
				return na > nb
			}
			return na < nb
		}
	})
}

// sizeFor treats folders and pending documents as equal-lowest.
func sizeFor(n models.Node) int64 {
	if !n.HasKnownSize() {
		return models.SizeUnknown
	}
	return n.SizeBytes
}

// lessByDate orders unknown (zero) dates before known ones regardless
// of direction; direction applies between known dates only.
func lessByDate(a, b time.Time, desc bool) bool {
	if a.IsZero() || b.IsZero() {
		return a.IsZero() && !b.IsZero()
	}
	if a.Equal(b) {
		return false
	}
	if desc {
		return a.After(b)
	}
	return a.Before(b)
}

// bucket splits the sorted sequence by the derived group label,
// preserving order of first appearance. GroupNone yields one unlabeled
// bucket.
func bucket(sorted []models.Node, cfg Config) []Group {
	if cfg.GroupKey == GroupNone {
		return []Group{{Rows: sorted, Total: len(sorted)}}
	}

	now := cfg.Now
	if now.IsZero() {
		now = time.Now()
	}

	var order []string
	byLabel := make(map[string]*Group)
	for _, n := range sorted {
		var label string
		switch cfg.GroupKey {
		case GroupByType:
			label = TypeLabel(n)
		case GroupByDate:
			label = DateLabel(groupDate(n, cfg.SortKey), now)
		}
		g, ok := byLabel[label]
		if !ok {
			g = &Group{Label: label}
			byLabel[label] = g
			order = append(order, label)
		}
		g.Rows = append(g.Rows, n)
		g.Total++
	}

	out := make([]Group, 0, len(order))
	for _, label := range order {
		out = append(out, *byLabel[label])
	}
	return out
}

// groupDate picks the date the buckets are derived from: the added date
// when sorting by it, the modified date otherwise.
func groupDate(n models.Node, key SortKey) time.Time {
	if key == SortByDateAdded {
		return n.CreatedAt
	}
	return n.UpdatedAt
}

// wellKnownTypes maps content-type fragments to friendly labels.
var wellKnownTypes = []struct {
	fragment string
	label    string
}{
	{"pdf", "PDF"},
	{"spreadsheet", "Excel"},
	{"ms-excel", "Excel"},
	{"wordprocessing", "Word"},
	{"msword", "Word"},
	{"presentation", "PowerPoint"},
	{"ms-powerpoint", "PowerPoint"},
	{"csv", "CSV"},
	{"zip", "Archive"},
	{"x-tar", "Archive"},
}

// TypeLabel derives the display bucket for a node when grouping by
// type: folders are "Folder"; documents get a friendly name for
// well-known content types, the upper-cased subtype as a fallback, and
// "Other" when the content type is blank or unusable.
func TypeLabel(n models.Node) string {
	if n.IsFolder() {
		return "Folder"
	}

	ct := strings.ToLower(strings.TrimSpace(n.ContentType))
	if ct == "" {
		return "Other"
	}

	switch {
	case strings.HasPrefix(ct, "image/"):
		return "Image"
	case strings.HasPrefix(ct, "video/"):
		return "Video"
	case strings.HasPrefix(ct, "audio/"):
		return "Audio"
	case strings.HasPrefix(ct, "text/plain"):
		return "Text"
	}

	for _, wk := range wellKnownTypes {
		if strings.Contains(ct, wk.fragment) {
			return wk.label
		}
	}

	sub := ct
	if i := strings.LastIndex(ct, "/"); i >= 0 {
		sub = ct[i+1:]
	}
	sub = strings.TrimPrefix(sub, "x-")
	if sub == "" || len(sub) > 8 || strings.ContainsAny(sub, ".+;= ") {
		return "Other"
	}
	return strings.ToUpper(sub)
}

// DateLabel derives the relative display bucket for a timestamp: Today,
// Yesterday, This Week (weeks start Monday), This Month, then month and
// year for the current year and the bare year for older dates.
func DateLabel(t, now time.Time) string {
	if t.IsZero() {
		return GroupUnknownDate
	}

	t = t.In(now.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, now.Location())

	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	case !day.Before(startOfWeek(today)) && day.Before(today):
		return "This Week"
	case t.Year() == now.Year() && t.Month() == now.Month():
		return "This Month"
	case t.Year() == now.Year():
		return t.Format("January 2006")
	default:
		return fmt.Sprintf("%d", t.Year())
	}
}

// startOfWeek returns the Monday of the week containing day.
func startOfWeek(day time.Time) time.Time {
	wd := int(day.Weekday())
	if wd == 0 {
		wd = 7 // Sunday belongs to the week started the previous Monday
	}
	return day.AddDate(0, 0, -(wd - 1))
}

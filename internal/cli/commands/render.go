package commands

import (
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	json "github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/leapstack-labs/leapmap/internal/engine"
	"github.com/leapstack-labs/leapmap/pkg/mapping"
)

// Summary describes one successful load.
type Summary struct {
	Resources       []string `json:"resources"`
	Statements      int      `json:"statements"`
	ResultMaps      int      `json:"result_maps"`
	Caches          int      `json:"caches"`
	BoundInterfaces int      `json:"bound_interfaces"`
	Duration        string   `json:"duration"`
}

// NewSummary counts what a load produced.
func NewSummary(res *engine.Result) Summary {
	cfg := res.Configuration
	return Summary{
		Resources:       res.Resources,
		Statements:      len(cfg.Statements()),
		ResultMaps:      len(cfg.ResultMaps()),
		Caches:          len(cfg.CacheNamespaces()),
		BoundInterfaces: len(cfg.Bindings().Bound()),
		Duration:        res.Duration.Round(time.Microsecond).String(),
	}
}

// Line is the one-line text form of the summary.
func (s Summary) Line() string {
	return fmt.Sprintf("Loaded %s: %s, %s, %s in %s",
		english.Plural(len(s.Resources), "document", ""),
		english.Plural(s.Statements, "statement", ""),
		english.Plural(s.ResultMaps, "result map", ""),
		english.Plural(s.Caches, "cache", ""),
		s.Duration)
}

// section is one inspectable table.
type section struct {
	Title  string
	Header table.Row
	Rows   []table.Row
}

func statementSection(cfg *mapping.Configuration) section {
	s := section{
		Title:  "Statements",
		Header: table.Row{"ID", "Kind", "Params", "Result maps", "Cache", "Use cache", "Flush"},
	}
	for _, st := range cfg.Statements() {
		var maps []string
		for _, rm := range st.ResultMaps {
			maps = append(maps, rm.ID)
		}
		params := 0
		if st.SQL != nil {
			params = len(st.SQL.Params)
		}
		cacheID := "-"
		if st.Cache != nil {
			cacheID = st.Cache.ID()
		}
		s.Rows = append(s.Rows, table.Row{
			st.ID, st.Kind.String(), params, orDash(strings.Join(maps, ", ")), cacheID, st.UseCache, st.FlushCache,
		})
	}
	return s
}

func resultMapSection(cfg *mapping.Configuration) section {
	s := section{
		Title:  "Result maps",
		Header: table.Row{"ID", "Type", "Mappings", "IDs", "Extends", "Discriminator", "Nested"},
	}
	for _, rm := range cfg.ResultMaps() {
		disc := "-"
		if rm.Discriminator != nil {
			disc = fmt.Sprintf("%s (%s)", rm.Discriminator.Column, english.Plural(len(rm.Discriminator.Cases), "case", ""))
		}
		s.Rows = append(s.Rows, table.Row{
			rm.ID, typeName(rm.Type), len(rm.Mappings), len(rm.IDMappings), orDash(rm.Extends), disc,
			rm.HasNestedResultMaps || rm.HasNestedSelects,
		})
	}
	return s
}

func cacheSection(cfg *mapping.Configuration) section {
	s := section{
		Title:  "Caches",
		Header: table.Row{"Namespace", "Type", "Eviction", "Size", "Flush interval", "Read only", "Blocking", "Delegates to"},
	}
	for _, ns := range cfg.CacheNamespaces() {
		if target, ok := cfg.CacheRef(ns); ok {
			s.Rows = append(s.Rows, table.Row{ns, "-", "-", "-", "-", "-", "-", target})
			continue
		}
		cc, ok := cfg.CacheConfig(ns)
		if !ok {
			continue
		}
		size := "default"
		if cc.Size > 0 {
			size = humanize.Comma(int64(cc.Size))
		}
		flush := "-"
		if cc.FlushInterval > 0 {
			flush = cc.FlushInterval.String()
		}
		s.Rows = append(s.Rows, table.Row{
			ns, orDash(cc.Type), orDash(cc.Eviction), size, flush, cc.ReadOnly, cc.Blocking, "-",
		})
	}
	return s
}

// renderSections writes sections as tables (text, markdown) or one JSON
// object keyed by section title.
func renderSections(w io.Writer, format string, sections []section) error {
	if format == FormatJSON {
		out := make(map[string][]map[string]any, len(sections))
		for _, s := range sections {
			rows := make([]map[string]any, 0, len(s.Rows))
			for _, r := range s.Rows {
				obj := make(map[string]any, len(r))
				for i, v := range r {
					obj[jsonKey(fmt.Sprint(s.Header[i]))] = v
				}
				rows = append(rows, obj)
			}
			out[jsonKey(s.Title)] = rows
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for i, s := range sections {
		if i > 0 {
			_, _ = fmt.Fprintln(w)
		}
		if format == FormatMarkdown {
			_, _ = fmt.Fprintf(w, "## %s\n\n", s.Title)
		} else {
			_, _ = fmt.Fprintf(w, "%s\n", s.Title)
		}
		if len(s.Rows) == 0 {
			_, _ = fmt.Fprintln(w, "(none)")
			continue
		}

		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(s.Header)
		t.AppendRows(s.Rows)
		if format == FormatMarkdown {
			t.RenderMarkdown()
		} else {
			t.Render()
		}
	}
	return nil
}

func jsonKey(title string) string {
	return strings.ReplaceAll(strings.ToLower(title), " ", "_")
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "-"
	}
	return t.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// stragglerLines lists unresolved elements of a failed load, nil when err
// is something else.
func stragglerLines(err error) []string {
	unresolved, ok := asUnresolved(err)
	if !ok {
		return nil
	}
	lines := make([]string, 0, len(unresolved.Stragglers))
	for _, s := range unresolved.Stragglers {
		lines = append(lines, s.String())
	}
	return lines
}

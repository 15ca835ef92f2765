// Package format renders predictions and artifact summaries as terminal or
// Markdown tables.
package format

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ayemaqu/pedrisk/internal/artifact"
	"github.com/ayemaqu/pedrisk/internal/schema"
	"github.com/ayemaqu/pedrisk/internal/variant"
)

// Mode controls the output format.
type Mode int

const (
	ASCII    Mode = iota // box-drawn terminal tables
	Markdown             // GitHub-flavoured Markdown tables
)

// ParseMode maps a --format flag value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table", "ascii":
		return ASCII, nil
	case "markdown", "md":
		return Markdown, nil
	default:
		return ASCII, fmt.Errorf("unknown output format %q", s)
	}
}

func newWriter(m Mode) table.Writer {
	w := table.NewWriter()
	if m == ASCII {
		w.SetStyle(table.StyleLight)
	}
	// Labels such as "high risk" print as given.
	w.Style().Format.Header = text.FormatDefault
	w.Style().Format.Footer = text.FormatDefault
	return w
}

func render(w table.Writer, m Mode) string {
	if m == Markdown {
		return w.RenderMarkdown()
	}
	return w.Render()
}

// Prediction renders the class probabilities of res followed by its outcome.
func Prediction(res *variant.Result, m Mode) string {
	w := newWriter(m)
	w.SetTitle(fmt.Sprintf("%s %s", res.Variant, res.PipelineVersion))
	w.AppendHeader(table.Row{"Class", "Probability", ""})
	for _, c := range res.Probabilities {
		mark := ""
		if c.Label == res.Outcome.Class {
			mark = "*"
		}
		w.AppendRow(table.Row{c.Label, Percent(c.Probability), mark})
	}
	out := res.Outcome
	rule := string(out.Rule)
	if out.Threshold != nil {
		rule = fmt.Sprintf("%s > %s", rule, Percent(*out.Threshold))
	}
	w.AppendFooter(table.Row{"Outcome", out.Label, rule})
	w.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})

	var b strings.Builder
	b.WriteString(render(w, m))
	fmt.Fprintf(&b, "\nrequest %s\n", res.RequestID)
	return b.String()
}

// Bundle renders the schema, metadata ranges, classes and accuracy of b.
func Bundle(b *artifact.Bundle, m Mode) string {
	p := b.Pipeline
	w := newWriter(m)
	title := p.Name()
	if v := b.Version; v != "" {
		title += " " + v
	} else if v := p.Version(); v != "" {
		title += " " + v
	}
	w.SetTitle(title)
	w.AppendHeader(table.Row{"Feature", "Kind", "Domain", "Default"})
	for _, f := range p.Schema().Features {
		def := ""
		domain := featureDomain(f)
		if r, ok := b.Metadata.Features[f.Name]; ok {
			domain = fmt.Sprintf("[%s, %s]", Number(r.Min), Number(r.Max))
			def = Number(r.Default)
		}
		w.AppendRow(table.Row{f.Name, string(f.Kind), Truncate(domain, 60), def})
	}
	w.SetColumnConfigs([]table.ColumnConfig{{Number: 3, WidthMax: 60}})

	var s strings.Builder
	s.WriteString(render(w, m))
	fmt.Fprintf(&s, "\nclasses: %s\n", strings.Join(p.Classes(), ", "))
	if acc := b.Metadata.TestAccuracy; acc != nil {
		fmt.Fprintf(&s, "test accuracy: %s\n", Percent(*acc))
	}
	return s.String()
}

func featureDomain(f schema.Feature) string {
	switch f.Kind {
	case schema.KindCategorical:
		d := strings.Join(f.Levels, " | ")
		if f.Other != "" {
			d += " (unseen -> " + f.Other + ")"
		}
		return d
	default:
		lo, hi := "-inf", "+inf"
		if f.Min != nil {
			lo = Number(*f.Min)
		}
		if f.Max != nil {
			hi = Number(*f.Max)
		}
		return fmt.Sprintf("[%s, %s]", lo, hi)
	}
}

// Package console renders an interactive brainstorming run on a terminal.
package console

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/nidhogg/brainstorm/internal/brainstorm"
	"github.com/nidhogg/brainstorm/internal/collect"
	"github.com/nidhogg/brainstorm/internal/index"
	"github.com/nidhogg/brainstorm/internal/session"
)

// View writes prompts and results to out.
type View struct {
	out     io.Writer
	heading *color.Color
	prompt  *color.Color
	ok      *color.Color
	warn    *color.Color
	fail    *color.Color
	dim     *color.Color
}

var _ brainstorm.View = (*View)(nil)

// NewView creates a view writing to out.
func NewView(out io.Writer) *View {
	return &View{
		out:     out,
		heading: color.New(color.FgCyan, color.Bold),
		prompt:  color.New(color.FgYellow),
		ok:      color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		fail:    color.New(color.FgRed),
		dim:     color.New(color.Faint),
	}
}

func (v *View) Ask(state brainstorm.State, cfg brainstorm.Config) {
	switch state {
	case brainstorm.StatePurposeCapture:
		v.heading.Fprintln(v.out, "\n== Brainstorming ==")
		v.prompt.Fprint(v.out, "What are you brainstorming for? ")
	case brainstorm.StateConfirmationGate:
		v.prompt.Fprintf(v.out, "\nType %q when you are ready to list associations: ", cfg.Affirmative)
	case brainstorm.StateAssociationCapture:
		v.heading.Fprintln(v.out, "\n== Free association ==")
		fmt.Fprintf(v.out, "Enter one word or phrase per line. Aim for %d to %d within %s.\n",
			cfg.MinAssociations, cfg.MaxAssociations, cfg.AssociationDeadline)
	case brainstorm.StateDeletionConfirm:
		v.prompt.Fprintf(v.out, "\nDelete this session's data? Type %q to delete, anything else keeps it: ", cfg.Affirmative)
	}
}

func (v *View) Warmup(questions []string) {
	if len(questions) == 0 {
		v.dim.Fprintln(v.out, "(no warm-up questions this time)")
		return
	}
	v.heading.Fprintln(v.out, "\n== Warm-up ==")
	for i, q := range questions {
		fmt.Fprintf(v.out, "%d. %s\n", i+1, q)
	}
}

func (v *View) Progress(s collect.Status) {
	if s.Collected == 0 && s.Phase > 1 {
		v.warn.Fprintf(v.out, "Only a few so far. %d more please, %s left.\n", s.Needed, s.Remaining.Round(time.Second))
		return
	}
	if s.Collected > 0 {
		v.dim.Fprintf(v.out, "  [%d/%d]\n", s.Collected, s.Max)
	}
}

func (v *View) Keywords(keywords []index.Keyword) {
	v.heading.Fprintln(v.out, "\n== Keywords ==")
	if len(keywords) == 0 {
		v.dim.Fprintln(v.out, "(none)")
		return
	}
	for _, k := range keywords {
		fmt.Fprintf(v.out, "- %s (%.2f)\n", k.Text, k.Similarity)
	}
}

func (v *View) Ideas(ideas []session.Idea) {
	v.heading.Fprintln(v.out, "\n== Ideas ==")
	for i, idea := range ideas {
		v.ok.Fprintf(v.out, "%d. %s\n", i+1, idea.Title)
		if idea.Description != "" {
			fmt.Fprintf(v.out, "   %s\n", idea.Description)
		}
		if idea.Technique != nil {
			v.dim.Fprintf(v.out, "   technique: %s\n", *idea.Technique)
		}
	}
}

func (v *View) Analysis(ideas []session.Idea) {
	v.heading.Fprintln(v.out, "\n== SWOT ==")
	for _, idea := range ideas {
		if idea.Analysis == nil {
			continue
		}
		v.ok.Fprintln(v.out, idea.Title)
		a := idea.Analysis
		for _, sec := range [][2]string{
			{"Strengths", a.Strengths},
			{"Weaknesses", a.Weaknesses},
			{"Opportunities", a.Opportunities},
			{"Threats", a.Threats},
		} {
			fmt.Fprintf(v.out, "  %s:\n    %s\n", sec[0], strings.ReplaceAll(sec[1], "\n", "\n    "))
		}
	}
}

func (v *View) Failed(state brainstorm.State, err error) {
	v.fail.Fprintf(v.out, "%s failed: %v\n", label(state), err)
}

func (v *View) Interrupted(state brainstorm.State) {
	v.warn.Fprintf(v.out, "\nInterrupted during %s.\n", label(state))
}

func (v *View) Finished(state brainstorm.State) {
	switch state {
	case brainstorm.StateDeletionComplete:
		v.ok.Fprintln(v.out, "Session data deleted.")
	case brainstorm.StateRetained:
		v.dim.Fprintln(v.out, "Session data kept.")
	}
}

func label(s brainstorm.State) string {
	return strings.ReplaceAll(string(s), "_", " ")
}

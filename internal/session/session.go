// Package session keeps brainstorming sessions in memory for the lifetime of
// a run. The Store is the only owner of session state; callers get copies.
package session

import (
	"strings"
	"time"
)

// NoData marks a SWOT section the analysis response left out.
const NoData = "(no data)"

// IndexPrefix prefixes every ephemeral index handle.
const IndexPrefix = "ephemeral_session_"

// SWOT is the four-part analysis attached to an idea.
type SWOT struct {
	Strengths     string `json:"strengths"`
	Weaknesses    string `json:"weaknesses"`
	Opportunities string `json:"opportunities"`
	Threats       string `json:"threats"`
}

// EmptySWOT returns an analysis with every section set to NoData.
func EmptySWOT() SWOT {
	return SWOT{Strengths: NoData, Weaknesses: NoData, Opportunities: NoData, Threats: NoData}
}

// Idea is one generated idea with its optional analysis.
type Idea struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Technique   *string `json:"technique,omitempty"`
	Analysis    *SWOT   `json:"analysis,omitempty"`
}

// Session is the full state of one brainstorming run.
type Session struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	Purpose         *string   `json:"purpose,omitempty"`
	WarmupQuestions []string  `json:"warmup_questions"`
	Associations    []string  `json:"associations"`
	Ideas           []Idea    `json:"ideas"`
	IndexHandle     string    `json:"index_handle"`
}

// Patch lists the fields to merge into a session. Nil fields are left unchanged.
type Patch struct {
	Purpose         *string
	WarmupQuestions []string
	Associations    []string
	Ideas           []Idea
}

// HandleFor derives the ephemeral index handle of a session id.
func HandleFor(id string) string {
	return IndexPrefix + strings.ReplaceAll(id, "-", "")
}

func (s *Session) clone() *Session {
	c := *s
	if s.Purpose != nil {
		p := *s.Purpose
		c.Purpose = &p
	}
	c.WarmupQuestions = append([]string(nil), s.WarmupQuestions...)
	c.Associations = append([]string(nil), s.Associations...)
	if s.Ideas != nil {
		c.Ideas = make([]Idea, len(s.Ideas))
		for i, idea := range s.Ideas {
			c.Ideas[i] = idea.clone()
		}
	}
	return &c
}

func (i Idea) clone() Idea {
	c := i
	if i.Technique != nil {
		t := *i.Technique
		c.Technique = &t
	}
	if i.Analysis != nil {
		a := *i.Analysis
		c.Analysis = &a
	}
	return c
}

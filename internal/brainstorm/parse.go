package brainstorm

import (
	"strings"
	"unicode"

	"github.com/nidhogg/brainstorm/internal/session"
)

// ParseWarmup returns the numbered or bulleted lines of text with their
// markers stripped. Other lines are ignored.
func ParseWarmup(text string) []string {
	questions := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		first := []rune(line)[0]
		if !unicode.IsDigit(first) && first != '-' && first != '•' {
			continue
		}
		if q := strings.TrimSpace(strings.TrimLeft(line, "0123456789.-•) ")); q != "" {
			questions = append(questions, q)
		}
	}
	return questions
}

var (
	titleLabels       = []string{"idea title:", "title:", "아이디어 제목:", "제목:"}
	descriptionLabels = []string{"description:", "설명:"}
	techniqueLabels   = []string{"applied technique:", "technique:", "적용된 기법:", "기법:"}
)

// ParseIdeas splits text into "---" separated blocks and reads the title,
// description and technique fields of each. Lines following a description
// continue it. Missing fields stay unset.
func ParseIdeas(text string) []session.Idea {
	var (
		ideas   []session.Idea
		current session.Idea
		started bool
		hasDesc bool
	)
	flush := func() {
		if started {
			ideas = append(ideas, current)
		}
		current, started, hasDesc = session.Idea{}, false, false
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "---") {
			flush()
			continue
		}
		label := strings.TrimLeft(line, "*# ")
		if v, ok := cutLabel(label, titleLabels); ok {
			current.Title, started = v, true
		} else if v, ok := cutLabel(label, descriptionLabels); ok {
			current.Description, started, hasDesc = v, true, true
		} else if v, ok := cutLabel(label, techniqueLabels); ok {
			current.Technique, started = &v, true
		} else if hasDesc && line != "" {
			current.Description = strings.TrimSpace(current.Description + " " + line)
		}
	}
	flush()
	if ideas == nil {
		ideas = []session.Idea{}
	}
	return ideas
}

// cutLabel matches line against labels case-insensitively and returns the rest.
func cutLabel(line string, labels []string) (string, bool) {
	lower := strings.ToLower(line)
	for _, l := range labels {
		if strings.HasPrefix(lower, l) {
			return strings.Trim(line[len(l):], "* "), true
		}
	}
	return "", false
}

var swotHeaders = []struct {
	keywords []string
	field    func(*session.SWOT) *string
}{
	{[]string{"강점", "strengths", "strength"}, func(s *session.SWOT) *string { return &s.Strengths }},
	{[]string{"약점", "weaknesses", "weakness"}, func(s *session.SWOT) *string { return &s.Weaknesses }},
	{[]string{"기회", "opportunities", "opportunity"}, func(s *session.SWOT) *string { return &s.Opportunities }},
	{[]string{"위협", "threats", "threat"}, func(s *session.SWOT) *string { return &s.Threats }},
}

// ParseSWOT reads the four SWOT sections of text. A header line may carry the
// first content after a colon. Sections never filled hold session.NoData.
func ParseSWOT(text string) session.SWOT {
	var (
		swot    session.SWOT
		current *string
	)
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if field, rest, ok := swotHeader(&swot, line); ok {
			current = field
			if rest != "" {
				*current = rest
			}
			continue
		}
		if current == nil {
			continue
		}
		cleaned := strings.TrimSpace(strings.TrimLeft(line, "-•*"))
		if cleaned == "" {
			continue
		}
		if *current == "" {
			*current = cleaned
		} else {
			*current += " " + cleaned
		}
	}

	for _, h := range swotHeaders {
		if f := h.field(&swot); *f == "" {
			*f = session.NoData
		}
	}
	return swot
}

// swotHeader reports whether line opens a section and returns the section's
// field and any inline content after the colon.
func swotHeader(swot *session.SWOT, line string) (*string, string, bool) {
	lower := strings.ToLower(strings.TrimLeft(line, "#* "))
	for _, h := range swotHeaders {
		for _, kw := range h.keywords {
			if !strings.HasPrefix(lower, kw) {
				continue
			}
			rest := ""
			if _, after, found := strings.Cut(line, ":"); found {
				rest = strings.TrimSpace(strings.Trim(after, "* "))
			}
			return h.field(swot), rest, true
		}
	}
	return nil, "", false
}

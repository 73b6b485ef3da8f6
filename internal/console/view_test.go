package console

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/nidhogg/brainstorm/internal/brainstorm"
	"github.com/nidhogg/brainstorm/internal/collect"
	"github.com/nidhogg/brainstorm/internal/index"
	"github.com/nidhogg/brainstorm/internal/session"
	"github.com/stretchr/testify/assert"
)

func newPlainView() (*View, *bytes.Buffer) {
	color.NoColor = true
	var buf bytes.Buffer
	return NewView(&buf), &buf
}

func TestAskUsesAffirmative(t *testing.T) {
	v, buf := newPlainView()
	cfg := brainstorm.DefaultConfig()
	cfg.Affirmative = "go"

	v.Ask(brainstorm.StateConfirmationGate, cfg)
	v.Ask(brainstorm.StateDeletionConfirm, cfg)

	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte(`"go"`)))
}

func TestProgressAndResults(t *testing.T) {
	v, buf := newPlainView()
	technique := "SCAMPER"

	v.Progress(collect.Status{Phase: 2, Needed: 4, Max: 16, Remaining: 30 * time.Second})
	v.Progress(collect.Status{Phase: 1, Collected: 3, Max: 20})
	v.Keywords([]index.Keyword{{Text: "timer", Similarity: 0.91}})
	v.Ideas([]session.Idea{{Title: "Focus timer", Description: "Counts down", Technique: &technique}})
	swot := session.EmptySWOT()
	v.Analysis([]session.Idea{{Title: "Focus timer", Analysis: &swot}})
	v.Failed(brainstorm.StateIdeaGeneration, errors.New("boom"))
	v.Finished(brainstorm.StateRetained)

	out := buf.String()
	assert.Contains(t, out, "4 more please, 30s left")
	assert.Contains(t, out, "[3/20]")
	assert.Contains(t, out, "- timer (0.91)")
	assert.Contains(t, out, "technique: SCAMPER")
	assert.Contains(t, out, session.NoData)
	assert.Contains(t, out, "idea generation failed: boom")
	assert.Contains(t, out, "Session data kept.")
}

func TestWarmupEmpty(t *testing.T) {
	v, buf := newPlainView()
	v.Warmup(nil)
	assert.Contains(t, buf.String(), "no warm-up questions")
}

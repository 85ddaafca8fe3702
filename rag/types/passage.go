package types

import (
	"errors"
	"strings"
	"time"
)

// Passage is a chunk of source text with its provenance. Passages are produced once at
// ingestion time and never modified by the retrieval path.
type Passage struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Title      string    `json:"title"`
	SourceURL  string    `json:"source_url"`
	Topics     []string  `json:"topics"`
	ChunkIndex int       `json:"chunk_index"`
	CharStart  int       `json:"char_start"`
	CharEnd    int       `json:"char_end"`
	CreatedAt  time.Time `json:"created_at"`
}

// HasTopic reports whether the passage is labelled with topic.
func (p Passage) HasTopic(topic string) bool {
	for _, t := range p.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// Level is the explanation depth requested by the user.
type Level string

const (
	LevelSimplified Level = "tier1"
	LevelTechnical  Level = "tier2"
	LevelAdvanced   Level = "tier3"
)

var ErrInvalidLevel = errors.New("invalid explanation level")

var levelNames = map[Level]string{
	LevelSimplified: "Middle School",
	LevelTechnical:  "College",
	LevelAdvanced:   "Advanced",
}

// Levels lists every supported level from the simplest to the most in-depth.
func Levels() []Level {
	return []Level{LevelSimplified, LevelTechnical, LevelAdvanced}
}

// DisplayName is the audience name used in prompts, e.g. "College".
func (l Level) DisplayName() string {
	return levelNames[l]
}

// ParseLevel accepts either a tier identifier ("tier2") or a display name ("College"),
// case-insensitively.
func ParseLevel(s string) (Level, error) {
	s = strings.TrimSpace(s)
	for l, name := range levelNames {
		if strings.EqualFold(s, string(l)) || strings.EqualFold(s, name) {
			return l, nil
		}
	}
	return "", ErrInvalidLevel
}

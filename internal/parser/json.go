package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/brainquiz/internal/domain"
	"github.com/conorfennell/brainquiz/internal/knol"
)

// ErrUnsupportedFormat is returned by ParseFile for unknown extensions.
var ErrUnsupportedFormat = errors.New("unsupported file format")

type jsonCard struct {
	Question   *string `json:"question"`
	Answer     string  `json:"answer"`
	Topic      string  `json:"topic"`
	Image      string  `json:"image"`
	Level      int     `json:"level"`
	NextReview string  `json:"next_review"`
}

// ParseJSON decodes a JSON array of card objects, the questions.json format.
// Missing level and next_review default to 0 and unscheduled; an unparsable
// next_review also reads as unscheduled. The whole payload is rejected when
// it is not an array or any element lacks a question. IDs are assigned
// from the question text.
func ParseJSON(r io.Reader) ([]domain.Card, error) {
	var items []jsonCard
	dec := json.NewDecoder(r)
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode cards: %w", err)
	}

	cards := make([]domain.Card, 0, len(items))
	for i, it := range items {
		if it.Question == nil || strings.TrimSpace(*it.Question) == "" {
			return nil, fmt.Errorf("card %d has no question", i)
		}
		c := domain.Card{
			Question: *it.Question,
			Answer:   it.Answer,
			Topic:    it.Topic,
			Image:    it.Image,
			Level:    max(it.Level, 0),
		}
		if next, err := time.ParseInLocation("2006-01-02 15:04:05", it.NextReview, time.Local); err == nil {
			c.NextReview = &next
		}
		cards = append(cards, c)
	}
	return knol.Assign(cards), nil
}

// ParseFile parses a card file, choosing the format by extension:
// .json for a card array, .md or .markdown for Q:/A: blocks.
func ParseFile(path string) ([]domain.Card, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ParseJSON(f)
	case ".md", ".markdown":
		return ParseMarkdownFile(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Supported reports whether ParseFile can read path.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".md", ".markdown":
		return true
	}
	return false
}

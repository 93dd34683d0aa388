package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/conorfennell/brainquiz/internal/domain"
	"github.com/conorfennell/brainquiz/internal/knol"
)

// File names used by the JSON store.
const (
	CardsFile = "questions.json"
	StatsFile = "user_stats.json"
)

// ErrCardNotFound is returned when saving a card the store does not hold.
var ErrCardNotFound = errors.New("card not found")

// JSONStore keeps cards and stats in two JSON files inside a directory.
type JSONStore struct {
	mu  sync.Mutex
	dir string
}

type cardRecord struct {
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Topic      string `json:"topic,omitempty"`
	Image      string `json:"image,omitempty"`
	Level      int    `json:"level"`
	NextReview string `json:"next_review"`

	// extra holds keys this store does not use. They are written back
	// unchanged after the known fields.
	extra map[string]json.RawMessage
}

var cardKeys = []string{"question", "answer", "topic", "image", "level", "next_review"}

func (r *cardRecord) UnmarshalJSON(data []byte) error {
	type plain cardRecord
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	// encoding/json matches field names case-insensitively.
	for k := range all {
		if slices.ContainsFunc(cardKeys, func(known string) bool { return strings.EqualFold(k, known) }) {
			delete(all, k)
		}
	}
	*r = cardRecord(p)
	if len(all) > 0 {
		r.extra = all
	}
	return nil
}

func (r cardRecord) MarshalJSON() ([]byte, error) {
	type plain cardRecord
	known, err := marshal(plain(r))
	if err != nil || len(r.extra) == 0 {
		return known, err
	}
	extra, err := marshal(r.extra)
	if err != nil {
		return nil, err
	}
	// Splice {"question":...} and {"hint":...} into one object.
	out := append(known[:len(known)-1:len(known)-1], ',')
	return append(out, extra[1:]...), nil
}

func (r *cardRecord) card() domain.Card {
	return domain.Card{
		Question:   r.Question,
		Answer:     r.Answer,
		Topic:      r.Topic,
		Image:      r.Image,
		Level:      max(r.Level, 0),
		NextReview: parseTime(r.NextReview),
	}
}

// update copies the card's fields over r, keeping r's unknown keys.
func (r *cardRecord) update(c domain.Card) {
	r.Question = c.Question
	r.Answer = c.Answer
	r.Topic = c.Topic
	r.Image = c.Image
	r.Level = c.Level
	r.NextReview = formatTime(c.NextReview)
}

type statsRecord struct {
	Streak        int    `json:"streak"`
	LastStudyDate string `json:"last_study_date,omitempty"`
}

// OpenJSON returns a store rooted at dir, creating the directory if needed.
func OpenJSON(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return &JSONStore{dir: dir}, nil
}

// Close is a no-op; files are written as each mutation happens.
func (s *JSONStore) Close() error {
	return nil
}

// Cards returns all cards in file order.
func (s *JSONStore) Cards(_ context.Context) ([]domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readCards()
}

// AppendCards adds cards after the existing ones.
func (s *JSONStore) AppendCards(_ context.Context, cards []domain.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readRecords()
	if err != nil {
		return err
	}
	for _, c := range cards {
		var r cardRecord
		r.update(c)
		records = append(records, r)
	}
	return s.write(CardsFile, records)
}

// SaveCard replaces the stored card with the same ID. Keys the store does not
// know about are kept.
func (s *JSONStore) SaveCard(_ context.Context, card domain.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readRecords()
	if err != nil {
		return err
	}
	for i, c := range toCards(records) {
		if c.ID == card.ID {
			records[i].update(card)
			return s.write(CardsFile, records)
		}
	}
	return fmt.Errorf("failed to save card %s: %w", card.ID, ErrCardNotFound)
}

// Stats returns the study stats, or a zero streak when none are stored.
func (s *JSONStore) Stats(_ context.Context) (domain.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read(StatsFile)
	if err != nil || data == nil {
		return domain.Stats{}, err
	}

	var rec statsRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Stats{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, StatsFile, err)
	}
	last, err := parseDate(rec.LastStudyDate)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("%w: %s: last_study_date %q", ErrCorrupt, StatsFile, rec.LastStudyDate)
	}
	return domain.Stats{Streak: max(rec.Streak, 0), LastStudyDate: last}, nil
}

// SaveStats writes the study stats.
func (s *JSONStore) SaveStats(_ context.Context, stats domain.Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(StatsFile, statsRecord{
		Streak:        stats.Streak,
		LastStudyDate: formatDate(stats.LastStudyDate),
	})
}

func (s *JSONStore) readCards() ([]domain.Card, error) {
	records, err := s.readRecords()
	if err != nil {
		return nil, err
	}
	return toCards(records), nil
}

func (s *JSONStore) readRecords() ([]cardRecord, error) {
	data, err := s.read(CardsFile)
	if err != nil || data == nil {
		return nil, err
	}

	var records []cardRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, CardsFile, err)
	}
	return records, nil
}

// toCards converts records in file order. IDs come from knol.Assign, so a
// repeated question still maps to exactly one record.
func toCards(records []cardRecord) []domain.Card {
	cards := make([]domain.Card, 0, len(records))
	for i := range records {
		cards = append(cards, records[i].card())
	}
	return knol.Assign(cards)
}

// read returns nil data when the file does not exist or is blank.
func (s *JSONStore) read(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return data, nil
}

// marshal encodes v compactly without escaping HTML characters.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// write replaces name atomically.
func (s *JSONStore) write(name string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

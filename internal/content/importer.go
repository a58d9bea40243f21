// Package content is the boundary to the external content generator: it
// loads subject decks from YAML, JSON or XLSX files and imports them into
// the stores. Imported cards start in box 1 with a fresh review timestamp.
package content

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/studylab/leitner/internal/deck"
	"github.com/studylab/leitner/internal/leitner"
)

const optionCount = 4

// genericFillers top up a stored question that arrived with fewer than four
// options.
var genericFillers = []string{
	"None of the above",
	"Cannot be determined",
	"Not applicable",
	"Context dependent",
}

// Deck is the interchange form produced by the content generator.
type Deck struct {
	Subject   string         `yaml:"subject" json:"subject"`
	Cards     []DeckCard     `yaml:"cards" json:"cards"`
	Questions []DeckQuestion `yaml:"questions,omitempty" json:"questions,omitempty"`
}

// DeckCard is one question/answer pair for spaced repetition.
type DeckCard struct {
	Question string `yaml:"question" json:"question"`
	Answer   string `yaml:"answer" json:"answer"`
}

// DeckQuestion is one multiple-choice item for the subject's quiz bank.
type DeckQuestion struct {
	Question string   `yaml:"question" json:"question"`
	Options  []string `yaml:"options" json:"options"`
	Answer   string   `yaml:"answer" json:"answer"`
}

// Importer writes decks into the card and bank stores.
type Importer struct {
	cards deck.CardStore
	banks deck.BankStore
	clock leitner.Clock
}

// NewImporter creates an importer. A nil clock defaults to the system clock.
func NewImporter(cards deck.CardStore, banks deck.BankStore, clock leitner.Clock) *Importer {
	if clock == nil {
		clock = leitner.SystemClock{}
	}
	return &Importer{cards: cards, banks: banks, clock: clock}
}

// Import replaces the subject's cards and quiz bank with the deck's
// contents. Text is NFC-normalized so the quiz's exact-equality answer
// check is not defeated by Unicode normalization differences.
func (im *Importer) Import(ctx context.Context, d Deck) error {
	if err := d.validate(); err != nil {
		return err
	}

	now := im.clock.Now()
	cards := make([]deck.Card, 0, len(d.Cards))
	for _, c := range d.Cards {
		cards = append(cards, deck.Card{
			ID:           uuid.NewString(),
			Subject:      d.Subject,
			Question:     norm.NFC.String(c.Question),
			Answer:       norm.NFC.String(c.Answer),
			Box:          1,
			LastReviewed: now,
		})
	}
	if err := im.cards.ReplaceAll(ctx, d.Subject, cards); err != nil {
		return fmt.Errorf("import cards: %w", err)
	}

	items := make([]deck.QuizItem, 0, len(d.Questions))
	for _, q := range d.Questions {
		items = append(items, normalizeQuestion(q))
	}
	if err := im.banks.ReplaceBank(ctx, d.Subject, items); err != nil {
		return fmt.Errorf("import quiz bank: %w", err)
	}

	slog.Info("deck imported",
		"subject", d.Subject,
		"cards", len(cards),
		"questions", len(items),
	)
	return nil
}

func (d Deck) validate() error {
	if d.Subject == "" {
		return fmt.Errorf("deck has no subject")
	}
	if len(d.Cards) == 0 && len(d.Questions) == 0 {
		return fmt.Errorf("deck %q has no cards or questions", d.Subject)
	}
	for i, c := range d.Cards {
		if c.Question == "" || c.Answer == "" {
			return fmt.Errorf("deck %q: card %d is missing question or answer", d.Subject, i)
		}
	}
	for i, q := range d.Questions {
		if q.Question == "" || q.Answer == "" {
			return fmt.Errorf("deck %q: question %d is missing text or answer", d.Subject, i)
		}
	}
	return nil
}

// normalizeQuestion NFC-normalizes a stored question and guarantees exactly
// four options with the answer among them.
func normalizeQuestion(q DeckQuestion) deck.QuizItem {
	item := deck.QuizItem{
		Question: norm.NFC.String(q.Question),
		Answer:   norm.NFC.String(q.Answer),
	}

	seen := map[string]bool{}
	for _, opt := range q.Options {
		opt = norm.NFC.String(opt)
		if opt == "" || seen[opt] {
			continue
		}
		seen[opt] = true
		item.Options = append(item.Options, opt)
	}
	if !seen[item.Answer] {
		seen[item.Answer] = true
		item.Options = append(item.Options, item.Answer)
	}
	if len(item.Options) > optionCount {
		item.Options = item.Options[:optionCount]
		item.Options = ensureAnswer(item.Options, item.Answer)
	}
	for _, f := range genericFillers {
		if len(item.Options) >= optionCount {
			break
		}
		if !seen[f] {
			seen[f] = true
			item.Options = append(item.Options, f)
		}
	}
	return item
}

// ensureAnswer keeps the true answer present after the option list was
// truncated to four.
func ensureAnswer(options []string, answer string) []string {
	for _, opt := range options {
		if opt == answer {
			return options
		}
	}
	options[len(options)-1] = answer
	return options
}

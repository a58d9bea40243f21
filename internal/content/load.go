package content

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// deckSchema validates JSON decks before anything touches the stores.
const deckSchema = `{
	"type": "object",
	"required": ["subject"],
	"properties": {
		"subject": {"type": "string", "minLength": 1},
		"cards": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["question", "answer"],
				"properties": {
					"question": {"type": "string", "minLength": 1},
					"answer": {"type": "string", "minLength": 1}
				}
			}
		},
		"questions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["question", "answer"],
				"properties": {
					"question": {"type": "string", "minLength": 1},
					"options": {"type": "array", "items": {"type": "string"}},
					"answer": {"type": "string", "minLength": 1}
				}
			}
		}
	}
}`

// LoadFile parses a deck file by extension: .yaml/.yml, .json or .xlsx.
func LoadFile(path string) (Deck, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return Deck{}, fmt.Errorf("read deck file: %w", err)
		}
		return ParseYAML(data)
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return Deck{}, fmt.Errorf("read deck file: %w", err)
		}
		return ParseJSON(data)
	case ".xlsx":
		return LoadXLSX(path)
	default:
		return Deck{}, fmt.Errorf("unsupported deck format: %s", path)
	}
}

// ParseYAML decodes a YAML deck.
func ParseYAML(data []byte) (Deck, error) {
	var d Deck
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Deck{}, fmt.Errorf("parse yaml deck: %w", err)
	}
	return d, nil
}

// ParseJSON validates a JSON deck against the deck schema and decodes it.
func ParseJSON(data []byte) (Deck, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(deckSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return Deck{}, fmt.Errorf("validate json deck: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return Deck{}, fmt.Errorf("invalid json deck: %s", strings.Join(msgs, "; "))
	}

	var d Deck
	if err := json.Unmarshal(data, &d); err != nil {
		return Deck{}, fmt.Errorf("parse json deck: %w", err)
	}
	return d, nil
}

// LoadXLSX reads a deck workbook. The "Cards" sheet holds question/answer
// rows; an optional "Questions" sheet holds question, four options and the
// answer. The subject is the file name without extension. Header rows are
// skipped.
func LoadXLSX(path string) (Deck, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return Deck{}, fmt.Errorf("open deck workbook: %w", err)
	}
	defer f.Close()

	d := Deck{
		Subject: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}

	rows, err := f.GetRows("Cards")
	if err != nil {
		return Deck{}, fmt.Errorf("read Cards sheet: %w", err)
	}
	for i, row := range rows {
		if i == 0 || len(row) < 2 {
			continue
		}
		question := strings.TrimSpace(row[0])
		answer := strings.TrimSpace(row[1])
		if question == "" || answer == "" {
			continue
		}
		d.Cards = append(d.Cards, DeckCard{Question: question, Answer: answer})
	}

	qRows, err := f.GetRows("Questions")
	if err != nil {
		// The Questions sheet is optional.
		return d, nil
	}
	for i, row := range qRows {
		if i == 0 || len(row) < 6 {
			continue
		}
		q := DeckQuestion{
			Question: strings.TrimSpace(row[0]),
			Answer:   strings.TrimSpace(row[5]),
		}
		for _, opt := range row[1:5] {
			if opt = strings.TrimSpace(opt); opt != "" {
				q.Options = append(q.Options, opt)
			}
		}
		if q.Question == "" || q.Answer == "" {
			continue
		}
		d.Questions = append(d.Questions, q)
	}
	return d, nil
}

// LoadDir parses every deck file directly inside dir.
func LoadDir(dir string) ([]Deck, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read deck directory: %w", err)
	}

	var decks []Deck
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json", ".xlsx":
		default:
			continue
		}
		d, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("load deck %s: %w", entry.Name(), err)
		}
		decks = append(decks, d)
	}
	return decks, nil
}

// Package experiment holds the static description of the memorization experiment:
// the study word list, phase deadlines, audio resource and participant-facing texts.
package experiment

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Protocol describes one experiment configuration
type Protocol struct {
	// Study word list in display order
	Words []string `yaml:"words"`
	// Optional CSV/XLSX file to read the word list from, relative to the YAML file
	WordsFile string `yaml:"words_file"`
	// Sheet name for XLSX word files, first sheet when empty
	WordsSheet string `yaml:"words_sheet"`
	// Length of the memorization countdown
	MemorizationDeadline time.Duration `yaml:"memorization_deadline"`
	// Length of the recall countdown
	RecallDeadline time.Duration `yaml:"recall_deadline"`
	// Offer a "ready" button during memorization
	AllowEarlyFinish bool `yaml:"allow_early_finish"`
	// Audio resource played in the with_music arm
	MusicFile string `yaml:"music_file"`
	// Participant ID pattern
	IDPattern string `yaml:"id_pattern"`
	Texts     Texts  `yaml:"texts"`

	words *WordList
	idRe  *regexp.Regexp
}

// Texts are the messages shown to participants
type Texts struct {
	Welcome                  string `yaml:"welcome"`
	IDPrompt                 string `yaml:"id_prompt"`
	InstructionsWithMusic    string `yaml:"instructions_with_music"`
	InstructionsWithoutMusic string `yaml:"instructions_without_music"`
	Memorization             string `yaml:"memorization"`
	Recall                   string `yaml:"recall"`
	ThankYou                 string `yaml:"thank_you"`
	InvalidID                string `yaml:"invalid_id"`
	AlreadyParticipated      string `yaml:"already_participated"`
	UnknownWord              string `yaml:"unknown_word"`
	Unavailable              string `yaml:"unavailable"`
}

// DefaultWords is the study list used when no other list is configured
var DefaultWords = []string{
	"Table", "Giraffe", "Pencil", "Mountain", "Butterfly", "Computer", "Ocean", "Bottle", "Lamp", "Keyboard",
	"River", "Camera", "Bread", "Elephant", "Chair", "Airplane", "Banana", "Clock", "Window", "Garden",
}

// Default returns the compiled-in protocol
func Default() *Protocol {
	p := &Protocol{
		Words:                append([]string(nil), DefaultWords...),
		MemorizationDeadline: 180 * time.Second,
		RecallDeadline:       120 * time.Second,
		AllowEarlyFinish:     true,
		MusicFile:            "assets/music_for_stats.mp3",
		IDPattern:            `^i\d{7}$`,
		Texts: Texts{
			Welcome:                  "Welcome to the memory test experiment.",
			IDPrompt:                 "Please enter your Student ID (starting with 'i' followed by 7 digits):",
			InstructionsWithMusic:    "You will see a list of words. Memorize as many as you can while listening to music.",
			InstructionsWithoutMusic: "You will see a list of words. Memorize as many as you can.",
			Memorization:             "Memorize the following words:",
			Recall:                   "Type the words you remember, one per message.",
			ThankYou:                 "Thank you for your participation.",
			InvalidID:                "Invalid Student ID. Please restart and try again.",
			AlreadyParticipated:      "You have already participated in this experiment. Thank you!",
			UnknownWord:              "This word was not in the list. Try another one.",
			Unavailable:              "The experiment is unavailable right now. Please try again later.",
		},
	}
	if err := p.Compile(); err != nil {
		panic(err)
	}
	return p
}

// Load reads a YAML protocol file on top of the defaults
func Load(path string) (*Protocol, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read protocol file: %w", err)
	}

	p := Default()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse protocol file: %w", err)
	}

	if p.WordsFile != "" {
		wordsPath := p.WordsFile
		if !filepath.IsAbs(wordsPath) {
			wordsPath = filepath.Join(filepath.Dir(path), wordsPath)
		}
		words, err := LoadWordsFile(wordsPath, p.WordsSheet)
		if err != nil {
			return nil, err
		}
		p.Words = words
	}

	if err := p.Compile(); err != nil {
		return nil, err
	}
	return p, nil
}

// Compile checks the protocol and prepares the word list and ID matcher.
// Call it again after changing fields of a loaded protocol.
func (p *Protocol) Compile() error {
	if p.MemorizationDeadline <= 0 {
		return fmt.Errorf("memorization_deadline must be positive")
	}
	if p.RecallDeadline <= 0 {
		return fmt.Errorf("recall_deadline must be positive")
	}
	words, err := NewWordList(p.Words)
	if err != nil {
		return err
	}
	re, err := regexp.Compile(p.IDPattern)
	if err != nil {
		return fmt.Errorf("invalid id_pattern: %w", err)
	}
	p.words = words
	p.idRe = re
	return nil
}

// WordList returns the canonical study list
func (p *Protocol) WordList() *WordList {
	return p.words
}

// ValidID reports whether a participant identifier matches the configured pattern
func (p *Protocol) ValidID(id string) bool {
	return p.idRe.MatchString(id)
}

// Instructions returns the instructions text for an arm
func (p *Protocol) Instructions(withMusic bool) string {
	if withMusic {
		return p.Texts.InstructionsWithMusic
	}
	return p.Texts.InstructionsWithoutMusic
}

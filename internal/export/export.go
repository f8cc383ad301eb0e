// Package export renders experiment results as delimited text or Excel workbooks.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/example/memtest/pkg/models"
)

// Format is an export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unknown export format %q: must be csv or xlsx", s)
}

// Response is one event recorded during a session
type Response struct {
	Phase   string
	Event   string
	Value   string
	At      time.Time
	Elapsed time.Duration // Time since the phase started
}

// Document is a generated file handed to a participant or admin
type Document struct {
	Name     string
	MIMEType string
	Data     []byte
}

var participantHeader = []string{
	"id", "session_identity", "condition", "memorized_words", "guessed_words",
	"forced_submission_memorization", "forced_submission_recall", "submission_time", "created_at",
}

// SessionCSV assembles the responses of one session into a CSV document
func SessionCSV(participantID string, rows []Response) (Document, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"participant_id", "phase", "event", "value", "elapsed_ms", "time"}); err != nil {
		return Document{}, fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			participantID,
			r.Phase,
			r.Event,
			r.Value,
			strconv.FormatInt(r.Elapsed.Milliseconds(), 10),
			r.At.UTC().Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return Document{}, fmt.Errorf("failed to write response: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return Document{}, fmt.Errorf("failed to flush CSV: %w", err)
	}

	name := "experiment_data.csv"
	if participantID != "" {
		name = "experiment_data_" + participantID + ".csv"
	}
	return Document{Name: name, MIMEType: "text/csv", Data: buf.Bytes()}, nil
}

// ParticipantsCSV writes one row per participant record
func ParticipantsCSV(out io.Writer, records []models.ParticipantRecord) error {
	w := csv.NewWriter(out)
	if err := w.Write(participantHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, rec := range records {
		if err := w.Write(participantRow(rec)); err != nil {
			return fmt.Errorf("failed to write participant %s: %w", rec.ID, err)
		}
	}
	w.Flush()
	return w.Error()
}

// Sheet names used by ParticipantsXLSX. Participants go to the workbook's default sheet.
const (
	ParticipantsSheet = "Sheet1"
	WordsSheet        = "Words"
)

// ParticipantsXLSX writes a workbook with one row per participant and a second
// sheet listing every memorized word
func ParticipantsXLSX(out io.Writer, records []models.ParticipantRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	participants, words := ParticipantsSheet, WordsSheet
	if _, err := f.NewSheet(words); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	if err := setRow(f, participants, 1, toCells(participantHeader)); err != nil {
		return err
	}
	if err := setRow(f, words, 1, []interface{}{"participant_id", "word"}); err != nil {
		return err
	}

	wordRow := 2
	for i, rec := range records {
		row := participantRow(rec)
		cells := toCells(row)
		// Keep numeric and boolean columns typed in the workbook
		cells[4] = rec.GuessedWords
		cells[5] = rec.ForcedSubmissionMemorization
		cells[6] = rec.ForcedSubmissionRecall
		if err := setRow(f, participants, i+2, cells); err != nil {
			return err
		}
		for _, w := range rec.MemorizedWords {
			if err := setRow(f, words, wordRow, []interface{}{rec.ID, w}); err != nil {
				return err
			}
			wordRow++
		}
	}

	if err := f.Write(out); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// WriteFile exports records to path in the given format
func WriteFile(path string, format Format, records []models.ParticipantRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}

	switch format {
	case FormatXLSX:
		err = ParticipantsXLSX(file, records)
	default:
		err = ParticipantsCSV(file, records)
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Participants renders records into an in-memory document
func Participants(format Format, records []models.ParticipantRecord) (Document, error) {
	var buf bytes.Buffer
	doc := Document{Name: "participants." + string(format)}

	switch format {
	case FormatXLSX:
		doc.MIMEType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		if err := ParticipantsXLSX(&buf, records); err != nil {
			return Document{}, err
		}
	default:
		doc.MIMEType = "text/csv"
		if err := ParticipantsCSV(&buf, records); err != nil {
			return Document{}, err
		}
	}
	doc.Data = buf.Bytes()
	return doc, nil
}

func participantRow(rec models.ParticipantRecord) []string {
	submission := ""
	if rec.Finalized() {
		submission = rec.SubmissionTime.UTC().Format(time.RFC3339)
	}
	created := ""
	if !rec.CreatedAt.IsZero() {
		created = rec.CreatedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		rec.ID,
		rec.SessionIdentity,
		string(rec.Condition),
		strings.Join(rec.MemorizedWords, ";"),
		strconv.Itoa(rec.GuessedWords),
		strconv.FormatBool(rec.ForcedSubmissionMemorization),
		strconv.FormatBool(rec.ForcedSubmissionRecall),
		submission,
		created,
	}
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

func setRow(f *excelize.File, sheet string, row int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to address row %d: %w", row, err)
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row %d of %s: %w", row, sheet, err)
	}
	return nil
}

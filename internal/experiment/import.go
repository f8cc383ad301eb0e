package experiment

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// LoadWordsFile reads a word list from the first column of a CSV or Excel file.
// A leading header cell "word" is skipped, as are blank rows.
func LoadWordsFile(path, sheet string) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".csv" {
		return loadWordsCSV(path)
	}
	return loadWordsExcel(path, sheet)
}

func loadWordsCSV(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %w", err)
		}
		rows = append(rows, row)
	}
	return firstColumn(rows), nil
}

func loadWordsExcel(path, sheet string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return firstColumn(rows), nil
}

func firstColumn(rows [][]string) []string {
	words := make([]string, 0, len(rows))
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell := strings.TrimSpace(row[0])
		if cell == "" {
			continue
		}
		if i == 0 && strings.EqualFold(cell, "word") {
			continue
		}
		words = append(words, cell)
	}
	return words
}

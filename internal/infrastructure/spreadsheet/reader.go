// Package spreadsheet reads foreign label sets for cross-map imports.
package spreadsheet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/dermafusion/internal/core/domain"
)

var (
	idHeaders    = []string{"disease_id", "id", "domain_disease_id", "code"}
	labelHeaders = []string{"label", "disease", "name", "disease_name"}
)

// ReadFile dispatches on extension: .xlsx sheets or JSON documents.
func ReadFile(path, sheet string) ([]domain.ForeignLabel, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadWorkbook(path, sheet)
	case ".json":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read label file: %w", err)
		}
		return ParseJSON(raw)
	default:
		return nil, fmt.Errorf("unsupported label file %q: expected .xlsx or .json", path)
	}
}

// ReadWorkbook reads (disease id, label) rows from sheet, or from the first
// sheet when sheet is empty. A header row naming the columns is optional;
// without it the first two columns are used.
func ReadWorkbook(path, sheet string) ([]domain.ForeignLabel, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return parseRows(rows), nil
}

func parseRows(rows [][]string) []domain.ForeignLabel {
	out := make([]domain.ForeignLabel, 0, len(rows))
	if len(rows) == 0 {
		return out
	}

	idCol, labelCol := 0, 1
	start := 0
	if i, l, ok := headerColumns(rows[0]); ok {
		idCol, labelCol = i, l
		start = 1
	}

	for _, row := range rows[start:] {
		id := cell(row, idCol)
		label := cell(row, labelCol)
		if id == "" && label == "" {
			continue
		}
		out = append(out, domain.ForeignLabel{DiseaseID: id, Label: label})
	}
	return out
}

func headerColumns(row []string) (int, int, bool) {
	idCol, labelCol := -1, -1
	for i, value := range row {
		name := strings.ToLower(strings.TrimSpace(value))
		if idCol < 0 && contains(idHeaders, name) {
			idCol = i
			continue
		}
		if labelCol < 0 && contains(labelHeaders, name) {
			labelCol = i
		}
	}
	if idCol < 0 || labelCol < 0 {
		return 0, 0, false
	}
	return idCol, labelCol, true
}

// ParseJSON accepts either an array of {"disease_id", "label"} objects or an
// object mapping foreign disease id to label. Object keys are sorted.
func ParseJSON(raw []byte) ([]domain.ForeignLabel, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var rows []domain.ForeignLabel
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("decode label array: %w", err)
		}
		for i := range rows {
			rows[i].DiseaseID = strings.TrimSpace(rows[i].DiseaseID)
			rows[i].Label = strings.TrimSpace(rows[i].Label)
		}
		return rows, nil
	}

	var byID map[string]string
	if err := json.Unmarshal(raw, &byID); err != nil {
		return nil, fmt.Errorf("decode label map: %w", err)
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]domain.ForeignLabel, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.ForeignLabel{
			DiseaseID: strings.TrimSpace(id),
			Label:     strings.TrimSpace(byID[id]),
		})
	}
	return out, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func contains(items []string, v string) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}

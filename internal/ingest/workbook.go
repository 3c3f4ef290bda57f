// Package ingest reads transcript spreadsheets and rules files.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/samsaffron/grade-llm/internal/grade"
)

// ErrNoSheet is returned for workbooks without any worksheet.
var ErrNoSheet = errors.New("workbook has no sheets")

// ReadWorkbook reads the first sheet of an .xlsx file into rows keyed by
// header name.
func ReadWorkbook(path string) ([]grade.Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return readFirstSheet(f)
}

// ReadWorkbookFrom is ReadWorkbook for an already open stream.
func ReadWorkbookFrom(r io.Reader) ([]grade.Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return readFirstSheet(f)
}

// readFirstSheet treats the first row as headers. Missing cells read as
// empty strings and fully blank rows are skipped.
func readFirstSheet(f *excelize.File) ([]grade.Row, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheet
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	var out []grade.Row
	for _, cells := range rows[1:] {
		row := make(grade.Row, len(headers))
		blank := true
		for i, h := range headers {
			if h == "" {
				continue
			}
			var v string
			if i < len(cells) {
				v = cells[i]
			}
			if strings.TrimSpace(v) != "" {
				blank = false
			}
			row[h] = v
		}
		if !blank {
			out = append(out, row)
		}
	}
	return out, nil
}

// LoadCourses reads a workbook and aggregates it into courses.
func LoadCourses(path string) ([]grade.Course, error) {
	rows, err := ReadWorkbook(path)
	if err != nil {
		return nil, err
	}
	return grade.AggregateCourses(rows), nil
}

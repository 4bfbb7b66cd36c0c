// Package export renders patient rows as an xlsx workbook.
package export

import (
	"fmt"
	"io"

	"github.com/360EntSecGroup-Skylar/excelize"
)

const (
	SheetName   = "Patients"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Row is one spreadsheet line, in column order.
type Row struct {
	ID      string
	Name    string
	City    string
	Age     int
	Gender  string
	Height  float64
	Weight  float64
	BMI     float64
	Verdict string
}

var headers = []string{"ID", "Name", "City", "Age", "Gender", "Height (m)", "Weight (kg)", "BMI", "Verdict"}

var columns = []string{"A", "B", "C", "D", "E", "F", "G", "H", "I"}

// WritePatients writes a workbook with a header row followed by one row per
// patient, in the order given.
func WritePatients(w io.Writer, rows []Row) error {
	file := excelize.NewFile()
	file.NewSheet(SheetName)
	file.DeleteSheet("Sheet1")

	for i, h := range headers {
		file.SetCellValue(SheetName, columns[i]+"1", h)
	}
	for i, r := range rows {
		appendRow(file, i+2, r)
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func appendRow(file *excelize.File, line int, r Row) {
	values := []interface{}{r.ID, r.Name, r.City, r.Age, r.Gender, r.Height, r.Weight, r.BMI, r.Verdict}
	for i, v := range values {
		file.SetCellValue(SheetName, fmt.Sprintf("%s%d", columns[i], line), v)
	}
}

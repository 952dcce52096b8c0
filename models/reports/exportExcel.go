package reports

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExcelExporter is implemented by report rows that can render themselves
// into a sheet row.
type ExcelExporter interface {
	GetCellValues() []interface{}
}

// BuildExcel renders headings plus one row per exporter into a new
// workbook. The caller streams or saves the returned file.
func BuildExcel(rows []ExcelExporter, headings ...string) (*excelize.File, error) {
	f := excelize.NewFile()
	sheetName := "Sheet1"
	if _, err := f.NewSheet(sheetName); err != nil {
		return nil, err
	}

	for i, h := range headings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, err
		}
	}

	for rowIdx, row := range rows {
		values := row.GetCellValues()
		if len(headings) > 0 && len(values) != len(headings) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", rowIdx, len(values), len(headings))
		}
		for colIdx, v := range values {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

// AttendanceSummaryHeadings is the column order BuildExcel expects for
// AttendanceSummaryRow values.
var AttendanceSummaryHeadings = []string{
	"Employee Id", "Employee Name", "Days Recorded", "On Time", "Late",
	"Absent", "On Leave", "Total Delay (min)", "Total Worked Hours",
}

package reports

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// WriteStockLedgerExcel streams the ledger as an xlsx workbook.
func WriteStockLedgerExcel(w io.Writer, report *StockLedgerReport) error {
	f := excelize.NewFile()
	sheet := "Sheet1"
	_, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}

	// Add headers
	f.SetCellValue(sheet, "A1", "Date")
	f.SetCellValue(sheet, "B1", "Type")
	f.SetCellValue(sheet, "C1", "Reference")
	f.SetCellValue(sheet, "D1", "Change")
	f.SetCellValue(sheet, "E1", "Balance")

	f.SetCellValue(sheet, "A2", "Starting Balance")
	f.SetCellValue(sheet, "E2", report.StartingBalance)

	// Add data
	for i, line := range report.Lines {
		row := fmt.Sprint(i + 3)
		f.SetCellValue(sheet, "A"+row, line.Date.Format("2006-01-02 15:04:05"))
		f.SetCellValue(sheet, "B"+row, string(line.ReferenceType))
		f.SetCellValue(sheet, "C"+row, line.Reference)
		f.SetCellValue(sheet, "D"+row, line.Change)
		f.SetCellValue(sheet, "E"+row, line.Balance)
	}

	lastRow := fmt.Sprint(len(report.Lines) + 3)
	f.SetCellValue(sheet, "A"+lastRow, "Ending Balance")
	f.SetCellValue(sheet, "E"+lastRow, report.EndingBalance)

	return f.Write(w)
}

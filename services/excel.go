package services

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"flighttrack/monitor"
	"flighttrack/storage"
)

// Sheet names of the generated workbook.
const (
	SheetRecords = "Flight Records"
	SheetRoutes  = "Route Statistics"
	SheetDaily   = "Daily Summary"
)

// ═══════════════════════════════════════════════════════════════════════════
// GenerateReport: multi-sheet Excel with route statistics
// ═══════════════════════════════════════════════════════════════════════════

func GenerateReport(records []storage.FlightRecord, stats []storage.RouteStatistic) (*excelize.File, error) {
	f := excelize.NewFile()

	styles, err := createStyles(f)
	if err != nil {
		return nil, fmt.Errorf("excel: styles: %w", err)
	}

	if err := writeRecordsSheet(f, styles, records); err != nil {
		return nil, fmt.Errorf("excel: records: %w", err)
	}
	if err := writeRoutesSheet(f, styles, stats); err != nil {
		return nil, fmt.Errorf("excel: routes: %w", err)
	}
	if err := writeDailySheet(f, styles, records); err != nil {
		return nil, fmt.Errorf("excel: daily: %w", err)
	}

	// Remove default Sheet1.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("excel: delete default sheet: %w", err)
	}
	f.SetActiveSheet(0)

	return f, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Styles
// ═══════════════════════════════════════════════════════════════════════════

type reportStyles struct {
	header    int
	number    int
	bold      int
	dateCell  int
	synthetic int
	green     int
	yellow    int
	red       int
}

func createStyles(f *excelize.File) (*reportStyles, error) {
	s := &reportStyles{}
	var err error

	s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#2B5797"}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
		Border:    []excelize.Border{{Type: "bottom", Color: "#000000", Style: 2}},
	})
	if err != nil {
		return nil, err
	}

	s.number, err = f.NewStyle(&excelize.Style{
		NumFmt:    2,
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, err
	}

	s.bold, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
	})
	if err != nil {
		return nil, err
	}

	s.dateCell, err = f.NewStyle(&excelize.Style{
		NumFmt:    22, // date+time
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, err
	}

	s.synthetic, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "#808080", Italic: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#F2F2F2"}},
	})
	if err != nil {
		return nil, err
	}

	s.green, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Color: "#006100"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#C6EFCE"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, err
	}

	s.yellow, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Color: "#9C6500"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#FFEB9C"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, err
	}

	s.red, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Color: "#9C0006", Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#FFC7CE"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

func writeHeader(f *excelize.File, s *reportStyles, sheet string, headers []string, widths []float64) {
	for i, h := range headers {
		_ = f.SetCellValue(sheet, cell(i+1, 1), h)
		_ = f.SetCellStyle(sheet, cell(i+1, 1), cell(i+1, 1), s.header)
	}
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheet, col, col, w)
	}
	_ = f.SetPanes(sheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// Sheet 1: Flight Records
// ═══════════════════════════════════════════════════════════════════════════

func writeRecordsSheet(f *excelize.File, s *reportStyles, records []storage.FlightRecord) error {
	sheet := SheetRecords
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	writeHeader(f, s, sheet, []string{
		"Date", "Flight", "From", "To",
		"Sched. Departure (UTC)", "Sched. Arrival (UTC)",
		"Sched. (min)", "Actual (min)",
		"Dep. Delay", "Arr. Delay", "Adjusted (min)",
		"Status", "Collected (UTC)",
	}, []float64{12, 10, 6, 6, 20, 20, 12, 12, 10, 10, 14, 12, 20})

	for i, r := range records {
		row := i + 2

		adjusted := monitor.AdjustedDuration(r.ScheduledDuration, r.DepartureDelay, r.ArrivalDelay)

		vals := []interface{}{
			r.FlightDate.UTC().Format("2006-01-02"), // A: Date
			r.FlightNumber,                          // B: Flight
			r.DepartureAirport,                      // C: From
			r.ArrivalAirport,                        // D: To
			r.ScheduledDeparture.UTC(),              // E: Sched. departure
			r.ScheduledArrival.UTC(),                // F: Sched. arrival
			r.ScheduledDuration,                     // G: Sched. minutes
			optInt(r.ActualDuration),                // H: Actual minutes
			optInt(r.DepartureDelay),                // I: Dep. delay
			optInt(r.ArrivalDelay),                  // J: Arr. delay
			adjusted,                                // K: Adjusted
			r.Status,                                // L: Status
			r.CollectedAt.UTC(),                     // M: Collected
		}

		for col, v := range vals {
			c := cell(col+1, row)
			_ = f.SetCellValue(sheet, c, v)
			switch col {
			case 4, 5, 12:
				_ = f.SetCellStyle(sheet, c, c, s.dateCell)
			}
		}

		// Grey out fabricated rows.
		if r.Status == monitor.StatusSynthetic {
			_ = f.SetCellStyle(sheet, cell(1, row), cell(4, row), s.synthetic)
			_ = f.SetCellStyle(sheet, cell(12, row), cell(12, row), s.synthetic)
		}

		// Late arrivals.
		if r.ArrivalDelay != nil && *r.ArrivalDelay >= 15 {
			_ = f.SetCellStyle(sheet, cell(10, row), cell(10, row), s.red)
		}
	}

	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Sheet 2: Route Statistics
// ═══════════════════════════════════════════════════════════════════════════

func writeRoutesSheet(f *excelize.File, s *reportStyles, stats []storage.RouteStatistic) error {
	sheet := SheetRoutes
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	writeHeader(f, s, sheet, []string{
		"Route", "Samples", "Avg Actual+Delays (min)", "Formatted",
	}, []float64{12, 10, 24, 14})

	row := 2
	for _, st := range stats {
		_ = f.SetCellValue(sheet, cell(1, row), st.Departure+"-"+st.Arrival)
		_ = f.SetCellValue(sheet, cell(2, row), st.Samples)
		_ = f.SetCellValue(sheet, cell(3, row), st.AverageMinutes)
		_ = f.SetCellStyle(sheet, cell(3, row), cell(3, row), s.number)
		_ = f.SetCellValue(sheet, cell(4, row), monitor.FormatAverage(st.AverageMinutes))
		row++
	}

	// ── Legend ───────────────────────────────────────────────────────────

	legendRow := row + 2
	_ = f.SetCellValue(sheet, cell(1, legendRow), "LEGEND")
	_ = f.SetCellStyle(sheet, cell(1, legendRow), cell(1, legendRow), s.bold)
	_ = f.SetCellValue(sheet, cell(1, legendRow+1), "Avg")
	_ = f.SetCellStyle(sheet, cell(1, legendRow+1), cell(1, legendRow+1), s.bold)
	_ = f.SetCellValue(sheet, cell(2, legendRow+1), "Mean(actual duration + departure delay + arrival delay) over records with all three.")

	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Sheet 3: Daily Summary
// ═══════════════════════════════════════════════════════════════════════════

func writeDailySheet(f *excelize.File, s *reportStyles, records []storage.FlightRecord) error {
	sheet := SheetDaily
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	summaries := storage.ComputeDailySummaries(records, monitor.StatusSynthetic)

	writeHeader(f, s, sheet, []string{
		"Date", "Flights", "Synthetic",
		"Avg Sched. (min)", "Avg Actual (min)",
		"Avg Dep. Delay", "Avg Arr. Delay", "Max Arr. Delay", "Punctuality",
	}, []float64{12, 10, 10, 16, 16, 14, 14, 14, 14})

	for i, ds := range summaries {
		row := i + 2
		punct := punctuality(ds.AvgArrivalDelay)

		vals := []interface{}{
			ds.Date,
			ds.Count,
			ds.Synthetic,
			ds.AvgScheduled,
			ds.AvgActual,
			ds.AvgDepartureDelay,
			ds.AvgArrivalDelay,
			ds.MaxArrivalDelay,
			punct,
		}
		for col, v := range vals {
			c := cell(col+1, row)
			_ = f.SetCellValue(sheet, c, v)
			if col >= 3 && col <= 6 {
				_ = f.SetCellStyle(sheet, c, c, s.number)
			}
		}

		pc := cell(9, row)
		switch punct {
		case "ON TIME":
			_ = f.SetCellStyle(sheet, pc, pc, s.green)
		case "MINOR":
			_ = f.SetCellStyle(sheet, pc, pc, s.yellow)
		default:
			_ = f.SetCellStyle(sheet, pc, pc, s.red)
		}
	}

	if len(summaries) > 0 {
		aggRow := len(summaries) + 3
		total := 0
		for _, ds := range summaries {
			total += ds.Count
		}
		_ = f.SetCellValue(sheet, cell(1, aggRow), "TOTAL")
		_ = f.SetCellStyle(sheet, cell(1, aggRow), cell(1, aggRow), s.bold)
		_ = f.SetCellValue(sheet, cell(2, aggRow), total)
	}

	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Helpers
// ═══════════════════════════════════════════════════════════════════════════

func cell(col, row int) string {
	c, _ := excelize.CoordinatesToCellName(col, row)
	return c
}

// optInt leaves the cell empty for absent values.
func optInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func punctuality(avgArrivalDelay float64) string {
	switch {
	case avgArrivalDelay < 5:
		return "ON TIME"
	case avgArrivalDelay < 15:
		return "MINOR"
	default:
		return "LATE"
	}
}

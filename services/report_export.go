package services

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/talentflow/ats-backend/models"
)

const (
	sheetSummary    = "Resumen"
	sheetConversion = "Conversion"
	sheetChannels   = "Canales"
	sheetPlatforms  = "Plataformas"
)

// PublicApplicationsExport bundles the reports written to the workbook
type PublicApplicationsExport struct {
	Daily      *models.DailyStatusReport
	Conversion *models.ConversionReport
	Response   *models.ResponseTimeReport
	Sources    *models.SourcesReport
}

// BuildPublicApplicationsExport loads every report for filter
func (s *ReportService) BuildPublicApplicationsExport(ctx context.Context, filter models.ReportFilter) (*PublicApplicationsExport, error) {
	daily, err := s.DailyStatus(ctx, filter)
	if err != nil {
		return nil, err
	}

	facts, err := s.LoadAttemptFacts(ctx, filter)
	if err != nil {
		return nil, err
	}
	conversion := BuildConversionReport(facts)
	response := BuildResponseTimeReport(facts)
	sources := BuildSourcesReport(facts)

	return &PublicApplicationsExport{
		Daily:      daily,
		Conversion: &conversion,
		Response:   &response,
		Sources:    &sources,
	}, nil
}

// GeneratePublicApplicationsWorkbook renders the export as XLSX bytes
func GeneratePublicApplicationsWorkbook(export *PublicApplicationsExport) ([]byte, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{sheetConversion, sheetChannels, sheetPlatforms} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	w := &sheetWriter{file: f, headerStyle: headerStyle}

	w.header(sheetSummary, "Dia", "Estado", "Total")
	for _, item := range export.Daily.Items {
		w.row(sheetSummary, item.Day.UTC().Format(dayLayout), item.Status, item.Total)
	}
	w.blank(sheetSummary)
	w.header(sheetSummary, "Estado", "Total")
	for _, total := range export.Daily.Totals {
		w.row(sheetSummary, total.Status, total.Total)
	}

	summary := export.Conversion.Summary
	w.header(sheetConversion, "Metrica", "Valor")
	w.row(sheetConversion, "Intentos", summary.TotalLogs)
	w.row(sheetConversion, "Con postulacion", summary.Matched)
	w.row(sheetConversion, "Entrevistas", summary.Interviews)
	w.row(sheetConversion, "Ofertas", summary.Offers)
	w.row(sheetConversion, "Contrataciones", summary.Hires)
	w.row(sheetConversion, "Muestras tiempo de respuesta", export.Response.Samples)
	w.row(sheetConversion, "Promedio horas", floatCell(export.Response.AvgHours))
	w.row(sheetConversion, "Mediana horas", floatCell(export.Response.MedianHours))
	w.row(sheetConversion, "P90 horas", floatCell(export.Response.P90Hours))
	w.blank(sheetConversion)
	w.header(sheetConversion, "Estado actual", "Total")
	for _, status := range export.Conversion.Status {
		w.row(sheetConversion, optionalString(status.Status), status.Total)
	}

	w.header(sheetChannels, "Dia", "Canal", "Intentos", "Con postulacion", "Entrevistas", "Ofertas", "Contrataciones")
	for _, row := range export.Sources.Channels.Breakdown {
		w.row(sheetChannels, row.Day, row.Channel, row.TotalLogs, row.Matched, row.Interviews, row.Offers, row.Hires)
	}

	w.header(sheetPlatforms, "Dia", "Plataforma", "Total")
	for _, row := range export.Sources.Platforms.Breakdown {
		w.row(sheetPlatforms, row.Day, row.Platform, row.Total)
	}

	if w.err != nil {
		f.Close()
		return nil, w.err
	}

	f.SetActiveSheet(0)

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	return buf.Bytes(), nil
}

// sheetWriter appends rows per sheet and keeps the first error
type sheetWriter struct {
	file        *excelize.File
	headerStyle int
	next        map[string]int
	err         error
}

func (w *sheetWriter) nextRow(sheet string) int {
	if w.next == nil {
		w.next = make(map[string]int)
	}
	w.next[sheet]++
	return w.next[sheet]
}

func (w *sheetWriter) row(sheet string, values ...interface{}) int {
	row := w.nextRow(sheet)
	if w.err != nil {
		return row
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		w.err = err
		return row
	}
	if err := w.file.SetSheetRow(sheet, cell, &values); err != nil {
		w.err = fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return row
}

func (w *sheetWriter) header(sheet string, titles ...string) {
	values := make([]interface{}, len(titles))
	for i, title := range titles {
		values[i] = title
	}
	row := w.row(sheet, values...)
	if w.err != nil {
		return
	}
	start, _ := excelize.CoordinatesToCellName(1, row)
	end, _ := excelize.CoordinatesToCellName(len(titles), row)
	if err := w.file.SetCellStyle(sheet, start, end, w.headerStyle); err != nil {
		w.err = fmt.Errorf("failed to set header style: %w", err)
	}
}

func (w *sheetWriter) blank(sheet string) {
	w.nextRow(sheet)
}

func floatCell(value *float64) interface{} {
	if value == nil {
		return ""
	}
	return *value
}

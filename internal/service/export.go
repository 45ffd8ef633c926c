package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"crm-service/internal/model"
	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Export formats
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

const leadSheet = "Leads"

var leadExportHeaders = []string{
	"Lead ID", "Name", "Number", "Email", "Pincode", "Address", "Source",
	"Status", "Stage", "Manager", "Categories", "Products", "WhatsApp",
	"Task", "Remarks", "Created (IST)",
}

// ExportLeads writes every lead matching f, ignoring its page, as a
// spreadsheet or CSV file and returns the number of rows written
func (s *LeadService) ExportLeads(ctx context.Context, f LeadFilter, format string, w io.Writer) (int, error) {
	log := logger.FromContext(ctx)
	defer prometheus.TrackDBOperation("lead_export")(time.Now())

	var leads []model.Lead
	if err := s.leadQuery(ctx, f).Scopes(preloadLeadRefs).Order("created_at DESC").Find(&leads).Error; err != nil {
		log.Error("Failed to load leads for export", zap.Error(err))
		return 0, err
	}

	data := make([][]string, 0, len(leads))
	for _, l := range leads {
		data = append(data, leadRow(l))
	}

	var err error
	switch format {
	case FormatCSV:
		err = writeCSV(w, leadExportHeaders, data)
	case FormatXLSX, "":
		err = writeExcel(w, leadSheet, leadExportHeaders, data)
	default:
		return 0, validationf("Unsupported export format %q.", format)
	}
	if err != nil {
		log.Error("Failed to write lead export", zap.String("format", format), zap.Error(err))
		return 0, err
	}

	prometheus.RecordLeadOperation("export")
	log.Info("Leads exported", zap.String("format", format), zap.Int("rows", len(data)))
	return len(data), nil
}

func leadRow(l model.Lead) []string {
	v := model.NewLeadView(l)
	manager := ""
	if v.Manager != nil {
		manager = v.Manager.Name
	}
	categories := make([]string, 0, len(v.Categories))
	for _, c := range v.Categories {
		categories = append(categories, c.DisplayName)
	}
	return []string{
		v.ID.String(), v.Name, v.Number, v.Email, v.Pincode, v.Address, string(v.LeadSource),
		string(v.Status), string(v.Stage), manager, strings.Join(categories, ", "), v.ProductsSummary,
		v.WhatsAppLink, v.Task, v.Remarks, v.CreatedIST,
	}
}

func writeCSV(w io.Writer, headers []string, data [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(headers); err != nil {
		return err
	}
	if err := writer.WriteAll(data); err != nil {
		return err
	}
	return writer.Error()
}

func writeExcel(w io.Writer, sheetName string, headers []string, data [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for rowIdx, row := range data {
		for colIdx, value := range row {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return err
			}
			f.SetCellValue(sheetName, cell, value)
		}
	}

	last, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return err
	}
	f.SetColWidth(sheetName, "A", last, 18)

	if sheetName != "Sheet1" {
		f.DeleteSheet("Sheet1")
	}
	return f.Write(w)
}

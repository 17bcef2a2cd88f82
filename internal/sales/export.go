package sales

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/fumiama/go-docx"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/salesdesk/salesdesk/internal/shared"
	"github.com/salesdesk/salesdesk/web"
)

// ExportFormat is a document export format.
type ExportFormat string

const (
	FormatCSV   ExportFormat = "csv"
	FormatPDF   ExportFormat = "pdf"
	FormatExcel ExportFormat = "excel"
	FormatWord  ExportFormat = "word"
)

// ParseExportFormat validates the format query parameter. An empty value
// means csv.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(raw))); f {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatPDF, FormatExcel, FormatWord:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q", shared.ErrValidation, raw)
	}
}

// PDFRenderer converts HTML into a PDF document.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Document is a rendered export ready to be served.
type Document struct {
	ContentType string
	Filename    string
	Body        []byte
}

// Exporter renders sale listings into downloadable documents.
type Exporter struct {
	pdf  PDFRenderer
	tmpl *template.Template
	now  func() time.Time
}

// NewExporter parses the embedded export template. pdf may be nil, in which
// case pdf exports are rejected.
func NewExporter(pdf PDFRenderer) (*Exporter, error) {
	tmpl, err := template.ParseFS(web.Templates, "templates/sales/export.html")
	if err != nil {
		return nil, fmt.Errorf("sales: parse export template: %w", err)
	}
	return &Exporter{pdf: pdf, tmpl: tmpl, now: time.Now}, nil
}

// Render builds the document for rows in format.
func (e *Exporter) Render(ctx context.Context, format ExportFormat, rows []SaleView) (Document, error) {
	name := "ventas-" + uuid.NewString()
	switch format {
	case FormatCSV:
		body, err := renderCSV(rows)
		if err != nil {
			return Document{}, err
		}
		return Document{ContentType: "text/csv; charset=utf-8", Filename: name + ".csv", Body: body}, nil
	case FormatPDF:
		if e.pdf == nil {
			return Document{}, fmt.Errorf("%w: pdf export is not configured", shared.ErrValidation)
		}
		var html bytes.Buffer
		err := e.tmpl.Execute(&html, struct {
			GeneratedAt string
			Rows        []SaleView
		}{e.now().Format(createdAtLayout), rows})
		if err != nil {
			return Document{}, fmt.Errorf("sales: render export html: %w", err)
		}
		body, err := e.pdf.RenderHTML(ctx, html.String())
		if err != nil {
			return Document{}, fmt.Errorf("sales: render pdf: %w", err)
		}
		return Document{ContentType: "application/pdf", Filename: name + ".pdf", Body: body}, nil
	case FormatExcel:
		body, err := renderXLSX(rows)
		if err != nil {
			return Document{}, fmt.Errorf("sales: render xlsx: %w", err)
		}
		return Document{ContentType: xlsxContentType, Filename: name + ".xlsx", Body: body}, nil
	case FormatWord:
		body, err := renderDOCX(rows, e.now())
		if err != nil {
			return Document{}, fmt.Errorf("sales: render docx: %w", err)
		}
		return Document{ContentType: docxContentType, Filename: name + ".docx", Body: body}, nil
	}
	return Document{}, fmt.Errorf("%w: unknown export format %q", shared.ErrValidation, format)
}

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	exportSheet     = "Ventas"
)

var exportHeader = []string{
	"ID", "Fecha", "Nombre", "Apellido", "RUT", "Email", "Teléfono",
	"Región", "Comuna", "Dirección", "Promoción", "Monto instalación",
	"Estado", "Motivo", "Empresa", "Canal", "Prioridad", "Ejecutivo", "ID servicio",
}

// exportRecord flattens a sale into the exportHeader columns.
func exportRecord(r SaleView) []string {
	address := strings.TrimSpace(strings.Join([]string{r.Street, r.Number, r.DepartmentOfficeFloor}, " "))
	priority := "No"
	if r.IsPriority {
		priority = "Sí"
	}
	serviceID := ""
	if r.ServiceID != nil {
		serviceID = *r.ServiceID
	}
	return []string{
		strconv.FormatInt(r.ID, 10), r.CreatedAt, r.ClientFirstName, r.ClientLastName,
		r.ClientRut, r.ClientEmail, r.ClientPhone, r.RegionName, r.CommuneName, address,
		r.PromotionName, r.InstallationAmount, r.StatusName, r.StatusReasonName,
		r.CompanyName, r.ChannelName, priority, r.ExecutiveName, serviceID,
	}
}

func renderCSV(rows []SaleView) ([]byte, error) {
	var buf bytes.Buffer
	// BOM so spreadsheet tools detect UTF-8.
	buf.WriteString("\ufeff")
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := w.Write(exportRecord(r)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderXLSX(rows []SaleView) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return nil, err
	}
	if err := sw.SetRow("A1", cells(exportHeader), excelize.RowOpts{StyleID: bold}); err != nil {
		return nil, err
	}
	for i, r := range rows {
		values := cells(exportRecord(r))
		// Keep the id numeric so the sheet sorts it as a number.
		values[0] = r.ID
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := sw.SetRow(cell, values); err != nil {
			return nil, err
		}
	}
	if err := sw.Flush(); err != nil {
		return nil, err
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func renderDOCX(rows []SaleView, generatedAt time.Time) ([]byte, error) {
	doc := docx.New().WithDefaultTheme().WithA3Page()
	doc.AddParagraph().AddText("Ventas").Bold().Size("32")
	doc.AddParagraph().AddText("Generado " + generatedAt.Format(createdAtLayout)).Size("18")

	tbl := doc.AddTable(len(rows)+1, len(exportHeader), 0, nil)
	for j, title := range exportHeader {
		tbl.TableRows[0].TableCells[j].AddParagraph().AddText(title).Bold().Size("16")
	}
	for i, r := range rows {
		for j, v := range exportRecord(r) {
			tbl.TableRows[i+1].TableCells[j].AddParagraph().AddText(v).Size("16")
		}
	}

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

package reports

import (
	"context"
	"fmt"

	"bitbucket.org/backstitch/garments_backend/config"
	"bitbucket.org/backstitch/garments_backend/models"
	"github.com/xuri/excelize/v2"
)

// ExportHeaders carries the free-text header block printed above the order
// table (party, destination, style, code, date as entered by the operator).
type ExportHeaders struct {
	PartyName   string `json:"party_name"`
	Destination string `json:"destination"`
	Style       string `json:"style"`
	Code        string `json:"code"`
	Date        string `json:"date"`
}

// Fixed garment size columns of the printed order sheet.
var sizeColumns = []string{"S", "M", "L", "XL", "XXL", "3XL", "4X", "5X"}

type orderRow struct {
	ColourCode int
	Color      string
	Sizes      models.SizeMap
}

// ExportOrdersExcel renders every order into the distributor's order sheet
// layout: logo block, header block, then one striped row per order.
func ExportOrdersExcel(ctx context.Context, headers ExportHeaders) (*excelize.File, error) {
	db := config.GetDB()
	var orders []*models.Order
	if err := db.WithContext(ctx).Order("date DESC, created_at DESC").Find(&orders).Error; err != nil {
		return nil, err
	}

	rows := make([]orderRow, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, orderRow{ColourCode: o.ColourCode, Color: o.Color, Sizes: o.Sizes})
	}
	return buildOrderSheet("Orders", headers, rows)
}

// ExportPendingOrdersExcel renders the undelivered remainder of every order
// in the same sheet layout.
func ExportPendingOrdersExcel(ctx context.Context, headers ExportHeaders) (*excelize.File, error) {
	pending, err := models.GetAllPendingOrders(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]orderRow, 0, len(pending))
	for _, p := range pending {
		rows = append(rows, orderRow{ColourCode: p.ColourCode, Color: p.Color, Sizes: p.Sizes})
	}
	return buildOrderSheet("Pending Orders", headers, rows)
}

func buildOrderSheet(title string, headers ExportHeaders, rows []orderRow) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	if err := f.SetSheetName(sheet, title); err != nil {
		return nil, err
	}
	sheet = title

	boldCenter, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, err
	}

	// Logo block and operator-supplied header block.
	_ = f.MergeCell(sheet, "A1", "B5")
	_ = f.MergeCell(sheet, "C1", "J1")
	_ = f.SetCellValue(sheet, "C1", "Style")
	_ = f.SetCellStyle(sheet, "C1", "C1", boldCenter)
	_ = f.MergeCell(sheet, "C2", "J2")
	_ = f.SetCellValue(sheet, "C2", headers.Style)
	_ = f.MergeCell(sheet, "C3", "J3")
	_ = f.SetCellValue(sheet, "C3", headers.Code)
	_ = f.MergeCell(sheet, "C4", "J4")
	_ = f.SetCellValue(sheet, "C4", "Transport - With Pass")

	_ = f.MergeCell(sheet, "K1", "L1")
	_ = f.SetCellValue(sheet, "K1", "Party Name")
	_ = f.SetCellStyle(sheet, "K1", "K1", boldCenter)
	_ = f.MergeCell(sheet, "K2", "L2")
	_ = f.SetCellValue(sheet, "K2", headers.PartyName)
	_ = f.MergeCell(sheet, "K3", "L3")
	_ = f.SetCellValue(sheet, "K3", "Destination")
	_ = f.SetCellStyle(sheet, "K3", "K3", boldCenter)
	_ = f.MergeCell(sheet, "K4", "L4")
	_ = f.SetCellValue(sheet, "K4", headers.Destination)
	_ = f.MergeCell(sheet, "K5", "L5")
	_ = f.SetCellValue(sheet, "K5", "Date")
	_ = f.SetCellStyle(sheet, "K5", "K5", boldCenter)
	_ = f.MergeCell(sheet, "K6", "L6")
	_ = f.SetCellValue(sheet, "K6", headers.Date)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FFD966"}},
		Border:    thinBorder(),
	})
	if err != nil {
		return nil, err
	}

	tableHeader := []interface{}{"Color col", "Color"}
	for _, s := range sizeColumns {
		tableHeader = append(tableHeader, s)
	}
	tableHeader = append(tableHeader, "Total")
	if err := f.SetSheetRow(sheet, "A7", &tableHeader); err != nil {
		return nil, err
	}
	_ = f.SetCellStyle(sheet, "A7", "L7", headerStyle)

	evenStyle, err := f.NewStyle(&excelize.Style{
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FFF2CC"}},
		Border: thinBorder(),
	})
	if err != nil {
		return nil, err
	}
	oddStyle, err := f.NewStyle(&excelize.Style{
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9E1F2"}},
		Border: thinBorder(),
	})
	if err != nil {
		return nil, err
	}

	rowNum := 8
	for i, r := range rows {
		total := 0
		cells := []interface{}{r.ColourCode, r.Color}
		for _, s := range sizeColumns {
			qty := r.Sizes[s]
			total += qty
			cells = append(cells, qty)
		}
		cells = append(cells, total)
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", rowNum), &cells); err != nil {
			return nil, err
		}
		style := evenStyle
		if i%2 == 1 {
			style = oddStyle
		}
		_ = f.SetCellStyle(sheet, fmt.Sprintf("A%d", rowNum), fmt.Sprintf("L%d", rowNum), style)
		rowNum++
	}

	widths := []float64{10, 18, 6, 6, 6, 6, 6, 6, 6, 6, 10, 10}
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheet, col, col, w)
	}
	_ = f.AutoFilter(sheet, fmt.Sprintf("A7:L%d", rowNum-1), nil)

	return f, nil
}

func thinBorder() []excelize.Border {
	return []excelize.Border{
		{Type: "left", Style: 1},
		{Type: "right", Style: 1},
		{Type: "top", Style: 1},
		{Type: "bottom", Style: 1},
	}
}

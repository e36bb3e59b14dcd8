// Package importer turns uploaded spreadsheets into normalized stock rows.
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/erazemk/zaloga/internal/model"
)

// Batch-level failures. A file that hits one of these imports nothing.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrUnreadable        = errors.New("unreadable file")
	ErrMissingColumn     = errors.New("missing required column")
)

// Row is one parsed line of an import file.
type Row struct {
	Line       int
	Name       string
	Category   string
	Quantity   int
	Price      decimal.NullDecimal
	ExpiryDate model.Date
}

// RowError describes a line that could not be parsed. It is skipped, not fatal.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Result holds the rows that parsed and the ones that did not.
type Result struct {
	Rows   []Row
	Errors []*RowError
}

// column aliases, matched case-insensitively after trimming.
var columns = map[string]string{
	"name":            "name",
	"category":        "category",
	"quantity":        "quantity",
	"qty":             "quantity",
	"price":           "price",
	"cost":            "price",
	"expire_date":     "expire_date",
	"expiry_date":     "expire_date",
	"expiration_date": "expire_date",
}

var required = []string{"name", "quantity", "expire_date"}

// Parse reads a csv, xls or xlsx file, chosen by the file name extension.
func Parse(fileName string, r io.Reader) (*Result, error) {
	var (
		table [][]string
		err   error
	)
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		table, err = readCSV(r)
	case ".xlsx":
		table, err = readXLSX(r)
	case ".xls":
		table, err = readXLS(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(fileName))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return parseTable(table)
}

func readCSV(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr.ReadAll()
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func readXLS(r io.Reader) (table [][]string, err error) {
	// The xls decoder panics on some malformed files.
	defer func() {
		if p := recover(); p != nil {
			table, err = nil, fmt.Errorf("decoding xls: %v", p)
		}
	}()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("workbook has no sheets")
	}

	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			table = append(table, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for j := range cells {
			cells[j] = row.Col(j)
		}
		table = append(table, cells)
	}
	return table, nil
}

func parseTable(table [][]string) (*Result, error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrUnreadable)
	}

	index := map[string]int{}
	for i, h := range table[0] {
		if canonical, ok := columns[strings.ToLower(strings.TrimSpace(h))]; ok {
			if _, seen := index[canonical]; !seen {
				index[canonical] = i
			}
		}
	}
	for _, c := range required {
		if _, ok := index[c]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}

	res := &Result{}
	for i, cells := range table[1:] {
		line := i + 2
		if blank(cells) {
			continue
		}
		get := func(col string) string {
			j, ok := index[col]
			if !ok || j >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[j])
		}

		row, err := parseRow(line, get)
		if err != nil {
			res.Errors = append(res.Errors, &RowError{Line: line, Err: err})
			continue
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

func parseRow(line int, get func(string) string) (Row, error) {
	row := Row{Line: line, Name: get("name"), Category: get("category")}
	if row.Name == "" {
		return row, errors.New("name is empty")
	}

	qty, err := parseQuantity(get("quantity"))
	if err != nil {
		return row, err
	}
	row.Quantity = qty

	if raw := get("price"); raw != "" {
		price, err := parsePrice(raw)
		if err != nil {
			return row, err
		}
		row.Price = decimal.NewNullDecimal(price)
	}

	row.ExpiryDate, err = ParseDate(get("expire_date"))
	if err != nil {
		return row, err
	}
	return row, nil
}

func parseQuantity(raw string) (int, error) {
	if raw == "" {
		return 0, fmt.Errorf("quantity is empty: %w", model.ErrInvalidQuantity)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		// Spreadsheets often store whole numbers as floats.
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, fmt.Errorf("quantity %q: %w", raw, model.ErrInvalidQuantity)
		}
		n = int(f)
	}
	if n <= 0 {
		return 0, fmt.Errorf("quantity %d: %w", n, model.ErrInvalidQuantity)
	}
	return n, nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(raw, " ", "")
	if !strings.Contains(cleaned, ".") {
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	}
	price, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("price %q is not a number", raw)
	}
	if price.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("price %q is negative", raw)
	}
	return price, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

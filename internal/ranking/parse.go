package ranking

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat は対応していない拡張子のファイルが渡された場合のエラー。
var ErrUnsupportedFormat = errors.New("unsupported file format")

const utf8BOM = "\ufeff"

// Parse はファイル名の拡張子に応じてCSVまたはXLSXとして解析する。
func Parse(name string, r io.Reader) (Dataset, error) {
	var (
		rows []Row
		err  error
	)

	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		rows, err = ParseCSV(r)
	case ".xlsx":
		rows, err = ParseXLSX(r)
	default:
		return Dataset{}, fmt.Errorf("parse %s: %w", name, ErrUnsupportedFormat)
	}
	if err != nil {
		return Dataset{}, fmt.Errorf("parse %s: %w", name, err)
	}

	return Dataset{Name: name, Rows: rows}, nil
}

// ParseCSV はヘッダー行付きのCSVを解析する。
// 列の数がヘッダーと一致しない行も受け付ける。空行はスキップされる。
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	idx := newColumnIndex(header)

	var rows []Row
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}
		if isBlankRecord(record) {
			continue
		}
		rows = append(rows, idx.row(record))
	}
	return rows, nil
}

// ParseXLSX はXLSXの先頭シートをヘッダー行付きの表として解析する。
func ParseXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	idx := newColumnIndex(records[0])
	var rows []Row
	for _, record := range records[1:] {
		if isBlankRecord(record) {
			continue
		}
		rows = append(rows, idx.row(record))
	}
	return rows, nil
}

// columnIndex は必須カラムの位置を保持する。見つからないカラムは-1。
type columnIndex struct {
	trend int
	isAd  int
	link  int
	sales int
}

func newColumnIndex(header []string) columnIndex {
	idx := columnIndex{trend: -1, isAd: -1, link: -1, sales: -1}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		// 同名カラムが複数ある場合は最初のものを使う
		switch strings.TrimSpace(h) {
		case ColumnTrend:
			if idx.trend < 0 {
				idx.trend = i
			}
		case ColumnIsAd:
			if idx.isAd < 0 {
				idx.isAd = i
			}
		case ColumnLink:
			if idx.link < 0 {
				idx.link = i
			}
		case ColumnSalesCount:
			if idx.sales < 0 {
				idx.sales = i
			}
		}
	}
	return idx
}

func (c columnIndex) row(record []string) Row {
	return Row{
		Trend:      ParseTrend(field(record, c.trend)),
		Ad:         ParseAdFlag(field(record, c.isAd)),
		Link:       strings.TrimSpace(field(record, c.link)),
		SalesCount: ParseSalesCount(field(record, c.sales)),
	}
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}

func isBlankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

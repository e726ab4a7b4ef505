// Package tabular reads the CSV inputs of batch jobs and writes their
// flattened results.
package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"
)

// CUExportRow is one organisation from the community-directory export.
type CUExportRow struct {
	ID                string `csv:"ID_19"`
	StreetAddress     string `csv:"Street_Address_Line_1"`
	Suburb            string `csv:"Suburb"`
	Council           string `csv:"Organisati_Council"`
	ElectorateState   string `csv:"Organisati_Electorate_State_"`
	ElectorateFederal string `csv:"Organisati_Electorate_Federal_"`
}

// Address joins the street line and suburb. Missing parts are left out, so
// a row with neither yields "".
func (r CUExportRow) Address() string {
	parts := make([]string, 0, 2)
	for _, p := range []string{r.StreetAddress, r.Suburb} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// ReadCUExport decodes the export at path. Columns other than the ones
// CUExportRow names are ignored.
func ReadCUExport(path string) ([]CUExportRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export %s: %w", path, err)
	}
	// Exports saved from spreadsheet tools often start with a BOM.
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var rows []CUExportRow
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode export %s: %w", path, err)
	}
	return rows, nil
}

// ReadLines returns the non-blank, trimmed lines of path. Lines starting
// with '#' are skipped.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

// WriteCSV encodes rows with their csv struct tags and writes them to path,
// replacing any existing file.
func WriteCSV[T any](path string, rows []T) error {
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return writeFile(path, data)
}

// WriteRows writes rows whose columns are only known at run time. Each row
// is rendered in header order; missing values are left empty.
func WriteRows(path string, header []string, rows []map[string]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, col := range header {
			record[i] = row[col]
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return writeFile(path, buf.Bytes())
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

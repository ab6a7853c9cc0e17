// Package dataset loads startup records from the tabular dataset and
// filters them down to the experimental working set: records that carry
// both a short and a long description.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"descbench/internal/domain"
)

// FilterStats summarizes one filtering pass over the raw dataset.
type FilterStats struct {
	Total     int
	WithShort int
	WithLong  int
	WithBoth  int
}

// Retained is the fraction of the raw dataset kept by the filter.
func (s FilterStats) Retained() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.WithBoth) / float64(s.Total)
}

type columnIndex struct {
	id        int
	name      int
	shortDesc int
	longDesc  int
	catList   int
	catGroups int
	founded   int
}

func resolveColumns(header []string) (columnIndex, error) {
	idx := columnIndex{id: -1, name: -1, shortDesc: -1, longDesc: -1, catList: -1, catGroups: -1, founded: -1}
	for i, col := range header {
		switch normalizeHeader(col) {
		case "id", "org_uuid", "company_id", "companyid":
			if idx.id == -1 {
				idx.id = i
			}
		case "name", "company_name", "companyname":
			idx.name = i
		case "short_description":
			idx.shortDesc = i
		case "long_description":
			idx.longDesc = i
		case "category_list":
			idx.catList = i
		case "category_groups_list":
			idx.catGroups = i
		case "founded_date", "founded_on":
			idx.founded = i
		}
	}
	switch {
	case idx.id == -1:
		return idx, fmt.Errorf("dataset missing id column (id or org_uuid)")
	case idx.shortDesc == -1:
		return idx, fmt.Errorf("dataset missing short_description column")
	case idx.longDesc == -1:
		return idx, fmt.Errorf("dataset missing long_description column")
	}
	return idx, nil
}

// Column headers in the wild vary in case and spacing ("Long description").
func normalizeHeader(col string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(col)), " ", "_")
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Load reads every record with both descriptions from the CSV at path,
// in file order, together with filtering stats for the raw file.
func Load(path string) ([]domain.Record, FilterStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, FilterStats{}, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()
	return read(f)
}

func read(r io.Reader) ([]domain.Record, FilterStats, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, FilterStats{}, fmt.Errorf("reading dataset header: %w", err)
	}
	idx, err := resolveColumns(header)
	if err != nil {
		return nil, FilterStats{}, err
	}

	var records []domain.Record
	var stats FilterStats
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("reading dataset row: %w", err)
		}
		stats.Total++

		short := field(row, idx.shortDesc)
		long := field(row, idx.longDesc)
		if short != "" {
			stats.WithShort++
		}
		if long != "" {
			stats.WithLong++
		}
		if short == "" || long == "" {
			continue
		}
		stats.WithBoth++

		id := field(row, idx.id)
		if id == "" {
			id = fmt.Sprintf("startup-%d", stats.Total)
		}
		records = append(records, domain.Record{
			ID:               id,
			Name:             field(row, idx.name),
			ShortDescription: short,
			LongDescription:  long,
			Keywords:         joinKeywords(field(row, idx.catList), field(row, idx.catGroups)),
			YearFounded:      field(row, idx.founded),
		})
	}
	return records, stats, nil
}

func joinKeywords(catList, catGroups string) string {
	switch {
	case catList != "" && catGroups != "":
		return catList + ", " + catGroups
	case catList != "":
		return catList
	default:
		return catGroups
	}
}

// WriteFiltered writes the working dataset produced by Load so both
// experimental conditions classify the exact same record set.
func WriteFiltered(path string, records []domain.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating filtered dataset: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"id", "name", "short_description", "long_description", "category_list", "founded_date"}); err != nil {
		return err
	}
	for _, rec := range records {
		if err := w.Write([]string{rec.ID, rec.Name, rec.ShortDescription, rec.LongDescription, rec.Keywords, rec.YearFounded}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

package spreadsheet

// Column names a zero-based position in a row.
type Column struct {
	Name  string
	Index int
}

// Schema describes the named columns of a tab.
type Schema struct {
	Columns []Column
}

// Record is a decoded row keyed by column name.
type Record map[string]string

// Width is the number of cells a row needs to carry every column.
func (s Schema) Width() int {
	w := 0
	for _, c := range s.Columns {
		if c.Index+1 > w {
			w = c.Index + 1
		}
	}
	return w
}

// Decode returns every row as a record, in sheet order. The API drops
// trailing empty cells, so columns past the end of a short row decode as "".
// Header rows are not special: they decode like any other row.
func (s Schema) Decode(rows [][]string) []Record {
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := make(Record, len(s.Columns))
		for _, c := range s.Columns {
			if c.Index < len(row) {
				rec[c.Name] = row[c.Index]
			} else {
				rec[c.Name] = ""
			}
		}
		records = append(records, rec)
	}
	return records
}

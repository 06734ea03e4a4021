package athena

import (
	"strings"

	"github.com/zeebo/xxh3"
	"golang.org/x/text/unicode/norm"
)

// ResultSet is the fully paged output of one query. Header comes from the
// first row of the first page; Rows holds the data rows in result order. A
// nil cell is SQL NULL.
type ResultSet struct {
	Header []string
	Rows   [][]*string
}

// NewResultSet splits raw result rows into header and data rows. Header names
// are trimmed and NFC-normalised so that visually identical column names
// compare equal against the destination schema.
func NewResultSet(rows [][]*string) *ResultSet {
	if len(rows) == 0 {
		return &ResultSet{}
	}
	header := make([]string, len(rows[0]))
	for i, c := range rows[0] {
		if c != nil {
			header[i] = norm.NFC.String(strings.TrimSpace(*c))
		}
	}
	return &ResultSet{Header: header, Rows: rows[1:]}
}

// Empty reports whether there is nothing to load (no header, or header only).
func (r *ResultSet) Empty() bool {
	return r == nil || len(r.Header) == 0 || len(r.Rows) == 0
}

// Cell returns row[i] or nil when the row is shorter than the header.
func Cell(row []*string, i int) *string {
	if i < 0 || i >= len(row) {
		return nil
	}
	return row[i]
}

// Fingerprint hashes header and cells. Two result sets with the same
// fingerprint carry the same data, which makes "nothing changed since
// yesterday" visible in the run report.
func (r *ResultSet) Fingerprint() uint64 {
	if r == nil {
		return 0
	}
	h := xxh3.New()
	for _, name := range r.Header {
		_, _ = h.Write([]byte(name))
		_, _ = h.Write([]byte{0x1f})
	}
	_, _ = h.Write([]byte{0x1e})
	for _, row := range r.Rows {
		for _, c := range row {
			if c == nil {
				_, _ = h.Write([]byte{0x00})
			} else {
				_, _ = h.Write([]byte{0x01})
				_, _ = h.Write([]byte(*c))
			}
			_, _ = h.Write([]byte{0x1f})
		}
		_, _ = h.Write([]byte{0x1e})
	}
	return h.Sum64()
}

package grid

import (
	"encoding/csv"
	"io"
	"slices"
	"strconv"

	"github.com/go-faster/errors"
)

// Columns is the CSV header of a grid export.
var Columns = []string{
	"product_kind", "impression", "bulletin_format", "affiche_format",
	"seq", "block_size", "block_price_cents", "max_applications",
}

// ReadCSV reads a grid export. The first record must be the Columns header;
// empty cells are NULL.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Columns)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	if !slices.Equal(header, Columns) {
		return nil, errors.Errorf("unexpected header %q", header)
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "read record")
		}
		row, err := parseRecord(rec)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, errors.Wrapf(err, "line %d", line)
		}
		rows = append(rows, row)
	}
}

func parseRecord(rec []string) (Row, error) {
	r := Row{
		ProductKind:    rec[0],
		Impression:     rec[1],
		BulletinFormat: rec[2],
		AfficheFormat:  rec[3],
	}
	var err error
	if r.Seq, err = strconv.Atoi(rec[4]); err != nil {
		return Row{}, errors.Wrap(err, "seq")
	}
	if r.BlockSize, err = strconv.Atoi(rec[5]); err != nil {
		return Row{}, errors.Wrap(err, "block_size")
	}
	if r.BlockPriceCents, err = strconv.ParseInt(rec[6], 10, 64); err != nil {
		return Row{}, errors.Wrap(err, "block_price_cents")
	}
	if rec[7] != "" {
		v, err := strconv.Atoi(rec[7])
		if err != nil {
			return Row{}, errors.Wrap(err, "max_applications")
		}
		r.MaxApplications = &v
	}
	return r, nil
}

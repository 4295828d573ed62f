package grid

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// DecodeJSON reads a JSON array of rows using the snake_case column names of
// the pricing_tiers table. Unknown fields are rejected.
func DecodeJSON(data []byte) ([]Row, error) {
	var rows []Row
	d := jx.DecodeBytes(data)
	if err := d.Arr(func(d *jx.Decoder) error {
		r, err := decodeRow(d)
		if err != nil {
			return errors.Wrapf(err, "row %d", len(rows)+1)
		}
		rows = append(rows, r)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode grid")
	}
	return rows, nil
}

func decodeRow(d *jx.Decoder) (Row, error) {
	var r Row
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_kind":
			r.ProductKind, err = optStr(d)
		case "impression":
			r.Impression, err = optStr(d)
		case "bulletin_format":
			r.BulletinFormat, err = optStr(d)
		case "affiche_format":
			r.AfficheFormat, err = optStr(d)
		case "seq":
			r.Seq, err = d.Int()
		case "block_size":
			r.BlockSize, err = d.Int()
		case "block_price_cents":
			r.BlockPriceCents, err = d.Int64()
		case "max_applications":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var v int
			if v, err = d.Int(); err == nil {
				r.MaxApplications = &v
			}
		default:
			return errors.Errorf("unknown field %q", key)
		}
		return errors.Wrap(err, key)
	})
	return r, err
}

func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

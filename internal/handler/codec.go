package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/printshop/internal/domain/cart"
	"github.com/xenking/printshop/internal/domain/order"
	"github.com/xenking/printshop/internal/domain/pricing"
	"github.com/xenking/printshop/internal/format"
)

// cartRequest is the body of /api/quote and /api/checkout.
type cartRequest struct {
	Items         []cart.Item
	CustomerEmail string
}

// decodeCartRequest decodes {"items": [...], "customerEmail": "..."}.
// Unknown fields are rejected.
func decodeCartRequest(data []byte) (cartRequest, error) {
	var req cartRequest
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				item, err := decodeItem(d)
				var reqErr *RequestError
				if errors.As(err, &reqErr) {
					return &RequestError{Msg: fmt.Sprintf("items[%d]: %s", len(req.Items), reqErr.Msg)}
				}
				if err != nil {
					return err
				}
				req.Items = append(req.Items, item)
				return nil
			})
		case "customerEmail":
			s, err := d.Str()
			req.CustomerEmail = s
			return err
		default:
			return &RequestError{Msg: fmt.Sprintf("unknown field %q", key)}
		}
	})
	if err != nil {
		return cartRequest{}, asRequestError(err)
	}
	return req, nil
}

// itemFields collects the fields of one item before its kind is known, since
// productKind may appear after the options.
type itemFields struct {
	kind           string
	impression     *string
	bulletinFormat *string
	afficheFormat  *string
	quantity       int
}

func decodeItem(d *jx.Decoder) (cart.Item, error) {
	var f itemFields
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productKind":
			f.kind, err = d.Str()
		case "impression":
			f.impression, err = strPtr(d)
		case "bulletinFormat":
			f.bulletinFormat, err = strPtr(d)
		case "afficheFormat":
			f.afficheFormat, err = strPtr(d)
		case "quantity":
			f.quantity, err = d.Int()
		default:
			return &RequestError{Msg: fmt.Sprintf("unknown field %q", key)}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return f.item()
}

// item builds the variant for the kind. Options that do not belong to the
// kind are rejected rather than ignored.
func (f itemFields) item() (cart.Item, error) {
	kind := cart.ProductKind(f.kind)
	reject := func(field string, v *string) error {
		if v == nil {
			return nil
		}
		return &RequestError{Msg: fmt.Sprintf("field %q is not allowed for %s", field, kind)}
	}
	val := func(v *string) string {
		if v == nil {
			return ""
		}
		return *v
	}

	switch kind {
	case cart.ProfessionsDeFoi:
		if err := reject("bulletinFormat", f.bulletinFormat); err != nil {
			return nil, err
		}
		if err := reject("afficheFormat", f.afficheFormat); err != nil {
			return nil, err
		}
		return cart.ProfessionsDeFoiItem{
			Impression: cart.Impression(val(f.impression)),
			Quantity:   f.quantity,
		}, nil
	case cart.BulletinsDeVote:
		if err := reject("afficheFormat", f.afficheFormat); err != nil {
			return nil, err
		}
		return cart.BulletinsDeVoteItem{
			Impression:     cart.Impression(val(f.impression)),
			BulletinFormat: cart.BulletinFormat(val(f.bulletinFormat)),
			Quantity:       f.quantity,
		}, nil
	case cart.Affiches:
		if err := reject("impression", f.impression); err != nil {
			return nil, err
		}
		if err := reject("bulletinFormat", f.bulletinFormat); err != nil {
			return nil, err
		}
		return cart.AffichesItem{
			AfficheFormat: cart.AfficheFormat(val(f.afficheFormat)),
			Quantity:      f.quantity,
		}, nil
	case "":
		return nil, &RequestError{Msg: "missing productKind"}
	default:
		return nil, &RequestError{Msg: fmt.Sprintf("unknown productKind %q", f.kind)}
	}
}

func strPtr(d *jx.Decoder) (*string, error) {
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// asRequestError unwraps a RequestError from the decoder's error chain and
// turns syntax errors into a generic one.
func asRequestError(err error) error {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr
	}
	return &RequestError{Msg: "malformed JSON body"}
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func encodeSignatureFields(e *jx.Encoder, item cart.Item) {
	sig := item.Signature()
	e.FieldStart("productKind")
	e.Str(string(sig.Kind))
	if sig.Impression != "" {
		e.FieldStart("impression")
		e.Str(string(sig.Impression))
	}
	if sig.BulletinFormat != "" {
		e.FieldStart("bulletinFormat")
		e.Str(string(sig.BulletinFormat))
	}
	if sig.AfficheFormat != "" {
		e.FieldStart("afficheFormat")
		e.Str(string(sig.AfficheFormat))
	}
}

func encodeMoney(e *jx.Encoder, field string, cents int64, currency string) {
	e.FieldStart(field + "Cents")
	e.Int64(cents)
	e.FieldStart(field + "Display")
	e.Str(format.Money(cents, currency))
}

func encodeBreakdown(e *jx.Encoder, entries []pricing.BreakdownEntry) {
	e.ArrStart()
	for _, b := range entries {
		e.ObjStart()
		e.FieldStart("seq")
		e.Int(b.Seq)
		e.FieldStart("label")
		e.Str(b.Label)
		e.FieldStart("blockSize")
		e.Int(b.BlockSize)
		e.FieldStart("applications")
		e.Int(b.Applications)
		e.FieldStart("unitsCovered")
		e.Int(b.UnitsCovered)
		e.FieldStart("blockPriceCents")
		e.Int64(b.BlockPriceCents)
		e.FieldStart("lineTotalCents")
		e.Int64(b.LineTotalCents)
		e.ObjEnd()
	}
	e.ArrEnd()
}

func encodePricedOrder(e *jx.Encoder, o *order.PricedOrder) {
	e.ObjStart()
	e.FieldStart("currency")
	e.Str(o.Currency)
	e.FieldStart("taxRate")
	e.Str(o.TaxRate.String())
	e.FieldStart("taxLabel")
	e.Str(order.TaxLabel(o.TaxRate))
	encodeMoney(e, "subtotal", o.SubtotalCents, o.Currency)
	encodeMoney(e, "shipping", o.ShippingCents, o.Currency)
	encodeMoney(e, "tax", o.TaxCents, o.Currency)
	encodeMoney(e, "grandTotal", o.GrandTotalCents, o.Currency)

	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		encodeSignatureFields(e, it.Item)
		e.FieldStart("label")
		e.Str(cart.Label(it.Item))
		e.FieldStart("requestedQuantity")
		e.Int(it.RequestedQuantity)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		encodeMoney(e, "unitPrice", it.UnitPriceCents, o.Currency)
		encodeMoney(e, "total", it.TotalCents, o.Currency)
		e.FieldStart("breakdown")
		encodeBreakdown(e, it.Breakdown)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	if o.CustomerEmail != "" {
		e.FieldStart("customerEmail")
		e.Str(o.CustomerEmail)
	}
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.FieldStart("pricing")
	encodePricedOrder(e, &o.Pricing)
	e.ObjEnd()
}

package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/ogen-go/ogen/json"
	"github.com/shopspring/decimal"

	"github.com/xenking/sales-engine/internal/domain/sale"
)

// decodeCreateSale parses a create request body. Totals and prices sent by
// the client are skipped.
func decodeCreateSale(data []byte) (sale.CreateRequest, error) {
	var req sale.CreateRequest
	d := jx.DecodeBytes(data)

	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "clientId":
			req.Client.ID, err = optString(d)
		case "clientTaxId", "clientNit":
			req.Client.TaxID, err = optString(d)
		case "date":
			req.Date, err = decodeDate(d)
		case "paymentMethod":
			var s string
			s, err = d.Str()
			req.PaymentMethod = sale.PaymentMethod(s)
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				line, err := decodeLine(d)
				if err != nil {
					return err
				}
				req.Lines = append(req.Lines, line)
				return nil
			})
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	return req, err
}

func decodeLine(d *jx.Decoder) (sale.LineRequest, error) {
	var line sale.LineRequest
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "productId":
			line.ProductID, err = d.Str()
		case "quantity":
			line.Quantity, err = d.Int()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "item field %q", key)
		}
		return nil
	})
	return line, err
}

// decodeCancel reads the optional cancel body. An empty body means cancel.
func decodeCancel(data []byte) (bool, error) {
	if len(data) == 0 {
		return true, nil
	}
	cancel := true
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "isCanceled" {
			return d.Skip()
		}
		v, err := d.Bool()
		if err != nil {
			return errors.Wrap(err, `field "isCanceled"`)
		}
		cancel = v
		return nil
	})
	return cancel, err
}

func optString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// decodeDate accepts RFC 3339 timestamps and plain calendar dates.
func decodeDate(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, errors.Errorf("invalid date %q", s)
	}
	return t.UTC(), nil
}

func encodeSale(e *jx.Encoder, s *sale.Sale) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(s.ID)
	e.FieldStart("clientId")
	if s.ClientID != nil {
		e.Str(*s.ClientID)
	} else {
		e.Null()
	}
	e.FieldStart("date")
	json.EncodeDateTime(e, s.Date)
	e.FieldStart("subtotal")
	encodeMoney(e, s.Subtotal)
	e.FieldStart("discountTotal")
	encodeMoney(e, s.DiscountTotal)
	e.FieldStart("total")
	encodeMoney(e, s.Total)
	e.FieldStart("paymentMethod")
	e.Str(string(s.PaymentMethod))
	e.FieldStart("isCanceled")
	e.Bool(s.IsCanceled)
	if s.CreatedBy != nil {
		e.FieldStart("createdBy")
		e.Str(*s.CreatedBy)
	}
	e.FieldStart("createdAt")
	json.EncodeDateTime(e, s.CreatedAt)
	e.FieldStart("updatedAt")
	json.EncodeDateTime(e, s.UpdatedAt)
	e.FieldStart("items")
	encodeItems(e, s.Items)
	e.ObjEnd()
}

func encodeSales(e *jx.Encoder, sales []sale.Sale) {
	e.ArrStart()
	for i := range sales {
		encodeSale(e, &sales[i])
	}
	e.ArrEnd()
}

func encodeItems(e *jx.Encoder, items []sale.Item) {
	e.ArrStart()
	for _, it := range items {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(it.ID)
		e.FieldStart("saleId")
		e.Str(it.SaleID)
		e.FieldStart("productId")
		e.Str(it.ProductID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("unitPrice")
		encodeMoney(e, it.UnitPrice)
		e.FieldStart("discountApplied")
		encodeMoney(e, it.DiscountApplied)
		e.FieldStart("createdAt")
		json.EncodeDateTime(e, it.CreatedAt)
		e.FieldStart("updatedAt")
		json.EncodeDateTime(e, it.UpdatedAt)
		e.ObjEnd()
	}
	e.ArrEnd()
}

// encodeMoney writes d as a JSON number with exactly two decimals.
func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(message)
		e.ObjEnd()
	})
}

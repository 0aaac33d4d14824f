package main

import (
	"bufio"
	"context"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/sales-engine/internal/storage/postgres"
)

const maxLineBytes = 1 << 20

// streamLines calls fn with every non-empty line of the gzip file at path.
// The slice passed to fn is only valid during the call.
func streamLines(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		if err := fn(b); err != nil {
			return errors.Wrapf(err, "%s:%d", path, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// productCode extracts only the code of a product line, skipping the rest.
func productCode(line []byte) (string, error) {
	var code string
	err := jx.DecodeBytes(line).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "code" {
			return d.Skip()
		}
		var err error
		code, err = d.Str()
		return err
	})
	if err != nil {
		return "", err
	}
	if code == "" {
		return "", errors.New("product without code")
	}
	return code, nil
}

func decodeProduct(line []byte) (postgres.ProductRecord, error) {
	var p postgres.ProductRecord
	err := jx.DecodeBytes(line).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			p.ID, err = d.Str()
		case "code":
			p.Code, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = optStr(d)
		case "price":
			p.Price, err = decodeDecimal(d)
		case "unit":
			p.Unit, err = d.Str()
		case "isDeleted":
			p.IsDeleted, err = d.Bool()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	if err != nil {
		return p, err
	}
	switch {
	case p.Code == "":
		return p, errors.New("product without code")
	case p.Name == "":
		return p, errors.Errorf("product %s without name", p.Code)
	case p.Price.IsNegative():
		return p, errors.Errorf("product %s has negative price", p.Code)
	}
	if p.Unit == "" {
		p.Unit = "piece"
	}
	p.Price = p.Price.Round(2)
	return p, nil
}

func decodeDiscount(line []byte) (postgres.DiscountRecord, error) {
	r := postgres.DiscountRecord{IsActive: true}
	err := jx.DecodeBytes(line).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			r.ID, err = d.Str()
		case "code":
			r.Code, err = d.Str()
		case "productCode":
			r.ProductCode, err = d.Str()
		case "percentage":
			r.Percentage, err = decodeDecimal(d)
		case "validFrom":
			r.ValidFrom, err = decodeTime(d)
		case "validTo":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var t time.Time
			t, err = decodeTime(d)
			r.ValidTo = &t
		case "isActive":
			r.IsActive, err = d.Bool()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	if err != nil {
		return r, err
	}
	switch {
	case r.Code == "" || r.ProductCode == "":
		return r, errors.New("discount without code or productCode")
	case r.Percentage.IsNegative() || r.Percentage.GreaterThan(decimal.NewFromInt(100)):
		return r, errors.Errorf("discount %s percentage %s outside 0..100", r.Code, r.Percentage)
	case r.ValidFrom.IsZero():
		return r, errors.Errorf("discount %s without validFrom", r.Code)
	case r.ValidTo != nil && r.ValidTo.Before(r.ValidFrom):
		return r, errors.Errorf("discount %s ends before it starts", r.Code)
	}
	return r, nil
}

// decodeDecimal accepts both JSON numbers and numeric strings.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	s := n.String()
	if n.Str() {
		s = s[1 : len(s)-1]
	}
	return decimal.NewFromString(s)
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		if t, err = time.Parse(time.DateOnly, s); err != nil {
			return time.Time{}, errors.Errorf("invalid time %q", s)
		}
	}
	return t.UTC(), nil
}

func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

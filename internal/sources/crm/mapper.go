package crm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"

	"github.com/mkoziy/contratos/crmsync/internal/models"
)

// ErrMissingID marks a CRM record that cannot be mirrored.
var ErrMissingID = errors.New("crm record has no id")

// PhoneRegion is the default region for numbers without a country code.
const PhoneRegion = "CL"

var dateLayouts = []string{
	models.DayLayout,
	"02/01/2006",
	"02-01-2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// Values the CRM uses for "no delivery date yet".
var pendingDates = map[string]struct{}{
	"":            {},
	"por definir": {},
	"a definir":   {},
	"pendiente":   {},
	"sin fecha":   {},
	"tbd":         {},
	"null":        {},
	"0000-00-00":  {},
}

// MapSale coerces one raw CRM record into a mirror row. The raw document is
// kept verbatim as the payload.
func MapSale(raw json.RawMessage) (*models.Sale, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var w wireSale
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("decode sale: %w", err)
	}

	id := asString(w.ID)
	if id == "" {
		return nil, ErrMissingID
	}

	sale := &models.Sale{
		ID:              id,
		CustomerName:    asString(w.CustomerName),
		CustomerRUT:     NormalizeRUT(asString(w.CustomerRUT)),
		CustomerPhone:   NormalizePhone(asString(w.CustomerPhone)),
		CustomerEmail:   strings.ToLower(asString(w.CustomerEmail)),
		DeliveryAddress: asString(w.DeliveryAddress),
		TotalValue:      ParseMoney(w.TotalValue),
		HouseModel:      asString(w.HouseModel),
		MaterialDetail:  asString(w.MaterialDetail),
		SaleDate:        ParseDate(w.SaleDate),
		DeliveryDate:    ParseDeliveryDate(w.DeliveryDate),
		SalespersonID:   asString(w.SalespersonID),
		SalespersonName: asString(w.SalespersonName),
		SupervisorName:  asString(w.SupervisorName),
		CRMStatus:       asString(w.Status),
		CRMNotes:        asString(w.Notes),
		RawPayload:      models.RawJSON(append([]byte(nil), raw...)),
	}
	if n := asString(w.ContractNumber); n != "" {
		sale.ContractNumber = &n
	}
	return sale, nil
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// ParseMoney converts a CRM amount into whole pesos. It accepts numbers and
// strings with currency symbols and Chilean (12.500.000,50) or English
// (12,500,000.50) separators. Fractions round half away from zero. Anything
// unparseable or negative is 0.
func ParseMoney(v any) int64 {
	var d decimal.Decimal
	var err error

	switch t := v.(type) {
	case json.Number:
		d, err = decimal.NewFromString(t.String())
	case float64:
		d = decimal.NewFromFloat(t)
	case string:
		d, err = decimal.NewFromString(normalizeAmount(t))
	default:
		return 0
	}
	if err != nil || d.IsNegative() {
		return 0
	}
	return d.Round(0).IntPart()
}

func normalizeAmount(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	clean := b.String()

	dots := strings.Count(clean, ".")
	commas := strings.Count(clean, ",")
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(clean, ",") > strings.LastIndex(clean, ".") {
			clean = strings.ReplaceAll(clean, ".", "")
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case dots > 1 || (dots == 1 && thousandsGroup(clean, '.')):
		clean = strings.ReplaceAll(clean, ".", "")
	case commas > 1 || (commas == 1 && thousandsGroup(clean, ',')):
		clean = strings.ReplaceAll(clean, ",", "")
	case commas == 1:
		clean = strings.Replace(clean, ",", ".", 1)
	}
	return clean
}

// thousandsGroup reports whether the single separator sep is followed by
// exactly three digits, which pesos amounts use for grouping.
func thousandsGroup(s string, sep byte) bool {
	i := strings.IndexByte(s, sep)
	return i > 0 && len(s)-i-1 == 3
}

// ParseDate normalizes a CRM date to YYYY-MM-DD, or "" when unparseable.
func ParseDate(v any) string {
	s := asString(v)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.FormatDay(t)
		}
	}
	return ""
}

// ParseDeliveryDate returns nil for pending sentinels and unparseable input.
func ParseDeliveryDate(v any) *string {
	s := asString(v)
	if _, pending := pendingDates[strings.ToLower(s)]; pending {
		return nil
	}
	day := ParseDate(s)
	if day == "" {
		return nil
	}
	return &day
}

// NormalizeRUT renders a Chilean RUT as digits, dash, check digit
// (12345678-K). Input that does not look like a RUT is returned trimmed.
func NormalizeRUT(s string) string {
	s = strings.TrimSpace(s)
	clean := strings.ToUpper(strings.NewReplacer(".", "", "-", "", " ", "").Replace(s))
	if len(clean) < 2 {
		return s
	}

	body, dv := clean[:len(clean)-1], clean[len(clean)-1]
	for _, r := range body {
		if r < '0' || r > '9' {
			return s
		}
	}
	if (dv < '0' || dv > '9') && dv != 'K' {
		return s
	}
	return strings.TrimLeft(body, "0") + "-" + string(dv)
}

// NormalizePhone formats a phone number as E.164. Numbers libphonenumber
// cannot validate are kept as received.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	p, err := libphonenumber.Parse(s, PhoneRegion)
	if err != nil || !libphonenumber.IsValidNumber(p) {
		return s
	}
	return libphonenumber.Format(p, libphonenumber.E164)
}

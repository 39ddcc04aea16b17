package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MicroPerOCT is the number of micro units in one OCT.
const (
	MicroPerOCT = 1_000_000
	OCTDecimals = 6
)

// Amount is an OCT quantity counted in micro units.
type Amount int64

// OCT converts a whole number of OCT to an Amount.
func OCT(n int64) Amount {
	return Amount(n * MicroPerOCT)
}

// ParseAmount converts a decimal string like "12.5" to micro units without float rounding.
// Scientific notation is accepted under the same six-decimal limit.
func ParseAmount(s string) (Amount, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, fmt.Errorf("empty amount")
	}
	body, negative := raw, false
	switch body[0] {
	case '-':
		negative = true
		body = body[1:]
	case '+':
		body = body[1:]
	}
	mantissa, exponent, scientific := strings.Cut(strings.ToLower(body), "e")
	whole, frac, _ := strings.Cut(mantissa, ".")
	if !isDigits(whole) || !isDigits(frac) || (whole == "" && frac == "") {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	if scientific {
		var err error
		whole, frac, err = shiftPoint(whole, frac, exponent)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q", raw)
		}
	}
	if len(frac) > OCTDecimals {
		return 0, fmt.Errorf("amount %q has more than %d decimals", raw, OCTDecimals)
	}
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w > math.MaxInt64/MicroPerOCT {
		return 0, fmt.Errorf("amount %q overflows", raw)
	}
	var f int64
	if frac != "" {
		f, err = strconv.ParseInt(frac+strings.Repeat("0", OCTDecimals-len(frac)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q", raw)
		}
	}
	v := Amount(w*MicroPerOCT + f)
	if negative {
		v = -v
	}
	return v, nil
}

// maxExponent bounds the digit strings shiftPoint builds; anything larger overflows int64 anyway.
const maxExponent = 64

// shiftPoint moves the decimal point of whole.frac by exponent places. Trailing fractional
// zeros are dropped so "1.50e0" still fits six decimals. Nodes render tiny balances as 1e-06.
func shiftPoint(whole, frac, exponent string) (string, string, error) {
	exp, err := strconv.Atoi(exponent)
	if err != nil || exp > maxExponent || exp < -maxExponent {
		return "", "", fmt.Errorf("invalid exponent %q", exponent)
	}
	digits := whole + frac
	point := len(whole) + exp
	switch {
	case point <= 0:
		whole, frac = "", strings.Repeat("0", -point)+digits
	case point >= len(digits):
		whole, frac = digits+strings.Repeat("0", point-len(digits)), ""
	default:
		whole, frac = digits[:point], digits[point:]
	}
	return strings.TrimLeft(whole, "0"), strings.TrimRight(frac, "0"), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Micro returns the raw micro unit count.
func (a Amount) Micro() int64 {
	return int64(a)
}

func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%06d", sign, v/MicroPerOCT, v%MicroPerOCT)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts both "1.5" and 1.5.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	v, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

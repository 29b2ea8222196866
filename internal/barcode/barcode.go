// Package barcode resolves scanned or typed input into a product code and
// quantity before the cart is touched.
//
// Three input shapes are recognized:
//
//   - 13-digit scale labels printed by a weighing scale. The label carries
//     a fixed prefix, a 5-digit product code, and the total price of the
//     weighed item in minor units; the quantity is implied by the price.
//   - "N*CODE" multiplier syntax, where N is a decimal quantity.
//   - Anything else, treated as a literal product code or name prefix.
package barcode

import (
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

const (
	// ScalePrefix is the first digit of every in-store scale label.
	ScalePrefix = '2'
	// scaleLabelLen is the full EAN-13 length of a scale label.
	scaleLabelLen = 13
	// MultiplierSeparator splits quantity from code in typed input.
	MultiplierSeparator = "*"
)

// ErrBadMultiplier is returned for multiplier input with a non-positive or
// unparseable quantity.
var ErrBadMultiplier = errors.New("invalid quantity multiplier")

// Kind discriminates how the input was interpreted.
type Kind int

const (
	// KindCode is a literal product code or name-prefix query.
	KindCode Kind = iota
	// KindScaleLabel is a price-embedded scale label.
	KindScaleLabel
	// KindMultiplied is a code with an explicit quantity multiplier.
	KindMultiplied
)

// ScanResult is the parsed form of one scan or keyboard entry.
type ScanResult struct {
	Kind Kind
	// Code is the product code to resolve against the catalog.
	Code string
	// Quantity is the explicit multiplier for KindMultiplied; ignored otherwise.
	Quantity decimal.Decimal
	// LabelPriceMinor is the printed total price for KindScaleLabel.
	LabelPriceMinor int64
}

// Parse classifies raw input. It never fails for plain codes; only
// malformed multiplier input returns an error.
func Parse(input string) (ScanResult, error) {
	input = strings.TrimSpace(input)

	if qty, code, ok := strings.Cut(input, MultiplierSeparator); ok {
		quantity, err := decimal.NewFromString(strings.TrimSpace(qty))
		if err != nil || !quantity.IsPositive() {
			return ScanResult{}, ErrBadMultiplier
		}
		return ScanResult{
			Kind:     KindMultiplied,
			Code:     strings.TrimSpace(code),
			Quantity: quantity,
		}, nil
	}

	if isScaleLabel(input) {
		price, err := strconv.ParseInt(input[6:11], 10, 64)
		if err == nil {
			return ScanResult{
				Kind:            KindScaleLabel,
				Code:            input[1:6],
				LabelPriceMinor: price,
			}, nil
		}
	}

	return ScanResult{Kind: KindCode, Code: input}, nil
}

// WeighedQuantity derives the quantity implied by a scale label:
// labelPrice / unitPrice, rounded to 4 decimal places. A label price of
// 50045 on a product priced 2000/kg resolves to 25.0225 kg.
func WeighedQuantity(labelPriceMinor, unitPriceMinor int64) decimal.Decimal {
	return decimal.NewFromInt(labelPriceMinor).
		Div(decimal.NewFromInt(unitPriceMinor)).
		Round(4)
}

// isScaleLabel reports whether input is a 13-digit code with the scale
// prefix. All characters must be digits.
func isScaleLabel(input string) bool {
	if len(input) != scaleLabelLen || input[0] != ScalePrefix {
		return false
	}
	for i := range len(input) {
		if input[i] < '0' || input[i] > '9' {
			return false
		}
	}
	return true
}

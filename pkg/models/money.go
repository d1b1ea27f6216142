package models

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DefaultCurrencyLabel is appended to formatted amounts.
const DefaultCurrencyLabel = "IQD"

var moneyPrinter = message.NewPrinter(language.English)

// FormatMoney renders an amount with thousands separators and a currency label.
// Zero and negative amounts render as zero.
func FormatMoney(amount decimal.Decimal, label string) string {
	if label == "" {
		label = DefaultCurrencyLabel
	}
	if !amount.IsPositive() {
		return "0 " + label
	}
	return moneyPrinter.Sprint(number.Decimal(amount.InexactFloat64(), number.MaxFractionDigits(2))) + " " + label
}

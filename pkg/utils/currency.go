package utils

import (
	"fmt"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// CurrencyFormatter renders amounts in a single currency for a single locale.
type CurrencyFormatter struct {
	tag  language.Tag
	unit currency.Unit
}

func NewCurrencyFormatter(locale, code string) (*CurrencyFormatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("invalid currency %q: %w", code, err)
	}
	return &CurrencyFormatter{tag: tag, unit: unit}, nil
}

func (f *CurrencyFormatter) Format(amount float64) string {
	return message.NewPrinter(f.tag).Sprint(currency.Symbol(f.unit.Amount(amount)))
}

func (f *CurrencyFormatter) Code() string {
	return f.unit.String()
}

func (f *CurrencyFormatter) Locale() language.Tag {
	return f.tag
}

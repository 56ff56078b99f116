package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Amount represents a monetary amount
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// NewAmount builds an Amount from a decimal, fixed to two places.
func NewAmount(d decimal.Decimal, currency string) Amount {
	return Amount{Value: d.StringFixed(2), Currency: currency}
}

// ToMoney converts the amount into minor units of its currency.
func (a *Amount) ToMoney() *money.Money {
	currency := money.GetCurrency(a.Currency)
	fraction := 2
	if currency != nil {
		fraction = currency.Fraction
	}

	value := strings.TrimSpace(a.Value)
	// the bank may send exponent forms such as 1.5E3
	if d, err := decimal.NewFromString(value); err == nil {
		value = d.String()
	}
	negative := strings.HasPrefix(value, "-")
	value = strings.TrimPrefix(value, "-")

	split := strings.Split(value, ".")
	if len(split) == 1 {
		split = append(split, "")
	}
	if len(split[1]) < fraction {
		split[1] += strings.Repeat("0", fraction-len(split[1]))
	} else {
		split[1] = split[1][:fraction]
	}
	intTranslation, err := strconv.ParseInt(strings.Join(split[:2], ""), 10, 64)
	if err != nil {
		panic(fmt.Sprintf("failed to parse amount: original split %v: %v", split, err))
	}
	if negative {
		intTranslation = -intTranslation
	}
	return money.New(intTranslation, a.Currency)
}

// Display formats the amount with the currency conventions of go-money. Invalid
// values are returned as-is.
func (a *Amount) Display() string {
	if _, err := decimal.NewFromString(a.Value); err != nil {
		return strings.TrimSpace(a.Value + " " + a.Currency)
	}
	return a.ToMoney().Display()
}

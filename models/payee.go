package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

type PayeeKind string

const (
	PayeeKindVendor PayeeKind = "vendor"
	PayeeKindBroker PayeeKind = "broker"
)

func ParsePayeeKind(s string) (PayeeKind, error) {
	switch PayeeKind(s) {
	case PayeeKindVendor, PayeeKindBroker:
		return PayeeKind(s), nil
	}
	return "", fmt.Errorf("unknown payee kind %q", s)
}

type BankDetails struct {
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	IFSCCode      string `json:"ifsc_code"`
}

// Payee is a vendor or broker eligible for settlement. Identity is
// server-assigned; this client only reads it.
type Payee struct {
	ID           int          `json:"id"`
	Kind         PayeeKind    `json:"kind"`
	DisplayName  string       `json:"display_name"`
	ContactEmail string       `json:"contact_email"`
	ContactPhone string       `json:"contact_phone"`
	BankDetails  *BankDetails `json:"bank_details,omitempty"`

	// BrokeragePercentage is only meaningful for brokers; zero for vendors.
	BrokeragePercentage decimal.Decimal `json:"brokerage_percentage"`
}

// NormalizedPhone returns the payee's contact phone in E.164, defaulting the
// region to IN when the number carries no country code. Returns the raw
// string unchanged when it does not parse as a phone number at all.
func (p Payee) NormalizedPhone() string {
	raw := strings.TrimSpace(p.ContactPhone)
	if raw == "" {
		return ""
	}
	num, err := libphonenumber.Parse(raw, "IN")
	if err != nil {
		return raw
	}
	return libphonenumber.Format(num, libphonenumber.E164)
}

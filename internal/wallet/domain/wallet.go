// Package domain holds the wallet-facing models. All amounts are minor
// units (kobo); the backend computes balances and receipts, the client only
// renders them.
package domain

import "time"

// UserDetails is the extended profile behind GET /user/me.
type UserDetails struct {
	UserID        string `json:"userId"`
	Email         string `json:"email"`
	FullName      string `json:"fullName"`
	PhoneNumber   string `json:"phoneNumber"`
	Username      string `json:"username"`
	Tier          string `json:"tier"`
	EmailVerified bool   `json:"emailVerified"`
	HasPin        bool   `json:"hasPin"`
}

// Balance is the wallet balance snapshot.
type Balance struct {
	Available int64  `json:"available"`
	Pending   int64  `json:"pending"`
	Currency  string `json:"currency"`
}

// Transaction is one ledger entry.
type Transaction struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // funding, airtime, data, tv, electricity
	Amount    int64     `json:"amount"`
	Status    string    `json:"status"`
	Reference string    `json:"reference"`
	CreatedAt time.Time `json:"createdAt"`
}

// AirtimeRequest buys airtime for a phone number.
type AirtimeRequest struct {
	Network     string `json:"network"`
	PhoneNumber string `json:"phoneNumber"`
	Amount      int64  `json:"amount"`
	Pin         string `json:"pin"`
}

// DataRequest buys a data bundle.
type DataRequest struct {
	Network     string `json:"network"`
	PhoneNumber string `json:"phoneNumber"`
	PlanCode    string `json:"planCode"`
	Pin         string `json:"pin"`
}

// TVRequest pays a TV subscription.
type TVRequest struct {
	Provider  string `json:"provider"`
	SmartCard string `json:"smartCard"`
	PackageID string `json:"packageId"`
	Pin       string `json:"pin"`
}

// ElectricityRequest pays an electricity bill.
type ElectricityRequest struct {
	Disco       string `json:"disco"`
	MeterNumber string `json:"meterNumber"`
	MeterType   string `json:"meterType"` // prepaid, postpaid
	Amount      int64  `json:"amount"`
	Pin         string `json:"pin"`
}

// FundRequest initiates a wallet top-up.
type FundRequest struct {
	Amount  int64  `json:"amount"`
	Channel string `json:"channel"` // card, transfer, ussd
}

// Receipt is the backend's confirmation of a purchase or funding.
type Receipt struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Token     string `json:"token,omitempty"` // prepaid electricity token when applicable
}

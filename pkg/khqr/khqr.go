// Package khqr builds and decodes KHQR payment payloads: the EMVCo
// merchant-presented tag-length-value string used by the Bakong scheme,
// closed by a CRC-16/CCITT checksum.
package khqr

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	tagPayloadFormat     = "00"
	tagPointOfInitiation = "01"
	tagMerchantAccount   = "29"
	tagMCC               = "52"
	tagCurrency          = "53"
	tagAmount            = "54"
	tagCountry           = "58"
	tagMerchantName      = "59"
	tagMerchantCity      = "60"
	tagAdditionalData    = "62"
	tagTimestamp         = "99"
	tagCRC               = "63"

	subAccountID     = "00"
	subAccountInfo   = "01"
	subAcquiringBank = "02"

	subBillNumber    = "01"
	subMobileNumber  = "02"
	subStoreLabel    = "03"
	subTerminalLabel = "07"

	subCreationMillis = "00"

	pointOfInitiationStatic  = "11"
	pointOfInitiationDynamic = "12"

	CurrencyKHR = "KHR"
	CurrencyUSD = "USD"

	currencyCodeKHR = "116"
	currencyCodeUSD = "840"

	defaultMCC  = "5999"
	defaultCity = "Phnom Penh"

	maxPayloadLength = 512
)

var (
	ErrInvalidAccount  = errors.New("khqr: invalid bakong account id")
	ErrInvalidMerchant = errors.New("khqr: invalid merchant name")
	ErrInvalidCurrency = errors.New("khqr: currency must be KHR or USD")
	ErrInvalidAmount   = errors.New("khqr: invalid amount")
	ErrFieldTooLong    = errors.New("khqr: field exceeds maximum length")
	ErrPayloadTooLong  = errors.New("khqr: payload exceeds 512 characters")
)

// Options describe one individual-account QR. Amount zero produces a
// static QR; anything positive a dynamic one.
type Options struct {
	AccountID     string // e.g. "merchant@bank"
	MerchantName  string
	MerchantCity  string
	AcquiringBank string
	AccountInfo   string
	MCC           string
	Currency      string
	Amount        float64
	BillNumber    string
	MobileNumber  string
	StoreLabel    string
	TerminalLabel string
	// Timestamp overrides the tag-99 creation time. Zero means now.
	Timestamp time.Time
}

// QR is a built payload plus its lookup fingerprints.
type QR struct {
	Payload string
}

func (q *QR) String() string { return q.Payload }

// MD5 is the primary settlement-lookup key for this QR.
func (q *QR) MD5() string {
	sum := md5.Sum([]byte(q.Payload))
	return hex.EncodeToString(sum[:])
}

// ShortHash is the fallback lookup key: the first 8 hex chars of the MD5.
func (q *QR) ShortHash() string {
	return q.MD5()[:8]
}

// Build encodes the options into a KHQR payload.
func Build(opts Options) (*QR, error) {
	if err := validate(&opts); err != nil {
		return nil, err
	}

	var b strings.Builder
	writeTLV(&b, tagPayloadFormat, "01")

	initiation := pointOfInitiationStatic
	if opts.Amount > 0 {
		initiation = pointOfInitiationDynamic
	}
	writeTLV(&b, tagPointOfInitiation, initiation)

	var account strings.Builder
	writeTLV(&account, subAccountID, opts.AccountID)
	if opts.AccountInfo != "" {
		writeTLV(&account, subAccountInfo, opts.AccountInfo)
	}
	if opts.AcquiringBank != "" {
		writeTLV(&account, subAcquiringBank, opts.AcquiringBank)
	}
	if account.Len() > 99 {
		return nil, fmt.Errorf("%w: merchant account template", ErrFieldTooLong)
	}
	writeTLV(&b, tagMerchantAccount, account.String())

	writeTLV(&b, tagMCC, opts.MCC)
	writeTLV(&b, tagCurrency, currencyCode(opts.Currency))

	if opts.Amount > 0 {
		amt, err := FormatAmount(opts.Amount, opts.Currency)
		if err != nil {
			return nil, err
		}
		writeTLV(&b, tagAmount, amt)
	}

	writeTLV(&b, tagCountry, "KH")
	writeTLV(&b, tagMerchantName, opts.MerchantName)
	writeTLV(&b, tagMerchantCity, opts.MerchantCity)

	var extra strings.Builder
	if opts.BillNumber != "" {
		writeTLV(&extra, subBillNumber, opts.BillNumber)
	}
	if opts.MobileNumber != "" {
		writeTLV(&extra, subMobileNumber, opts.MobileNumber)
	}
	if opts.StoreLabel != "" {
		writeTLV(&extra, subStoreLabel, opts.StoreLabel)
	}
	if opts.TerminalLabel != "" {
		writeTLV(&extra, subTerminalLabel, opts.TerminalLabel)
	}
	if extra.Len() > 99 {
		return nil, fmt.Errorf("%w: additional data template", ErrFieldTooLong)
	}
	if extra.Len() > 0 {
		writeTLV(&b, tagAdditionalData, extra.String())
	}

	ts := opts.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	var stamp strings.Builder
	writeTLV(&stamp, subCreationMillis, fmt.Sprintf("%d", ts.UnixMilli()))
	writeTLV(&b, tagTimestamp, stamp.String())

	payload := b.String() + tagCRC + "04"
	payload += fmt.Sprintf("%04X", crc16([]byte(payload)))

	// Unreachable with the current field caps; backstop for new tags.
	// Decode enforces the same limit on inbound payloads.
	if len(payload) > maxPayloadLength {
		return nil, ErrPayloadTooLong
	}
	return &QR{Payload: payload}, nil
}

// FormatAmount renders an amount per the scheme's currency rules:
// KHR must be a whole number, USD allows at most two decimal places.
func FormatAmount(amount float64, currency string) (string, error) {
	if amount <= 0 {
		return "", ErrInvalidAmount
	}
	d := decimal.NewFromFloat(amount)
	switch currency {
	case CurrencyKHR:
		if !d.Equal(d.Truncate(0)) {
			return "", fmt.Errorf("%w: KHR amounts must be whole numbers", ErrInvalidAmount)
		}
		return d.StringFixed(0), nil
	case CurrencyUSD:
		if !d.Equal(d.Truncate(2)) {
			return "", fmt.Errorf("%w: USD amounts allow at most two decimals", ErrInvalidAmount)
		}
		return d.StringFixed(2), nil
	default:
		return "", ErrInvalidCurrency
	}
}

func currencyCode(currency string) string {
	if currency == CurrencyUSD {
		return currencyCodeUSD
	}
	return currencyCodeKHR
}

func validate(opts *Options) error {
	if opts.AccountID == "" || len(opts.AccountID) > 32 || !strings.Contains(opts.AccountID, "@") {
		return ErrInvalidAccount
	}
	if opts.MerchantName == "" || len(opts.MerchantName) > 25 {
		return ErrInvalidMerchant
	}
	if opts.Currency != CurrencyKHR && opts.Currency != CurrencyUSD {
		return ErrInvalidCurrency
	}
	if opts.MCC == "" {
		opts.MCC = defaultMCC
	}
	if opts.MerchantCity == "" {
		opts.MerchantCity = defaultCity
	}
	if len(opts.MerchantCity) > 15 {
		return fmt.Errorf("%w: merchant city", ErrFieldTooLong)
	}
	for _, f := range []struct{ name, value string }{
		{"bill number", opts.BillNumber},
		{"mobile number", opts.MobileNumber},
		{"store label", opts.StoreLabel},
		{"terminal label", opts.TerminalLabel},
		{"acquiring bank", opts.AcquiringBank},
	} {
		if len(f.value) > 25 {
			return fmt.Errorf("%w: %s", ErrFieldTooLong, f.name)
		}
	}
	return nil
}

func writeTLV(b *strings.Builder, tag, value string) {
	fmt.Fprintf(b, "%s%02d%s", tag, len(value), value)
}

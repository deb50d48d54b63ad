package khqr

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOptions() Options {
	return Options{
		AccountID:    "demo_merchant@devb",
		MerchantName: "Demo Merchant",
		Currency:     CurrencyUSD,
		Amount:       1.50,
		BillNumber:   "INV-001",
		Timestamp:    time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBuildDynamicQR(t *testing.T) {
	qr, err := Build(validOptions())
	require.NoError(t, err)

	payload := qr.String()
	assert.True(t, strings.HasPrefix(payload, "000201"), "payload format indicator")
	assert.Contains(t, payload, "010212", "dynamic point of initiation")
	assert.Contains(t, payload, "5303840", "USD currency code")
	assert.Contains(t, payload, "54041.50", "amount tag")
	assert.Contains(t, payload, "5802KH", "country code")
	assert.Contains(t, payload, "5913Demo Merchant")
	assert.Contains(t, payload, "6010Phnom Penh", "default city")
	assert.Regexp(t, `6304[0-9A-F]{4}$`, payload, "CRC closes the payload")
}

func TestBuildStaticQR(t *testing.T) {
	opts := validOptions()
	opts.Amount = 0
	opts.Currency = CurrencyKHR

	qr, err := Build(opts)
	require.NoError(t, err)
	assert.Contains(t, qr.String(), "010211", "static point of initiation")
	assert.Contains(t, qr.String(), "5303116", "KHR currency code")
	assert.NotContains(t, qr.String(), "5404", "no amount tag on static QR")
}

func TestBuildValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Options)
		want   error
	}{
		{"missing account", func(o *Options) { o.AccountID = "" }, ErrInvalidAccount},
		{"account without @", func(o *Options) { o.AccountID = "nobank" }, ErrInvalidAccount},
		{"account too long", func(o *Options) { o.AccountID = strings.Repeat("a", 30) + "@bank" }, ErrInvalidAccount},
		{"missing merchant name", func(o *Options) { o.MerchantName = "" }, ErrInvalidMerchant},
		{"merchant name too long", func(o *Options) { o.MerchantName = strings.Repeat("x", 26) }, ErrInvalidMerchant},
		{"bad currency", func(o *Options) { o.Currency = "EUR" }, ErrInvalidCurrency},
		{"city too long", func(o *Options) { o.MerchantCity = strings.Repeat("x", 16) }, ErrFieldTooLong},
		{"bill number too long", func(o *Options) { o.BillNumber = strings.Repeat("9", 26) }, ErrFieldTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := validOptions()
			tc.mutate(&opts)
			_, err := Build(opts)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFormatAmount(t *testing.T) {
	got, err := FormatAmount(15000, CurrencyKHR)
	require.NoError(t, err)
	assert.Equal(t, "15000", got)

	got, err = FormatAmount(1.5, CurrencyUSD)
	require.NoError(t, err)
	assert.Equal(t, "1.50", got)

	got, err = FormatAmount(10.25, CurrencyUSD)
	require.NoError(t, err)
	assert.Equal(t, "10.25", got)

	_, err = FormatAmount(1.5, CurrencyKHR)
	assert.ErrorIs(t, err, ErrInvalidAmount, "fractional KHR")

	_, err = FormatAmount(1.999, CurrencyUSD)
	assert.ErrorIs(t, err, ErrInvalidAmount, "three decimals")

	_, err = FormatAmount(-1, CurrencyUSD)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = FormatAmount(1, "EUR")
	assert.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestFingerprints(t *testing.T) {
	qr, err := Build(validOptions())
	require.NoError(t, err)

	md5 := qr.MD5()
	assert.Len(t, md5, 32)
	assert.Equal(t, md5[:8], qr.ShortHash())
	assert.Equal(t, md5, qr.MD5(), "fingerprint is stable")

	// A different amount must produce a different fingerprint.
	opts := validOptions()
	opts.Amount = 2.50
	other, err := Build(opts)
	require.NoError(t, err)
	assert.NotEqual(t, md5, other.MD5())
}

func TestDecodeRoundTrip(t *testing.T) {
	opts := validOptions()
	opts.StoreLabel = "Main Branch"
	qr, err := Build(opts)
	require.NoError(t, err)

	d, err := Decode(qr.String())
	require.NoError(t, err)
	assert.Equal(t, "demo_merchant@devb", d.AccountID)
	assert.Equal(t, "Demo Merchant", d.MerchantName)
	assert.Equal(t, "Phnom Penh", d.MerchantCity)
	assert.Equal(t, CurrencyUSD, d.Currency)
	assert.Equal(t, "1.50", d.Amount)
	assert.Equal(t, "INV-001", d.BillNumber)
	assert.True(t, d.Dynamic)
	assert.Equal(t, opts.Timestamp.UnixMilli(), d.CreatedAt.UnixMilli())
}

func TestDecodeRejectsTamperedPayload(t *testing.T) {
	qr, err := Build(validOptions())
	require.NoError(t, err)

	payload := qr.String()
	// Flip one character inside the amount.
	tampered := strings.Replace(payload, "54041.50", "54049.50", 1)
	require.NotEqual(t, payload, tampered)

	_, err = Decode(tampered)
	assert.ErrorIs(t, err, ErrBadChecksum)
}

func TestDecodeRejectsBadLengthBytes(t *testing.T) {
	// CRC-valid payloads whose TLV length field is not two digits must
	// error, not slice out of bounds.
	for _, body := range []string{"00-1", "00+5", "00ab"} {
		t.Run(body, func(t *testing.T) {
			payload := body + "6304"
			payload += fmt.Sprintf("%04X", crc16([]byte(payload)))

			_, err := Decode(payload)
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestDecodeRejectsOversizedPayload(t *testing.T) {
	_, err := Decode(strings.Repeat("0", maxPayloadLength+1))
	assert.ErrorIs(t, err, ErrPayloadTooLong)
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	qr, err := Build(validOptions())
	require.NoError(t, err)

	_, err = Decode(qr.String()[:20])
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = Decode("")
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

package khqr

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	ErrMalformedPayload = errors.New("khqr: malformed payload")
	ErrBadChecksum      = errors.New("khqr: checksum mismatch")
)

// Decoded is the parsed view of a KHQR payload. Tags holds every
// top-level tag verbatim; the named fields cover what callers actually
// inspect.
type Decoded struct {
	Tags map[string]string

	AccountID    string
	MerchantName string
	MerchantCity string
	Currency     string
	Amount       string
	BillNumber   string
	Dynamic      bool
	CreatedAt    time.Time
}

// Decode parses a payload and verifies its CRC.
func Decode(payload string) (*Decoded, error) {
	if len(payload) < 12 {
		return nil, ErrMalformedPayload
	}
	if len(payload) > maxPayloadLength {
		return nil, ErrPayloadTooLong
	}
	if err := verifyCRC(payload); err != nil {
		return nil, err
	}

	tags, err := parseTLV(payload)
	if err != nil {
		return nil, err
	}

	d := &Decoded{
		Tags:         tags,
		MerchantName: tags[tagMerchantName],
		MerchantCity: tags[tagMerchantCity],
		Amount:       tags[tagAmount],
		Dynamic:      tags[tagPointOfInitiation] == pointOfInitiationDynamic,
	}

	switch tags[tagCurrency] {
	case currencyCodeKHR:
		d.Currency = CurrencyKHR
	case currencyCodeUSD:
		d.Currency = CurrencyUSD
	}

	if account, ok := tags[tagMerchantAccount]; ok {
		subs, err := parseTLV(account)
		if err != nil {
			return nil, fmt.Errorf("%w: merchant account template", ErrMalformedPayload)
		}
		d.AccountID = subs[subAccountID]
	}
	if extra, ok := tags[tagAdditionalData]; ok {
		subs, err := parseTLV(extra)
		if err != nil {
			return nil, fmt.Errorf("%w: additional data template", ErrMalformedPayload)
		}
		d.BillNumber = subs[subBillNumber]
	}
	if stamp, ok := tags[tagTimestamp]; ok {
		if subs, err := parseTLV(stamp); err == nil {
			if ms, err := strconv.ParseInt(subs[subCreationMillis], 10, 64); err == nil {
				d.CreatedAt = time.UnixMilli(ms)
			}
		}
	}
	return d, nil
}

func verifyCRC(payload string) error {
	// The CRC tag must close the payload: "6304" + 4 hex chars.
	if len(payload) < 8 || payload[len(payload)-8:len(payload)-4] != tagCRC+"04" {
		return ErrMalformedPayload
	}
	want, err := strconv.ParseUint(payload[len(payload)-4:], 16, 16)
	if err != nil {
		return ErrMalformedPayload
	}
	if crc16([]byte(payload[:len(payload)-4])) != uint16(want) {
		return ErrBadChecksum
	}
	return nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func parseTLV(s string) (map[string]string, error) {
	tags := make(map[string]string)
	for i := 0; i < len(s); {
		if i+4 > len(s) {
			return nil, ErrMalformedPayload
		}
		tag := s[i : i+2]
		// Length must be two digits; Atoi alone would accept "-1" and
		// turn the bounds check below into a no-op.
		if !isDigit(s[i+2]) || !isDigit(s[i+3]) {
			return nil, ErrMalformedPayload
		}
		length, err := strconv.Atoi(s[i+2 : i+4])
		if err != nil {
			return nil, ErrMalformedPayload
		}
		if i+4+length > len(s) {
			return nil, ErrMalformedPayload
		}
		tags[tag] = s[i+4 : i+4+length]
		i += 4 + length
	}
	return tags, nil
}

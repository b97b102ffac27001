package utils

import (
	"errors"

	"github.com/ttacon/libphonenumber"
)

var ErrInvalidPhone = errors.New("not a valid phone number")

// NormalizePhone parses a customer phone number and formats it as E.164.
// Numbers without a country code are read in defaultRegion.
func NormalizePhone(raw, defaultRegion string) (string, error) {
	num, err := libphonenumber.Parse(raw, defaultRegion)
	if err != nil {
		return "", err
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", ErrInvalidPhone
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}

package contacts

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// NormalizePhone returns the E.164 form of phone, parsed with region as the
// default country. Numbers that cannot be parsed are returned trimmed.
func NormalizePhone(phone, region string) (string, bool) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", false
	}
	if region == "" {
		region = "US"
	}
	num, err := phonenumbers.Parse(phone, strings.ToUpper(region))
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return phone, false
	}
	return phonenumbers.Format(num, phonenumbers.E164), true
}

// Prepare normalizes phone numbers and drops contacts without a number and
// repeated numbers, keeping the first occurrence. A repeat flagged do-not-call
// marks the kept entry do-not-call too.
func Prepare(in []Contact, region string) []Contact {
	out := make([]Contact, 0, len(in))
	seen := make(map[string]int, len(in))
	for _, c := range in {
		phone, _ := NormalizePhone(c.Phone, region)
		if phone == "" {
			continue
		}
		c.Phone = phone
		c.Name = strings.TrimSpace(c.Name)
		c.Email = strings.TrimSpace(c.Email)
		if i, dup := seen[phone]; dup {
			if c.DoNotCall {
				out[i].DoNotCall = true
			}
			continue
		}
		seen[phone] = len(out)
		out = append(out, c)
	}
	return out
}

package payment

import "strings"

// validPhone checks the provider's subscriber number format: digits only,
// country-code prefixed, fixed length (default 254 + 9 digits, e.g.
// 254712345678). Spaces are tolerated and stripped before checking.
func validPhone(raw, prefix string, length int) (string, bool) {
	phone := strings.ReplaceAll(raw, " ", "")
	if len(phone) != length || !strings.HasPrefix(phone, prefix) {
		return "", false
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return phone, true
}

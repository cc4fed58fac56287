package bytes

import (
	"golang.org/x/text/encoding/unicode"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// ConvertToUtf16 converts a UTF-8 string to UTF-16 LE and returns it as a slice of bytes.
func ConvertToUtf16(str string) []byte {
	encoded, err := utf16le.NewEncoder().Bytes([]byte(str))
	if err != nil {
		// The encoder only fails on invalid UTF-8, which our config strings can't be.
		return []byte{}
	}
	return encoded
}

// ConvertFromUtf16 decodes a UTF-16 LE byte slice back into a UTF-8 string.
func ConvertFromUtf16(b []byte) string {
	decoded, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(decoded)
}

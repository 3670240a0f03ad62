package eml

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"

	"github.com/otherjamesbrown/mailtriage/pkg/patterns"
)

func lookupCharset(charset string) (encoding.Encoding, bool) {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(charset), `"`)) {
	case "iso-8859-1", "latin1", "iso_8859-1":
		return charmap.ISO8859_1, true
	case "iso-8859-2", "latin2":
		return charmap.ISO8859_2, true
	case "iso-8859-15", "latin9":
		return charmap.ISO8859_15, true
	case "windows-1252", "cp1252":
		return charmap.Windows1252, true
	case "windows-1251", "cp1251":
		return charmap.Windows1251, true
	case "koi8-r":
		return charmap.KOI8R, true
	case "gb2312", "gbk", "gb18030":
		return simplifiedchinese.GBK, true
	case "big5":
		return traditionalchinese.Big5, true
	case "euc-jp":
		return japanese.EUCJP, true
	case "iso-2022-jp":
		return japanese.ISO2022JP, true
	case "shift_jis", "shift-jis", "sjis":
		return japanese.ShiftJIS, true
	case "euc-kr":
		return korean.EUCKR, true
	}
	return nil, false
}

func isUTF8Compatible(charset string) bool {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return true
	}
	return false
}

// decodeCharset converts data from charset to UTF-8. Unknown charsets are
// returned unchanged together with an error the caller records as a warning.
func decodeCharset(data []byte, charset string) ([]byte, error) {
	if isUTF8Compatible(charset) {
		return data, nil
	}

	enc, ok := lookupCharset(charset)
	if !ok {
		return data, fmt.Errorf("unknown charset: %s", charset)
	}

	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return data, fmt.Errorf("charset decoding failed: %w", err)
	}
	return out, nil
}

var wordDecoder = &mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		enc, ok := lookupCharset(charset)
		if !ok {
			return nil, fmt.Errorf("unknown charset: %s", charset)
		}
		return transform.NewReader(input, enc.NewDecoder()), nil
	},
}

// decodeHeaderValue unfolds a raw header value and decodes RFC 2047 encoded-words.
func decodeHeaderValue(raw string) string {
	unfolded := patterns.Get().HeaderFold.ReplaceAllString(raw, " ")
	unfolded = strings.TrimSpace(unfolded)

	decoded, err := wordDecoder.DecodeHeader(unfolded)
	if err != nil {
		return unfolded
	}
	return decoded
}

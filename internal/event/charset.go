package event

import (
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"

	"github.com/SisyphusSQ/binrepl/internal/schema"
)

// MySQL's latin1 is cp1252, not ISO-8859-1.
var charsetDecoders = map[string]encoding.Encoding{
	"latin1":  charmap.Windows1252,
	"latin2":  charmap.ISO8859_2,
	"greek":   charmap.ISO8859_7,
	"hebrew":  charmap.ISO8859_8,
	"cp1250":  charmap.Windows1250,
	"cp1251":  charmap.Windows1251,
	"cp1256":  charmap.Windows1256,
	"cp1257":  charmap.Windows1257,
	"koi8r":   charmap.KOI8R,
	"koi8u":   charmap.KOI8U,
	"gbk":     simplifiedchinese.GBK,
	"gb2312":  simplifiedchinese.GBK,
	"gb18030": simplifiedchinese.GB18030,
	"ucs2":    unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
	"utf16":   unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
	"utf16le": unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
}

// decodeText turns column bytes into a string value, or keeps them as bytes
// for binary columns.
func decodeText(col *schema.ColumnDescriptor, b []byte) Value {
	if col.Binary() {
		return BytesValue(b)
	}

	cs := strings.ToLower(col.Charset)
	if enc, ok := charsetDecoders[cs]; ok {
		s, err := enc.NewDecoder().Bytes(b)
		if err == nil {
			return StringValue(string(s))
		}
	}
	return StringValue(string(b))
}

// isTextBlob reports whether a BLOB-typed column is really TEXT.
func isTextBlob(col *schema.ColumnDescriptor) bool {
	return col.Charset != "" && !col.Binary()
}

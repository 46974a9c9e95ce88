package gnssflash

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

// TextCodec converts between Go strings and a narrow byte representation in
// an explicitly chosen character encoding.
type TextCodec struct {
	Name     string
	Encoding encoding.Encoding
}

var codecs = []TextCodec{
	{Name: "utf-8", Encoding: unicode.UTF8},
	{Name: "utf-16le", Encoding: unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)},
	{Name: "utf-16be", Encoding: unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)},
	{Name: "gbk", Encoding: simplifiedchinese.GBK},
	{Name: "gb18030", Encoding: simplifiedchinese.GB18030},
	{Name: "windows-1252", Encoding: charmap.Windows1252},
	{Name: "iso-8859-1", Encoding: charmap.ISO8859_1},
}

/*
 * @Description: 按名称查找字符编码
 * @param name 编码名称，不区分大小写
 * @return TextCodec
 * @return error
 */
func LookupCodec(name string) (TextCodec, error) {
	for _, codec := range codecs {
		if StrCompare(codec.Name, name, false) {
			return codec, nil
		}
	}
	return TextCodec{}, fmt.Errorf("%w: unknown charset %q", ErrInvalidConfig, name)
}

// Narrow encodes s into the codec's byte representation.
func (c TextCodec) Narrow(s string) ([]byte, error) {
	if s == "" {
		return []byte{}, nil
	}
	out, err := c.Encoding.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.Name, err)
	}
	return out, nil
}

// Widen decodes data from the codec's byte representation. Malformed UTF-8
// is an error rather than a string of replacement characters.
func (c TextCodec) Widen(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	if c.Encoding == unicode.UTF8 && !utf8.Valid(data) {
		return "", fmt.Errorf("decode %s: %w", c.Name, encoding.ErrInvalidUTF8)
	}
	out, err := c.Encoding.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", c.Name, err)
	}
	return string(out), nil
}

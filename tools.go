package gnssflash

import "bytes"

const hexDigits = "0123456789ABCDEF"

// 指令字节及其反码
func commandBytes(command Command) []byte {
	return []byte{byte(command), 0xFF ^ byte(command)}
}

/*
 * @Description: 将协议字节转换为十六进制字符串，用于日志输出
 * @param data
 * @return string 例如 "0A FF 10"
 * @return bool 数据为空时返回false
 */
func HexDump(data []byte) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	buff := make([]byte, 0, len(data)*3-1)
	for index, b := range data {
		if index > 0 {
			buff = append(buff, ' ')
		}
		buff = append(buff, hexDigits[b>>4], hexDigits[b&0x0F])
	}
	return string(buff), true
}

/*
 * @Description: 字符串比较，先比较长度，不区分大小写时按ASCII逐字节转小写比较
 * @param str1
 * @param str2
 * @param caseSensitive 是否区分大小写
 * @return bool
 */
func StrCompare(str1, str2 string, caseSensitive bool) bool {
	if len(str1) != len(str2) {
		return false
	}
	if caseSensitive {
		return str1 == str2
	}
	s1 := make([]byte, len(str1))
	s2 := make([]byte, len(str2))
	for index := 0; index < len(str1); index++ {
		s1[index] = toLower(str1[index])
		s2[index] = toLower(str2[index])
	}
	return bytes.Equal(s1, s2)
}

func toLower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

package gnssflash

/*
 * @Description: 计算数据包校验和（逐字节异或）
 * @param data 负载数据
 * @return byte 空数据返回0；单字节返回其反码，否则为所有字节的异或
 */
func Checksum(data []byte) byte {
	if len(data) == 0 {
		return 0
	}
	result := data[0]

	// 单字节自异或恒为0，DA约定取反码
	if len(data) == 1 {
		return result ^ 0xFF
	}
	for index := 1; index < len(data); index++ {
		result ^= data[index]
	}
	return result
}

package gnssflash

import "fmt"

type Mode int

const (
	ModeDownload Mode = iota // 下载固件
	ModeFormat               // 格式化Flash
	ModeReadBack             // 回读Flash
)

var modeNames = map[Mode]string{
	ModeDownload: "download",
	ModeFormat:   "format",
	ModeReadBack: "readback",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

/*
 * @Description: 解析模式名称，不区分大小写
 * @param name download / format / readback
 * @return Mode
 * @return error
 */
func ParseMode(name string) (Mode, error) {
	for mode, modeName := range modeNames {
		if StrCompare(modeName, name, false) {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, name)
}

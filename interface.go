package gnssflash

import "context"

type Interface interface {
	// 当前模式
	Mode() Mode

	// 根据目标波特率选择DA文件
	DAPath() (string, error)

	// 下载DA并执行当前模式（下载/格式化/回读）
	Run(ctx context.Context) (Result, error)
}

var _ Interface = (*Controller)(nil)

package gnssflash

import (
	"fmt"
	"math/bits"
	"time"
)

// Progress is published after every acknowledged chunk.
type Progress struct {
	// Stage is "da", "download", "format" or "readback"
	Stage string

	// Percent is in [0, 100]
	Percent int

	Bytes int64
	Total int64

	Elapsed time.Duration
}

type ProgressFunc func(Progress)

/*
 * @Description: 计算进度
 * @param now 已传输字节
 * @param total 总字节，为0时返回ErrDegenerateProgress
 * @param maxScale 进度上限
 * @return int 范围 [0, maxScale]
 * @return error
 */
func Percent(now, total int64, maxScale int) (int, error) {
	if total <= 0 {
		return 0, ErrDegenerateProgress
	}
	if maxScale < 0 {
		return 0, fmt.Errorf("%w: negative progress scale %d", ErrInvalidConfig, maxScale)
	}
	if now <= 0 {
		return 0, nil
	}
	if now >= total {
		return maxScale, nil
	}
	hi, lo := bits.Mul64(uint64(now), uint64(maxScale))
	quo, _ := bits.Div64(hi, lo, uint64(total))
	return int(quo), nil
}

// Reporter turns byte counts into Progress values for one session and never
// publishes a percentage lower than one it already published.
type Reporter struct {
	stage   string
	fn      ProgressFunc
	started time.Time
	last    int
}

func NewReporter(stage string, fn ProgressFunc) *Reporter {
	return &Reporter{stage: stage, fn: fn, started: Start()}
}

func (r *Reporter) Update(now, total int64) {
	if r.fn == nil {
		return
	}
	percent, err := Percent(now, total, 100)
	if err != nil {
		return
	}
	if percent < r.last {
		percent = r.last
	}
	r.last = percent
	r.fn(Progress{
		Stage:   r.stage,
		Percent: percent,
		Bytes:   now,
		Total:   total,
		Elapsed: time.Since(r.started),
	})
}

// Done publishes completion for a session that had nothing to transfer.
func (r *Reporter) Done() {
	if r.fn == nil {
		return
	}
	r.last = 100
	r.fn(Progress{Stage: r.stage, Percent: 100, Elapsed: time.Since(r.started)})
}

package gnssflash

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, mode Mode) (Config, []byte) {
	t.Helper()
	dir := t.TempDir()
	agent := pattern(2500)
	cfg := DefaultConfig()
	cfg.Mode = mode
	cfg.DAPaths = map[int]string{
		921600: writeFile(t, dir, "slave_da_921600.bin", agent),
		115200: writeFile(t, dir, "slave_da_115200.bin", agent[:100]),
	}
	cfg.Transfer.ChunkSize = 1000
	cfg.Transfer.AckTimeout = 20 * time.Millisecond
	return cfg, agent
}

func TestControllerDownload(t *testing.T) {
	da := newFakeDA()
	cfg, agent := testConfig(t, ModeDownload)
	image := pattern(5000)
	cfg.ImagePath = writeFile(t, t.TempDir(), "firmware.bin", image)
	cfg.BaseAddress = 0x100

	var stages []string
	controller := NewController(NewLink(da), cfg, WithProgress(func(p Progress) {
		if len(stages) == 0 || stages[len(stages)-1] != p.Stage {
			stages = append(stages, p.Stage)
		}
	}))
	result, err := controller.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CommandWrite, result.Command)
	assert.Equal(t, StateSucceeded, result.State)
	assert.Equal(t, int64(5000), result.Offset)

	assert.Equal(t, 3, da.count(CommandWriteDA))
	assert.Equal(t, 5, da.count(CommandWrite))
	assert.Equal(t, agent, da.written[CommandWriteDA])
	assert.Equal(t, image, da.written[CommandWrite][0x100:])
	assert.Equal(t, []int{921600}, da.bauds)
	assert.Equal(t, []string{"da", "download"}, stages)
	assert.Equal(t, 0, da.lines)
}

func TestControllerSelectsDAByBaud(t *testing.T) {
	da := newFakeDA()
	cfg, agent := testConfig(t, ModeDownload)
	cfg.BaudRate = 115200
	cfg.ImagePath = writeFile(t, t.TempDir(), "firmware.bin", pattern(10))

	path, err := NewController(NewLink(da), cfg).DAPath()
	require.NoError(t, err)
	assert.Equal(t, "slave_da_115200.bin", filepath.Base(path))

	_, err = NewController(NewLink(da), cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, agent[:100], da.written[CommandWriteDA])
	assert.Equal(t, []int{115200}, da.bauds)
}

func TestControllerReadBack(t *testing.T) {
	da := newFakeDA()
	da.memory = pattern(8000)
	cfg, _ := testConfig(t, ModeReadBack)
	cfg.ReadBackPath = filepath.Join(t.TempDir(), "dump.bin")
	cfg.BaseAddress = 0x100
	cfg.Length = 2500

	result, err := NewController(NewLink(da), cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CommandRead, result.Command)
	assert.Equal(t, int64(2500), result.Offset)

	data, err := os.ReadFile(cfg.ReadBackPath)
	require.NoError(t, err)
	assert.Equal(t, da.memory[0x100:0x100+2500], data)
}

func TestControllerFormat(t *testing.T) {
	da := newFakeDA()
	cfg, _ := testConfig(t, ModeFormat)
	cfg.FormatEnabled = true
	cfg.BaseAddress = 0x2000
	cfg.Length = 0x10000

	result, err := NewController(NewLink(da), cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CommandFormat, result.Command)
	require.Equal(t, 1, da.count(CommandFormat))

	packet := da.packets[len(da.packets)-1]
	assert.Equal(t, CommandFormat, packet.Command)
	assert.Equal(t, uint32(0x2000), packet.Address)
	require.Len(t, packet.Payload, 8)
	assert.Equal(t, uint32(0x2000), binary.BigEndian.Uint32(packet.Payload[0:4]))
	assert.Equal(t, uint32(0x10000), binary.BigEndian.Uint32(packet.Payload[4:8]))
}

func TestControllerFormatDisabled(t *testing.T) {
	da := newFakeDA()
	cfg, _ := testConfig(t, ModeFormat)

	_, err := NewController(NewLink(da), cfg).Run(context.Background())
	assert.ErrorIs(t, err, ErrFormatDisabled)
	assert.Empty(t, da.packets)
}

func TestControllerUnsupportedBaud(t *testing.T) {
	cfg, _ := testConfig(t, ModeDownload)
	cfg.BaudRate = 460800
	cfg.ImagePath = writeFile(t, t.TempDir(), "firmware.bin", pattern(10))

	_, err := NewController(NewLink(newFakeDA()), cfg).Run(context.Background())
	assert.ErrorIs(t, err, ErrUnsupportedBaud)
}

func TestControllerMissingFiles(t *testing.T) {
	t.Run("missing DA", func(t *testing.T) {
		cfg, _ := testConfig(t, ModeDownload)
		cfg.ImagePath = writeFile(t, t.TempDir(), "firmware.bin", pattern(10))
		cfg.DAPaths[921600] = filepath.Join(t.TempDir(), "nope.bin")

		_, err := NewController(NewLink(newFakeDA()), cfg).Run(context.Background())
		assert.ErrorIs(t, err, ErrImageUnreadable)
	})
	t.Run("empty DA", func(t *testing.T) {
		cfg, _ := testConfig(t, ModeDownload)
		cfg.ImagePath = writeFile(t, t.TempDir(), "firmware.bin", pattern(10))
		cfg.DAPaths[921600] = writeFile(t, t.TempDir(), "empty.bin", nil)

		_, err := NewController(NewLink(newFakeDA()), cfg).Run(context.Background())
		assert.ErrorIs(t, err, ErrImageUnreadable)
	})
	t.Run("missing image", func(t *testing.T) {
		da := newFakeDA()
		cfg, _ := testConfig(t, ModeDownload)
		cfg.ImagePath = filepath.Join(t.TempDir(), "firmware.bin")

		_, err := NewController(NewLink(da), cfg).Run(context.Background())
		assert.ErrorIs(t, err, ErrImageUnreadable)
		assert.Empty(t, da.packets)
	})
	t.Run("no image path", func(t *testing.T) {
		cfg, _ := testConfig(t, ModeDownload)

		_, err := NewController(NewLink(newFakeDA()), cfg).Run(context.Background())
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestControllerEmptyImageSucceeds(t *testing.T) {
	da := newFakeDA()
	cfg, _ := testConfig(t, ModeDownload)
	cfg.ImagePath = writeFile(t, t.TempDir(), "empty.bin", nil)

	result, err := NewController(NewLink(da), cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, result.State)
	assert.Equal(t, 0, da.count(CommandWrite))
}

func TestControllerDAFailureStopsRun(t *testing.T) {
	da := newFakeDA()
	da.reply = silent
	cfg, _ := testConfig(t, ModeDownload)
	cfg.ImagePath = writeFile(t, t.TempDir(), "firmware.bin", pattern(10))
	cfg.Transfer.MaxRetries = 1

	result, err := NewController(NewLink(da), cfg).Run(context.Background())
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.Equal(t, CommandWriteDA, result.Command)
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, 2, da.count(CommandWriteDA))
	assert.Equal(t, 0, da.count(CommandWrite))
	assert.Empty(t, da.bauds)
}

func TestControllerLinkBusy(t *testing.T) {
	cfg, _ := testConfig(t, ModeDownload)
	cfg.ImagePath = writeFile(t, t.TempDir(), "firmware.bin", pattern(10))
	link := NewLink(newFakeDA())
	require.True(t, link.acquire())
	defer link.release()

	_, err := NewController(link, cfg).Run(context.Background())
	assert.ErrorIs(t, err, ErrTransportBusy)
}

func TestControllerBootToggle(t *testing.T) {
	da := newFakeDA()
	cfg, _ := testConfig(t, ModeDownload)
	cfg.ImagePath = writeFile(t, t.TempDir(), "firmware.bin", pattern(10))
	cfg.BootToggle = true

	_, err := NewController(NewLink(da), cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, da.lines)
}

func TestParseMode(t *testing.T) {
	for _, mode := range []Mode{ModeDownload, ModeFormat, ModeReadBack} {
		parsed, err := ParseMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, parsed)
	}
	parsed, err := ParseMode("ReadBack")
	require.NoError(t, err)
	assert.Equal(t, ModeReadBack, parsed)

	_, err = ParseMode("upload")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestControllerRejectsAddressWrap(t *testing.T) {
	t.Run("readback", func(t *testing.T) {
		da := newFakeDA()
		cfg, _ := testConfig(t, ModeReadBack)
		cfg.ReadBackPath = filepath.Join(t.TempDir(), "dump.bin")
		cfg.BaseAddress = 0xFFFFFC00
		cfg.Length = 2048

		_, err := NewController(NewLink(da), cfg).Run(context.Background())
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Empty(t, da.packets)
	})
	t.Run("download", func(t *testing.T) {
		da := newFakeDA()
		cfg, _ := testConfig(t, ModeDownload)
		cfg.ImagePath = writeFile(t, t.TempDir(), "firmware.bin", pattern(2048))
		cfg.BaseAddress = 0xFFFFFC00

		_, err := NewController(NewLink(da), cfg).Run(context.Background())
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Empty(t, da.packets)
	})
	t.Run("format", func(t *testing.T) {
		da := newFakeDA()
		cfg, _ := testConfig(t, ModeFormat)
		cfg.FormatEnabled = true
		cfg.BaseAddress = 0x80000000
		cfg.Length = 0x80000001

		_, err := NewController(NewLink(da), cfg).Run(context.Background())
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Empty(t, da.packets)
	})
}

func TestControllerResetAfter(t *testing.T) {
	da := newFakeDA()
	cfg, _ := testConfig(t, ModeDownload)
	cfg.ImagePath = writeFile(t, t.TempDir(), "firmware.bin", pattern(10))
	cfg.ResetAfter = true

	_, err := NewController(NewLink(da), cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, da.lines)
}

func TestControllerNoResetAfterFailure(t *testing.T) {
	da := newFakeDA()
	da.reply = silent
	cfg, _ := testConfig(t, ModeDownload)
	cfg.ImagePath = writeFile(t, t.TempDir(), "firmware.bin", pattern(10))
	cfg.Transfer.MaxRetries = 0
	cfg.ResetAfter = true

	_, err := NewController(NewLink(da), cfg).Run(context.Background())
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.Equal(t, 0, da.lines)
}

func TestControllerCancelBetweenStages(t *testing.T) {
	da := newFakeDA()
	cfg, _ := testConfig(t, ModeDownload)
	cfg.ImagePath = writeFile(t, t.TempDir(), "empty.bin", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	controller := NewController(NewLink(da), cfg, WithProgress(func(p Progress) {
		if p.Stage == "da" && p.Percent == 100 {
			cancel()
		}
	}))
	result, err := controller.Run(ctx)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, CommandWrite, result.Command)
	assert.Equal(t, StateAborted, result.State)
	assert.Equal(t, 3, da.count(CommandWriteDA))
	assert.Equal(t, []int{921600}, da.bauds)
}

package gnssflash

import (
	"context"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
)

// DA文件，按波特率区分
const (
	DefaultDA921600 = "assets/cfg/MT3352/DAFILE/slave_da_921600.bin"
	DefaultDA115200 = "assets/cfg/MT3352/DAFILE/slave_da_115200.bin"
)

// Config describes one mode run.
type Config struct {
	Mode Mode

	// BaudRate selects the DA image and is applied to the link once the DA runs
	BaudRate int

	// DAPaths maps a baud rate to its DA image
	DAPaths map[int]string

	// ImagePath is the firmware or config image written in ModeDownload
	ImagePath string

	// ReadBackPath receives the flash dump in ModeReadBack
	ReadBackPath string

	// BaseAddress is the flash address of the first byte
	BaseAddress uint32

	// Length is the flash region size for ModeReadBack and ModeFormat
	Length int64

	// FormatEnabled unlocks ModeFormat
	FormatEnabled bool

	// BootToggle pulses DTR/RTS before loading the DA
	BootToggle bool

	// ResetAfter resets the module once the mode finished successfully
	ResetAfter bool

	Transfer TransferConfig
}

func DefaultConfig() Config {
	return Config{
		Mode:     ModeDownload,
		BaudRate: 921600,
		DAPaths: map[int]string{
			921600: DefaultDA921600,
			115200: DefaultDA115200,
		},
		Transfer: defaultTransferConfig(),
	}
}

// Controller runs one mode against the module: load the DA, switch baud
// rate, then run the mode's session. A failed or aborted session ends the
// run; the controller does not retry.
type Controller struct {
	link   *Link
	config Config
}

/*
 * @Description: 创建控制器
 * @param link 串口
 * @param config 模式及传输参数
 * @param opts 覆盖config.Transfer中的参数
 * @return *Controller
 */
func NewController(link *Link, config Config, opts ...Option) *Controller {
	if link == nil {
		panic("link cannot be nil")
	}
	for _, opt := range opts {
		opt(&config.Transfer)
	}
	return &Controller{link: link, config: config}
}

func (c *Controller) Mode() Mode {
	return c.config.Mode
}

/*
 * @Description: 根据目标波特率选择DA文件
 * @return string
 * @return error ErrUnsupportedBaud / ErrImageUnreadable
 */
func (c *Controller) DAPath() (string, error) {
	path, ok := c.config.DAPaths[c.config.BaudRate]
	if !ok || path == "" {
		return "", fmt.Errorf("%w: %d", ErrUnsupportedBaud, c.config.BaudRate)
	}
	if !FileExists(path) {
		return "", fmt.Errorf("%w: DA %s not found", ErrImageUnreadable, path)
	}
	if FileSize(path) == 0 {
		return "", fmt.Errorf("%w: DA %s is empty", ErrImageUnreadable, path)
	}
	return path, nil
}

/*
 * @Description: 执行当前模式
 * @param ctx 取消后当前会话进入aborted
 * @return Result 模式会话（或失败的DA会话）的结果
 * @return error
 */
func (c *Controller) Run(ctx context.Context) (Result, error) {
	result := Result{Command: c.command(), State: StateIdle}
	if err := c.validate(); err != nil {
		return result, err
	}
	daPath, err := c.DAPath()
	if err != nil {
		return result, err
	}

	if !c.link.acquire() {
		return result, &TransferError{Command: result.Command, State: StateIdle, Err: ErrTransportBusy}
	}
	defer c.link.release()

	started := time.Now()
	log.Infof("[CONTROLLER] %s at %d bps, DA %s", c.config.Mode, c.config.BaudRate, daPath)

	if c.config.BootToggle {
		if err := c.link.Activation(); err != nil {
			return result, fmt.Errorf("activation: %w", err)
		}
	}

	source, err := OpenFileSource(daPath)
	if err != nil {
		return Result{Command: CommandWriteDA, State: StateIdle}, err
	}
	if result, err := c.writeSession(CommandWriteDA, 0, source).run(ctx); err != nil {
		log.Errorf("[CONTROLLER] load DA: %v", err)
		return result, err
	}

	if err := c.link.SetBaudRate(c.config.BaudRate); err != nil {
		return result, fmt.Errorf("switch to %d bps: %w", c.config.BaudRate, err)
	}

	session, err := c.modeSession()
	if err != nil {
		return result, err
	}
	result, err = session.run(ctx)
	if err != nil {
		log.Errorf("[CONTROLLER] %s: %v", c.config.Mode, err)
		return result, err
	}
	log.Infof("[CONTROLLER] %s finished, %d bytes in %v", c.config.Mode, result.Offset, time.Since(started))

	if c.config.ResetAfter {
		if err := c.link.Reset(); err != nil {
			return result, fmt.Errorf("reset: %w", err)
		}
		log.Info("[CONTROLLER] module reset")
	}
	return result, nil
}

func (c *Controller) command() Command {
	switch c.config.Mode {
	case ModeFormat:
		return CommandFormat
	case ModeReadBack:
		return CommandRead
	}
	return CommandWrite
}

func (c *Controller) validate() error {
	if err := c.config.Transfer.validate(); err != nil {
		return err
	}
	switch c.config.Mode {
	case ModeDownload:
		if c.config.ImagePath == "" {
			return fmt.Errorf("%w: no image path", ErrInvalidConfig)
		}
		if !FileExists(c.config.ImagePath) {
			return fmt.Errorf("%w: %s not found", ErrImageUnreadable, c.config.ImagePath)
		}
		return checkRegion(c.config.BaseAddress, FileSize(c.config.ImagePath))
	case ModeReadBack:
		if c.config.ReadBackPath == "" {
			return fmt.Errorf("%w: no readback path", ErrInvalidConfig)
		}
		if c.config.Length < 0 || c.config.Length > math.MaxUint32 {
			return fmt.Errorf("%w: readback length %d", ErrInvalidConfig, c.config.Length)
		}
		return checkRegion(c.config.BaseAddress, c.config.Length)
	case ModeFormat:
		if !c.config.FormatEnabled {
			return ErrFormatDisabled
		}
		if c.config.Length < 0 || c.config.Length > math.MaxUint32 {
			return fmt.Errorf("%w: format length %d", ErrInvalidConfig, c.config.Length)
		}
		return checkRegion(c.config.BaseAddress, c.config.Length)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidConfig, c.config.Mode)
	}
}

func (c *Controller) modeSession() (*Session, error) {
	switch c.config.Mode {
	case ModeReadBack:
		sink, err := CreateFileSink(c.config.ReadBackPath)
		if err != nil {
			return nil, err
		}
		s := newSession(c.link, CommandRead, c.config.BaseAddress, c.config.Length, c.config.Transfer)
		s.sink = sink
		return s, nil
	case ModeFormat:
		return c.writeSession(CommandFormat, c.config.BaseAddress, NewMemorySource(c.formatDescriptor())), nil
	}
	source, err := OpenFileSource(c.config.ImagePath)
	if err != nil {
		return nil, err
	}
	return c.writeSession(CommandWrite, c.config.BaseAddress, source), nil
}

func (c *Controller) writeSession(command Command, address uint32, source Source) *Session {
	s := newSession(c.link, command, address, source.Size(), c.config.Transfer)
	s.source = source
	return s
}

// formatDescriptor is the format request payload: begin address and length.
func (c *Controller) formatDescriptor() []byte {
	descriptor := make([]byte, 8)
	c.config.Transfer.ByteOrder.PutUint32(descriptor[0:4], c.config.BaseAddress)
	c.config.Transfer.ByteOrder.PutUint32(descriptor[4:8], uint32(c.config.Length))
	return descriptor
}

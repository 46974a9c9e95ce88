package gnssflash

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

// Config file sections
const (
	SectionModule   = "MT3352"
	SectionTransfer = "transfer"
)

/*
 * @Description: 加载ini配置文件
 *
 *	[MT3352]
 *	charset = utf-8
 *	mode = download
 *	baudrate = 921600
 *	cfgpth = firmware.bin
 *	readback = readback.bin
 *	base_address = 0x0
 *	length = 0
 *	FormatEnableShortcut = false
 *	boot_toggle = false
 *	reset_after = false
 *	da_921600 = assets/cfg/MT3352/DAFILE/slave_da_921600.bin
 *	da_115200 = assets/cfg/MT3352/DAFILE/slave_da_115200.bin
 *
 *	[transfer]
 *	chunk_size = 1024
 *	max_retries = 3
 *	ack_timeout_ms = 1000
 *	byte_order = big
 *
 * @param path
 * @return Config 未出现的键保持DefaultConfig中的值
 * @return error
 */
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	file, err := ini.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	section := file.Section(SectionModule)
	codec, err := LookupCodec(section.Key("charset").MustString("utf-8"))
	if err != nil {
		return cfg, err
	}
	text := func(key string) (string, error) {
		return codec.Widen([]byte(section.Key(key).String()))
	}

	if section.HasKey("mode") {
		if cfg.Mode, err = ParseMode(section.Key("mode").String()); err != nil {
			return cfg, err
		}
	}
	cfg.BaudRate = section.Key("baudrate").MustInt(cfg.BaudRate)
	if cfg.ImagePath, err = text("cfgpth"); err != nil {
		return cfg, err
	}
	if cfg.ReadBackPath, err = text("readback"); err != nil {
		return cfg, err
	}
	if section.HasKey("base_address") {
		address, err := strconv.ParseUint(section.Key("base_address").String(), 0, 32)
		if err != nil {
			return cfg, fmt.Errorf("%w: base_address: %v", ErrInvalidConfig, err)
		}
		cfg.BaseAddress = uint32(address)
	}
	if section.HasKey("length") {
		if cfg.Length, err = strconv.ParseInt(section.Key("length").String(), 0, 64); err != nil {
			return cfg, fmt.Errorf("%w: length: %v", ErrInvalidConfig, err)
		}
	}
	cfg.FormatEnabled = section.Key("FormatEnableShortcut").MustBool(false)
	cfg.BootToggle = section.Key("boot_toggle").MustBool(false)
	cfg.ResetAfter = section.Key("reset_after").MustBool(false)

	for _, key := range section.Keys() {
		name := key.Name()
		if !strings.HasPrefix(name, "da_") {
			continue
		}
		baud, err := strconv.Atoi(strings.TrimPrefix(name, "da_"))
		if err != nil {
			log.Warnf("[CONFIG] ignore key %s: %v", name, err)
			continue
		}
		if cfg.DAPaths[baud], err = text(name); err != nil {
			return cfg, err
		}
	}

	transfer := file.Section(SectionTransfer)
	cfg.Transfer.ChunkSize = transfer.Key("chunk_size").MustInt(cfg.Transfer.ChunkSize)
	cfg.Transfer.MaxRetries = transfer.Key("max_retries").MustInt(cfg.Transfer.MaxRetries)
	if transfer.HasKey("ack_timeout_ms") {
		cfg.Transfer.AckTimeout = time.Duration(transfer.Key("ack_timeout_ms").MustInt(0)) * time.Millisecond
	}
	if transfer.HasKey("byte_order") {
		if cfg.Transfer.ByteOrder, err = ParseByteOrder(transfer.Key("byte_order").String()); err != nil {
			return cfg, err
		}
	}

	log.Debugf("[CONFIG] loaded %s: mode %s, %d bps, image %q", path, cfg.Mode, cfg.BaudRate, cfg.ImagePath)
	return cfg, nil
}

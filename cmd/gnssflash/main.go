package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"golang.org/x/term"

	"github.com/tocurd/go-gnssflash"
)

// 串口以115200与BootROM通信，DA运行后切换到目标波特率
const bootBaudRate = 115200

// Read returns after this long without data so the session can poll
const readTimeout = 20 * time.Millisecond

func main() {
	configPath := flag.String("c", "", "ini config file")
	portName := flag.String("p", "", "serial port e.g. /dev/ttyUSB0, COM3")
	modeName := flag.String("m", "", "mode: download, format, readback")
	formatEnable := flag.Bool("format-enable", false, "allow format mode (FormatEnableShortcut)")
	baudRate := flag.Int("b", 0, "target baud rate (selects the DA)")
	imagePath := flag.String("i", "", "image to download")
	outputPath := flag.String("o", "", "readback output file")
	address := flag.String("a", "", "flash base address")
	length := flag.String("n", "", "readback/format length in bytes")
	reset := flag.Bool("reset", false, "reset the module after a successful run")
	list := flag.Bool("list", false, "list serial ports and exit")
	verbose := flag.Bool("v", false, "debug logging")
	trace := flag.Bool("vv", false, "trace logging with frame dumps")
	flag.Parse()

	switch {
	case *trace:
		log.SetLevel(log.TraceLevel)
	case *verbose:
		log.SetLevel(log.DebugLevel)
	}

	if *list {
		if err := listPorts(); err != nil {
			log.Fatal(err)
		}
		return
	}

	cfg := gnssflash.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = gnssflash.LoadConfig(*configPath); err != nil {
			log.Fatal(err)
		}
	}
	if err := applyFlags(&cfg, *modeName, *baudRate, *imagePath, *outputPath, *address, *length); err != nil {
		log.Fatal(err)
	}
	if *formatEnable {
		cfg.FormatEnabled = true
	}
	if *reset {
		cfg.ResetAfter = true
	}
	if *portName == "" {
		flag.PrintDefaults()
		log.Fatal("no serial port given")
	}

	os.Exit(flash(*portName, cfg))
}

// flash owns the port for the whole run and returns the process exit code.
func flash(portName string, cfg gnssflash.Config) int {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: bootBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		log.Errorf("open %s: %v", portName, err)
		return 1
	}
	defer port.Close()
	if err := port.SetReadTimeout(readTimeout); err != nil {
		log.Errorf("set read timeout: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	controller := gnssflash.NewController(gnssflash.NewLink(port), cfg, gnssflash.WithProgress(newProgress()))
	return run(ctx, controller)
}

func run(ctx context.Context, flasher gnssflash.Interface) int {
	result, err := flasher.Run(ctx)
	fmt.Fprintln(os.Stderr)
	switch {
	case err == nil:
		log.Infof("%s succeeded: %d bytes", flasher.Mode(), result.Offset)
		return 0
	case errors.Is(err, gnssflash.ErrCancelled):
		log.Warnf("%s aborted at offset %d", flasher.Mode(), result.Offset)
		return 130
	}
	log.Errorf("%s failed: %v", flasher.Mode(), err)
	return 1
}

func applyFlags(cfg *gnssflash.Config, mode string, baud int, image, output, address, length string) error {
	if mode != "" {
		m, err := gnssflash.ParseMode(mode)
		if err != nil {
			return err
		}
		cfg.Mode = m
	}
	if baud != 0 {
		cfg.BaudRate = baud
	}
	if image != "" {
		cfg.ImagePath = image
	}
	if output != "" {
		cfg.ReadBackPath = output
	}
	if address != "" {
		v, err := strconv.ParseUint(address, 0, 32)
		if err != nil {
			return fmt.Errorf("address: %w", err)
		}
		cfg.BaseAddress = uint32(v)
	}
	if length != "" {
		v, err := strconv.ParseInt(length, 0, 64)
		if err != nil {
			return fmt.Errorf("length: %w", err)
		}
		cfg.Length = v
	}
	return nil
}

// newProgress draws a bar per stage on a terminal and logs otherwise.
func newProgress() gnssflash.ProgressFunc {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		last := -1
		return func(p gnssflash.Progress) {
			if p.Percent/10 != last/10 || p.Percent == 100 {
				log.Infof("[%s] %d%% (%d/%d bytes)", p.Stage, p.Percent, p.Bytes, p.Total)
			}
			last = p.Percent
		}
	}

	var bar *progressbar.ProgressBar
	stage := ""
	return func(p gnssflash.Progress) {
		if bar == nil || p.Stage != stage {
			if bar != nil {
				bar.Finish()
				fmt.Fprintln(os.Stderr)
			}
			stage = p.Stage
			bar = progressbar.NewOptions(100,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription(p.Stage),
				progressbar.OptionShowCount(),
			)
		}
		bar.Set(p.Percent)
	}
}

func listPorts() error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found!")
		return nil
	}
	for _, port := range ports {
		fmt.Printf("Found port: %s\n", port.Name)
		if port.IsUSB {
			fmt.Printf("   USB ID     %s:%s\n", port.VID, port.PID)
			fmt.Printf("   USB serial %s\n", port.SerialNumber)
		}
	}
	return nil
}

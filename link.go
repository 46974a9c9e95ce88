package gnssflash

import (
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// Transport is the byte stream to the module, normally a serial.Port opened
// by the caller. The engine never opens or closes it.
type Transport interface {
	io.Reader
	io.Writer
}

type inputResetter interface {
	ResetInputBuffer() error
}

type readTimeouter interface {
	SetReadTimeout(timeout time.Duration) error
}

// readPollTimeout bounds one Read so sessions get back to their deadline and
// cancellation checks.
const readPollTimeout = 20 * time.Millisecond

type modeSetter interface {
	SetMode(mode *serial.Mode) error
}

type modemLines interface {
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
}

// Link hands a transport to at most one session at a time.
type Link struct {
	Port Transport
	mu   sync.Mutex
}

func NewLink(port Transport) *Link {
	return &Link{Port: port}
}

func (t *Link) acquire() bool {
	return t.mu.TryLock()
}

func (t *Link) release() {
	t.mu.Unlock()
}

/*
 * @Description: 通过DTR/RTS使模块进入下载模式，串口不支持时直接返回
 * @return error
 */
func (t *Link) Activation() error {
	lines, ok := t.Port.(modemLines)
	if !ok {
		log.Debug("[LINK] transport has no modem lines, skip activation")
		return nil
	}
	if err := lines.SetDTR(false); err != nil {
		return err
	}
	if err := lines.SetRTS(false); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)

	if err := lines.SetDTR(false); err != nil {
		return err
	}
	if err := lines.SetRTS(true); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	if err := lines.SetDTR(true); err != nil {
		return err
	}
	if err := lines.SetRTS(false); err != nil {
		return err
	}
	return nil
}

/*
 * @Description: 复位模块
 * @return error
 */
func (t *Link) Reset() error {
	lines, ok := t.Port.(modemLines)
	if !ok {
		return nil
	}
	if err := lines.SetDTR(false); err != nil {
		return err
	}
	if err := lines.SetRTS(true); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	return lines.SetRTS(false)
}

/*
 * @Description: 切换串口波特率（8N1），非串口传输时忽略
 * @param baudRate
 * @return error
 */
func (t *Link) SetBaudRate(baudRate int) error {
	port, ok := t.Port.(modeSetter)
	if !ok {
		log.Debugf("[LINK] transport cannot change baud rate, staying as is for %d", baudRate)
		return nil
	}
	return port.SetMode(&serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

// setPollTimeout keeps Read from blocking forever on ports that would
// otherwise wait for data indefinitely, e.g. a freshly opened serial.Port.
func (t *Link) setPollTimeout(timeout time.Duration) error {
	if port, ok := t.Port.(readTimeouter); ok {
		return port.SetReadTimeout(timeout)
	}
	return nil
}

// discardInput drops bytes the driver already buffered, such as a late ack
// for a packet that has since been resent.
func (t *Link) discardInput() error {
	if port, ok := t.Port.(inputResetter); ok {
		return port.ResetInputBuffer()
	}
	return nil
}

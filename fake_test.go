package gnssflash

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func init() {
	log.SetLevel(log.DebugLevel)
}

// fakeDA answers request frames the way a download agent would. reply may
// override the answer to the index-th frame; returning nil keeps the
// default answer and an empty slice answers nothing.
type fakeDA struct {
	mu       sync.Mutex
	order    binary.ByteOrder
	rx       []byte
	packets  []*Packet
	memory   []byte
	written  map[Command][]byte
	bauds    []int
	lines    int
	writeErr error
	reply    func(index int, packet *Packet) []byte
}

func newFakeDA() *fakeDA {
	return &fakeDA{order: binary.BigEndian, written: map[Command][]byte{}}
}

func (d *fakeDA) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeErr != nil {
		return 0, d.writeErr
	}
	frame := append([]byte(nil), p...)
	packet, err := DecodePacket(frame, d.order)
	if err != nil {
		return 0, err
	}
	index := len(d.packets)
	d.packets = append(d.packets, packet)
	if d.reply != nil {
		if out := d.reply(index, packet); out != nil {
			d.rx = append(d.rx, out...)
			return len(p), nil
		}
	}
	d.rx = append(d.rx, d.defaultReply(packet)...)
	return len(p), nil
}

func (d *fakeDA) defaultReply(packet *Packet) []byte {
	if packet.Command == CommandRead {
		end := int(packet.Address) + int(packet.Length)
		return EncodeAck(packet, d.memory[packet.Address:end], d.order)
	}
	buff := d.written[packet.Command]
	end := int(packet.Address) + len(packet.Payload)
	if len(buff) < end {
		buff = append(buff, make([]byte, end-len(buff))...)
	}
	copy(buff[packet.Address:], packet.Payload)
	d.written[packet.Command] = buff
	return EncodeAck(packet, nil, d.order)
}

func (d *fakeDA) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := copy(p, d.rx)
	d.rx = d.rx[n:]
	return n, nil
}

func (d *fakeDA) ResetInputBuffer() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rx = nil
	return nil
}

func (d *fakeDA) SetMode(mode *serial.Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bauds = append(d.bauds, mode.BaudRate)
	return nil
}

func (d *fakeDA) SetDTR(dtr bool) error {
	d.lines++
	return nil
}

func (d *fakeDA) SetRTS(rts bool) error {
	d.lines++
	return nil
}

func (d *fakeDA) count(command Command) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, packet := range d.packets {
		if packet.Command == command {
			n++
		}
	}
	return n
}

func silent(int, *Packet) []byte {
	return []byte{}
}

func pattern(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i*7 + i/251)
	}
	return data
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// blockingPort never answers. Like a serial port opened without a read
// timeout, its Read blocks until SetReadTimeout is called.
type blockingPort struct {
	mu      sync.Mutex
	once    sync.Once
	set     chan struct{}
	timeout time.Duration
	writes  int
}

func newBlockingPort() *blockingPort {
	return &blockingPort{set: make(chan struct{})}
}

func (p *blockingPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes++
	return len(b), nil
}

func (p *blockingPort) Read(b []byte) (int, error) {
	select {
	case <-p.set:
	case <-time.After(5 * time.Second):
		return 0, nil
	}
	p.mu.Lock()
	timeout := p.timeout
	p.mu.Unlock()
	time.Sleep(timeout)
	return 0, nil
}

func (p *blockingPort) SetReadTimeout(timeout time.Duration) error {
	p.mu.Lock()
	p.timeout = timeout
	p.mu.Unlock()
	p.once.Do(func() { close(p.set) })
	return nil
}

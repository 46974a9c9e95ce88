package gnssflash

import (
	"encoding/binary"
	"errors"
	"fmt"
)

type Command byte

const (
	CommandWriteDA Command = 0x01 // 下载DA到模块RAM
	CommandRead    Command = 0x11 // 从Flash指定地址读取数据
	CommandWrite   Command = 0x31 // 向Flash指定地址写入数据
	CommandFormat  Command = 0x44 // 擦除Flash区域
)

const (
	ACK  byte = 0x79
	NACK byte = 0x1F
)

// MaxChunkSize is the largest payload the 16-bit length field can carry.
const MaxChunkSize = 0xFFFF

// CMD ^CMD ADDR(4) LEN(2)
const headerSize = 8

func (c Command) String() string {
	switch c {
	case CommandWriteDA:
		return "da"
	case CommandRead:
		return "readback"
	case CommandWrite:
		return "download"
	case CommandFormat:
		return "format"
	}
	return fmt.Sprintf("command(0x%02X)", byte(c))
}

// Packet is one request frame. For reads Payload is empty and Length is the
// number of bytes requested.
type Packet struct {
	Command  Command
	Address  uint32
	Length   uint16
	Payload  []byte
	Checksum byte
}

func NewPacket(command Command, address uint32, payload []byte) *Packet {
	return &Packet{
		Command:  command,
		Address:  address,
		Length:   uint16(len(payload)),
		Payload:  payload,
		Checksum: Checksum(payload),
	}
}

func NewReadPacket(address uint32, length uint16) *Packet {
	return &Packet{Command: CommandRead, Address: address, Length: length}
}

/*
 * @Description: 组帧 CMD ^CMD ADDR LEN PAYLOAD CHK
 * @param order DA要求的字节序
 * @return []byte
 */
func (p *Packet) Encode(order binary.ByteOrder) []byte {
	frame := make([]byte, headerSize, headerSize+len(p.Payload)+1)
	copy(frame, commandBytes(p.Command))
	order.PutUint32(frame[2:6], p.Address)
	order.PutUint16(frame[6:8], p.Length)
	frame = append(frame, p.Payload...)
	return append(frame, p.Checksum)
}

/*
 * @Description: 解析请求帧，供DA端及调试使用
 * @param frame
 * @param order
 * @return *Packet
 * @return error
 */
func DecodePacket(frame []byte, order binary.ByteOrder) (*Packet, error) {
	if len(frame) < headerSize+1 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(frame))
	}
	if frame[1] != 0xFF^frame[0] {
		return nil, fmt.Errorf("bad command complement 0x%02X for 0x%02X", frame[1], frame[0])
	}
	packet := &Packet{
		Command: Command(frame[0]),
		Address: order.Uint32(frame[2:6]),
		Length:  order.Uint16(frame[6:8]),
	}
	payloadLen := int(packet.Length)
	if packet.Command == CommandRead {
		payloadLen = 0
	}
	if len(frame) != headerSize+payloadLen+1 {
		return nil, fmt.Errorf("frame length %d does not match payload length %d", len(frame), payloadLen)
	}
	packet.Payload = frame[headerSize : headerSize+payloadLen]
	packet.Checksum = frame[len(frame)-1]
	return packet, nil
}

// Ack is a DA reply. Checksum is the DA's digest of what it received (write
// commands) or of the payload it sends back (reads).
type Ack struct {
	Command  Command
	NACK     bool
	Payload  []byte
	Checksum byte
}

/*
 * @Description: 校验应答
 * @param expected 本地计算的校验和
 * @return error NACKError / ErrChecksumMismatch
 */
func (a *Ack) verify(expected byte) error {
	if a.NACK {
		return NACKError
	}
	if a.Command == CommandRead {
		expected = Checksum(a.Payload)
	}
	if a.Checksum != expected {
		return fmt.Errorf("%w: expected 0x%02X, got 0x%02X", ErrChecksumMismatch, expected, a.Checksum)
	}
	return nil
}

var errIncomplete = errors.New("incomplete ack")

/*
 * @Description: 从接收缓冲中查找应答帧，跳过帧头之前的杂散字节
 * @param buff 接收缓冲
 * @param command 期望应答的指令
 * @param length 读指令期望的数据长度
 * @param order
 * @return *Ack 未收到完整应答时为nil
 * @return []byte 剩余未处理的数据
 */
func parseAck(buff []byte, command Command, length int, order binary.ByteOrder) (*Ack, []byte) {
	for len(buff) > 0 {
		index := 0
		for index < len(buff) && buff[index] != ACK && buff[index] != NACK {
			index++
		}
		buff = buff[index:]
		ack, size, err := decodeAck(buff, command, length, order)
		if err == errIncomplete {
			return nil, buff
		}
		if err != nil {
			// 帧头后的内容不匹配，丢弃该字节重新同步
			buff = buff[1:]
			continue
		}
		return ack, buff[size:]
	}
	return nil, buff
}

func decodeAck(buff []byte, command Command, length int, order binary.ByteOrder) (*Ack, int, error) {
	if len(buff) < 2 {
		return nil, 0, errIncomplete
	}
	if Command(buff[1]) != command {
		return nil, 0, fmt.Errorf("ack for 0x%02X, want 0x%02X", buff[1], byte(command))
	}
	if buff[0] == NACK {
		return &Ack{Command: command, NACK: true}, 2, nil
	}
	if command != CommandRead {
		if len(buff) < 3 {
			return nil, 0, errIncomplete
		}
		return &Ack{Command: command, Checksum: buff[2]}, 3, nil
	}

	if len(buff) < 4 {
		return nil, 0, errIncomplete
	}
	n := int(order.Uint16(buff[2:4]))
	if n != length {
		return nil, 0, fmt.Errorf("read response of %d bytes, want %d", n, length)
	}
	if len(buff) < 5+n {
		return nil, 0, errIncomplete
	}
	payload := make([]byte, n)
	copy(payload, buff[4:4+n])
	return &Ack{Command: command, Payload: payload, Checksum: buff[4+n]}, 5 + n, nil
}

// EncodeAck builds the DA side reply for a request. Used by DA simulators.
func EncodeAck(packet *Packet, payload []byte, order binary.ByteOrder) []byte {
	if packet.Command != CommandRead {
		return []byte{ACK, byte(packet.Command), Checksum(packet.Payload)}
	}
	frame := make([]byte, 4, 5+len(payload))
	frame[0] = ACK
	frame[1] = byte(packet.Command)
	order.PutUint16(frame[2:4], uint16(len(payload)))
	frame = append(frame, payload...)
	return append(frame, Checksum(payload))
}

package gnssflash

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/looplab/fsm"
	log "github.com/sirupsen/logrus"
)

type State string

const (
	StateIdle        State = "idle"
	StateAwaitingAck State = "awaiting_ack"
	StateRetrying    State = "retrying"
	StateSucceeded   State = "succeeded"
	StateFailed      State = "failed"
	StateAborted     State = "aborted"
)

const (
	eventStart    = "start"
	eventRetry    = "retry"
	eventResend   = "resend"
	eventExhaust  = "exhaust"
	eventComplete = "complete"
	eventFail     = "fail"
	eventAbort    = "abort"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateAborted
}

// Result is the final outcome of a session.
type Result struct {
	Command Command
	State   State
	// Offset is the number of bytes acknowledged
	Offset  int64
	Total   int64
	Resends int
}

// Session moves one image across a Link, one chunk per request/ack turn.
// A Session runs once; build a new one for another transfer.
type Session struct {
	link     *Link
	command  Command
	address  uint32
	total    int64
	source   Source
	sink     Sink
	config   TransferConfig
	reporter *Reporter
	fsm      *fsm.FSM

	offset   int64
	retries  int
	resends  int
	deadline time.Time
	buff     []byte
}

/*
 * @Description: 创建写会话（下载DA、下载固件、格式化）
 * @param link 串口
 * @param command 写指令
 * @param address Flash起始地址
 * @param source 数据源，由会话负责关闭
 * @return *Session
 */
func NewWriteSession(link *Link, command Command, address uint32, source Source, opts ...Option) *Session {
	s := newSession(link, command, address, source.Size(), applyOptions(opts))
	s.source = source
	return s
}

/*
 * @Description: 创建回读会话
 * @param link 串口
 * @param address Flash起始地址
 * @param length 回读长度
 * @param sink 输出，由会话负责关闭
 * @return *Session
 */
func NewReadSession(link *Link, address uint32, length int64, sink Sink, opts ...Option) *Session {
	s := newSession(link, CommandRead, address, length, applyOptions(opts))
	s.sink = sink
	return s
}

func applyOptions(opts []Option) TransferConfig {
	cfg := defaultTransferConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func newSession(link *Link, command Command, address uint32, total int64, config TransferConfig) *Session {
	s := &Session{
		link:     link,
		command:  command,
		address:  address,
		total:    total,
		config:   config,
		reporter: NewReporter(command.String(), config.Progress),
	}
	s.fsm = fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: eventStart, Src: []string{string(StateIdle)}, Dst: string(StateAwaitingAck)},
			{Name: eventRetry, Src: []string{string(StateAwaitingAck)}, Dst: string(StateRetrying)},
			{Name: eventResend, Src: []string{string(StateRetrying)}, Dst: string(StateAwaitingAck)},
			{Name: eventExhaust, Src: []string{string(StateRetrying)}, Dst: string(StateFailed)},
			{Name: eventComplete, Src: []string{string(StateIdle), string(StateAwaitingAck)}, Dst: string(StateSucceeded)},
			{Name: eventFail, Src: []string{string(StateIdle), string(StateAwaitingAck), string(StateRetrying)}, Dst: string(StateFailed)},
			{Name: eventAbort, Src: []string{string(StateIdle), string(StateAwaitingAck), string(StateRetrying)}, Dst: string(StateAborted)},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				log.Debugf("[SESSION][%s] %s -> %s on %s at 0x%08X", s.command, e.Src, e.Dst, e.Event, s.offset)
			},
		},
	)
	return s
}

func (s *Session) State() State {
	return State(s.fsm.Current())
}

// Offset returns the number of bytes acknowledged so far.
func (s *Session) Offset() int64 {
	return s.offset
}

/*
 * @Description: 执行传输直到成功、失败或取消，期间独占串口
 * @param ctx 取消后在下一个轮询点进入aborted
 * @return Result
 * @return error 失败时为*TransferError；串口被占用时返回ErrTransportBusy，会话仍可稍后再次Run
 */
func (s *Session) Run(ctx context.Context) (Result, error) {
	if !s.link.acquire() {
		return s.result(), &TransferError{Command: s.command, State: s.State(), Err: ErrTransportBusy}
	}
	defer s.link.release()
	return s.run(ctx)
}

// run expects the caller to own the link.
func (s *Session) run(ctx context.Context) (Result, error) {
	defer s.release()

	if s.State() != StateIdle {
		return s.result(), fmt.Errorf("session already ran, state %s", s.State())
	}
	if err := s.config.validate(); err != nil {
		return s.result(), s.fail(err)
	}
	if err := checkRegion(s.address, s.total); err != nil {
		return s.result(), s.fail(err)
	}
	if err := s.link.setPollTimeout(readPollTimeout); err != nil {
		return s.result(), s.fail(err)
	}
	if ctx.Err() != nil {
		return s.result(), s.abort()
	}

	if s.total == 0 {
		if err := s.release(); err != nil {
			return s.result(), s.fail(err)
		}
		s.event(eventComplete)
		s.reporter.Done()
		log.Infof("[SESSION][%s] nothing to transfer", s.command)
		return s.result(), nil
	}

	log.Infof("[SESSION][%s] start 0x%08X, %d bytes, chunk %d", s.command, s.address, s.total, s.config.ChunkSize)
	s.event(eventStart)
	for s.offset < s.total {
		if err := s.transferChunk(ctx); err != nil {
			return s.result(), err
		}
	}

	if err := s.release(); err != nil {
		return s.result(), s.fail(err)
	}
	s.event(eventComplete)
	log.Infof("[SESSION][%s] done, %d bytes, %d resends", s.command, s.offset, s.resends)
	return s.result(), nil
}

/*
 * @Description: 发送当前块并等待应答，超时或校验失败时重发同一块
 * @param ctx
 * @return error
 */
func (s *Session) transferChunk(ctx context.Context) error {
	packet, err := s.nextPacket()
	if err != nil {
		return s.fail(err)
	}
	frame := packet.Encode(s.config.ByteOrder)

	s.retries = 0
	for {
		if ctx.Err() != nil {
			return s.abort()
		}
		ack, err := s.exchange(ctx, frame, packet)
		if err == nil {
			return s.commit(packet, ack)
		}
		if ctx.Err() != nil {
			return s.abort()
		}
		if !retryable(err) {
			return s.fail(err)
		}

		s.event(eventRetry)
		s.retries++
		if s.retries > s.config.MaxRetries {
			log.Errorf("[SESSION][%s] chunk 0x%08X failed after %d resends: %v",
				s.command, packet.Address, s.config.MaxRetries, err)
			s.event(eventExhaust)
			return s.newError(fmt.Errorf("%w: %w", ErrRetryExhausted, err))
		}
		log.Warnf("[SESSION][%s] chunk 0x%08X: %v, resend %d/%d",
			s.command, packet.Address, err, s.retries, s.config.MaxRetries)
		s.resends++
		s.event(eventResend)
	}
}

// checkRegion rejects a transfer whose last byte lies past the 32-bit
// address space. Chunk addresses would otherwise wrap to 0.
func checkRegion(address uint32, total int64) error {
	if total < 0 || uint64(address)+uint64(total) > 1<<32 {
		return fmt.Errorf("%w: region 0x%08X+%d exceeds the 32-bit address space", ErrInvalidConfig, address, total)
	}
	return nil
}

func (s *Session) nextPacket() (*Packet, error) {
	length := min(int64(s.config.ChunkSize), s.total-s.offset)
	address := s.address + uint32(s.offset)
	if s.command == CommandRead {
		return NewReadPacket(address, uint16(length)), nil
	}
	data, err := s.source.ReadChunk(s.offset, int(length))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != length {
		return nil, fmt.Errorf("%w: got %d of %d bytes at offset %d", ErrImageUnreadable, len(data), length, s.offset)
	}
	return NewPacket(s.command, address, data), nil
}

func (s *Session) exchange(ctx context.Context, frame []byte, packet *Packet) (*Ack, error) {
	s.buff = s.buff[:0]
	if err := s.link.discardInput(); err != nil {
		return nil, err
	}
	if log.IsLevelEnabled(log.TraceLevel) {
		if dump, ok := HexDump(frame); ok {
			log.Tracef("[SESSION][TX] %s", dump)
		}
	}
	if _, err := s.link.Port.Write(frame); err != nil {
		return nil, err
	}
	s.deadline = Start()
	return s.waitAck(ctx, packet)
}

/*
 * @Description: 轮询等待应答，期间检查取消
 * @param ctx
 * @param packet 已发送的数据包
 * @return *Ack
 * @return error
 */
func (s *Session) waitAck(ctx context.Context, packet *Packet) (*Ack, error) {
	timeoutMs := uint32(s.config.AckTimeout / time.Millisecond)
	temp := make([]byte, 512)
	for {
		ack, rest := parseAck(s.buff, packet.Command, int(packet.Length), s.config.ByteOrder)
		s.buff = rest
		if ack != nil {
			return ack, ack.verify(packet.Checksum)
		}
		if !NotExpired(s.deadline, timeoutMs) {
			return nil, ErrTransportTimeout
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := s.link.Port.Read(temp)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if n <= 0 {
			time.Sleep(s.config.PollInterval)
			continue
		}
		if log.IsLevelEnabled(log.TraceLevel) {
			if dump, ok := HexDump(temp[:n]); ok {
				log.Tracef("[SESSION][RX] %s", dump)
			}
		}
		s.buff = append(s.buff, temp[:n]...)
	}
}

func (s *Session) commit(packet *Packet, ack *Ack) error {
	if s.sink != nil {
		if err := s.sink.WriteChunk(s.offset, ack.Payload); err != nil {
			return s.fail(err)
		}
	}
	s.offset += int64(packet.Length)
	s.reporter.Update(s.offset, s.total)
	log.Debugf("[SESSION][%s] chunk 0x%08X acked, %d/%d", s.command, packet.Address, s.offset, s.total)
	return nil
}

func (s *Session) fail(err error) error {
	s.event(eventFail)
	return s.newError(err)
}

func (s *Session) abort() error {
	log.Warnf("[SESSION][%s] cancelled at 0x%08X", s.command, s.offset)
	s.event(eventAbort)
	return s.newError(ErrCancelled)
}

func (s *Session) newError(err error) error {
	return &TransferError{Command: s.command, State: s.State(), Offset: s.offset, Err: err}
}

func (s *Session) event(name string) {
	if err := s.fsm.Event(name); err != nil {
		log.Errorf("[SESSION][%s] event %s in state %s: %v", s.command, name, s.fsm.Current(), err)
	}
}

// release closes the source and sink once. ReadBack output written so far is
// kept on every path.
func (s *Session) release() error {
	var err error
	if s.source != nil {
		err = s.source.Close()
		s.source = nil
	}
	if s.sink != nil {
		if closeErr := s.sink.Close(); closeErr != nil {
			err = closeErr
		}
		s.sink = nil
	}
	if err != nil {
		log.Errorf("[SESSION][%s] release: %v", s.command, err)
	}
	return err
}

func (s *Session) result() Result {
	return Result{
		Command: s.command,
		State:   s.State(),
		Offset:  s.offset,
		Total:   s.total,
		Resends: s.resends,
	}
}

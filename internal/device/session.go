package device

import (
	"context"
	"fmt"
	"net"
	"time"

	"go-attendsync/internal/protocol"

	"go.uber.org/zap"
)

// State is the session lifecycle position.
type State string

const (
	StateDisconnected  State = "DISCONNECTED"
	StateConnecting    State = "CONNECTING"
	StateConnected     State = "CONNECTED"
	StateDisconnecting State = "DISCONNECTING"
	StateErrored       State = "ERRORED"
)

// readBufSize is larger than any observed single terminal segment.
const readBufSize = 64 * 1024

// drainWindow is how long ReadAttendanceLogs waits for a follow-up segment
// before treating the log payload as complete.
const drainWindow = 300 * time.Millisecond

// Dialer opens the transport connection. Satisfied by *net.Dialer; tests
// substitute a pipe-backed fake terminal.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Session drives one connect/command/disconnect cycle against a terminal.
//
// A Session is not safe for concurrent command calls: replies are correlated
// to the single underlying connection, not demultiplexed per request, so the
// caller must keep at most one command in flight. Each sync cycle owns its
// session exclusively and tears it down before returning; sessions are never
// pooled.
type Session struct {
	dialer Dialer
	logger *zap.Logger

	conn      net.Conn
	addr      string
	state     State
	sessionID uint16
	replyID   uint16
}

// NewSession builds an idle session. A nil dialer falls back to net.Dialer.
func NewSession(dialer Dialer, logger *zap.Logger) *Session {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Session{
		dialer: dialer,
		logger: logger.Named("device.session"),
		state:  StateDisconnected,
	}
}

func (s *Session) State() State { return s.state }

// SessionID is the id adopted from the device during the handshake.
func (s *Session) SessionID() uint16 { return s.sessionID }

// Connect dials the terminal and performs the CONNECT handshake. The session
// id returned by the device in the ACK_OK reply is adopted for every
// subsequent frame of this session.
func (s *Session) Connect(ctx context.Context, addr string, timeout time.Duration) error {
	if s.state == StateConnected {
		return fmt.Errorf("device %s: already connected", addr)
	}
	s.state = StateConnecting
	s.addr = addr

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := s.dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		s.state = StateErrored
		return classifyConnErr(addr, err)
	}
	s.conn = conn
	s.sessionID = 0
	s.replyID = 0

	reply, err := s.roundTrip(protocol.CmdConnect, nil, timeout)
	if err != nil {
		_ = conn.Close()
		s.conn = nil
		s.state = StateErrored
		return err
	}
	if reply.Command != protocol.AckOK {
		_ = conn.Close()
		s.conn = nil
		s.state = StateErrored
		return fmt.Errorf("device %s: handshake rejected with %s: %w",
			addr, reply.Command, protocol.ErrUnexpectedCommand)
	}

	s.sessionID = reply.SessionID
	s.state = StateConnected
	s.logger.Debug("session established",
		zap.String("addr", addr),
		zap.Uint16("session_id", s.sessionID),
	)
	return nil
}

// SendCommand writes one frame and blocks for exactly one reply within
// timeout.
//
// The wire protocol carries no payload-length field, so a logical reply is
// whatever the transport delivers once at least the 8 header bytes have
// arrived. Frame boundaries of multi-packet responses are therefore
// socket-read-boundary dependent; callers needing a large payload (attendance
// log reads) drain follow-up segments via ReadAttendanceLogs.
func (s *Session) SendCommand(ctx context.Context, code protocol.Command, payload []byte, timeout time.Duration) (protocol.Frame, error) {
	if s.state != StateConnected {
		return protocol.Frame{}, fmt.Errorf("device %s: send in state %s", s.addr, s.state)
	}
	if err := ctx.Err(); err != nil {
		return protocol.Frame{}, err
	}
	reply, err := s.roundTrip(code, payload, timeout)
	if err != nil {
		s.state = StateErrored
		return protocol.Frame{}, err
	}
	return reply, nil
}

// ReadAttendanceLogs issues ATTLOG_RRQ and decodes the returned log payload.
// After the reply header arrives, follow-up segments are drained until the
// terminal goes quiet for drainWindow, since log dumps can span several
// packets.
func (s *Session) ReadAttendanceLogs(ctx context.Context, timeout time.Duration) ([]protocol.PunchRecord, error) {
	reply, err := s.SendCommand(ctx, protocol.CmdAttLogRead, nil, timeout)
	if err != nil {
		return nil, err
	}
	if reply.Command != protocol.AckOK && reply.Command != protocol.AckData {
		return nil, fmt.Errorf("device %s: attlog read rejected with %s: %w",
			s.addr, reply.Command, protocol.ErrUnexpectedCommand)
	}

	data := append([]byte{}, reply.Data...)
	data = append(data, s.drain(drainWindow)...)

	records := protocol.DecodeAttendanceLog(data)
	s.logger.Debug("attendance log read",
		zap.String("addr", s.addr),
		zap.Int("payload_bytes", len(data)),
		zap.Int("records", len(records)),
	)
	return records, nil
}

// Disconnect best-effort sends EXIT, ignoring its reply and any error, then
// closes the socket. It never fails: the session always ends Disconnected.
func (s *Session) Disconnect() {
	if s.conn == nil {
		s.state = StateDisconnected
		return
	}
	s.state = StateDisconnecting

	_ = s.conn.SetDeadline(time.Now().Add(2 * time.Second))
	frame := protocol.EncodeCommand(protocol.CmdExit, s.sessionID, s.replyID, nil)
	s.bumpReplyID()
	if _, err := s.conn.Write(frame); err == nil {
		// The EXIT reply is read and thrown away to leave the socket clean.
		buf := make([]byte, protocol.HeaderSize)
		_, _ = s.conn.Read(buf)
	}

	_ = s.conn.Close()
	s.conn = nil
	s.state = StateDisconnected
	s.logger.Debug("session closed", zap.String("addr", s.addr))
}

func (s *Session) roundTrip(code protocol.Command, payload []byte, timeout time.Duration) (protocol.Frame, error) {
	deadline := time.Now().Add(timeout)
	if err := s.conn.SetDeadline(deadline); err != nil {
		return protocol.Frame{}, classifyConnErr(s.addr, err)
	}

	frame := protocol.EncodeCommand(code, s.sessionID, s.replyID, payload)
	s.bumpReplyID()
	if _, err := s.conn.Write(frame); err != nil {
		return protocol.Frame{}, classifyConnErr(s.addr, err)
	}

	raw, err := s.readFrame()
	if err != nil {
		return protocol.Frame{}, err
	}
	reply, err := protocol.DecodeResponse(raw)
	if err != nil {
		return protocol.Frame{}, err
	}
	if !reply.Command.IsAck() {
		return protocol.Frame{}, fmt.Errorf("device %s: reply carries request code %s: %w",
			s.addr, reply.Command, protocol.ErrUnexpectedCommand)
	}
	return reply, nil
}

// readFrame buffers socket reads until at least the 8 header bytes have
// arrived; whatever arrived alongside them is the reply payload. TCP does not
// guarantee one write = one read, so a header split across segments is
// reassembled here.
func (s *Session) readFrame() ([]byte, error) {
	buf := make([]byte, readBufSize)
	total := 0
	for total < protocol.HeaderSize {
		n, err := s.conn.Read(buf[total:])
		if err != nil {
			return nil, classifyConnErr(s.addr, err)
		}
		total += n
	}
	return buf[:total], nil
}

// drain keeps reading until the terminal stays quiet for window.
func (s *Session) drain(window time.Duration) []byte {
	var extra []byte
	buf := make([]byte, readBufSize)
	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(window)); err != nil {
			return extra
		}
		n, err := s.conn.Read(buf)
		if n > 0 {
			extra = append(extra, buf[:n]...)
		}
		if err != nil {
			return extra
		}
	}
}

// bumpReplyID advances the per-session reply counter mod 0xFFFF. The counter
// is scoped to this session so concurrent sessions to different devices never
// share state.
func (s *Session) bumpReplyID() {
	s.replyID = (s.replyID + 1) % 0xFFFF
}

package device

import (
	"context"
	"net"
	"testing"
	"time"

	"go-attendsync/internal/protocol"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// pipeDialer hands out the client end of a net.Pipe regardless of address.
type pipeDialer struct {
	conn net.Conn
}

func (d *pipeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return d.conn, nil
}

// fakeTerminal reads command frames and replies per the provided handler.
func fakeTerminal(t *testing.T, conn net.Conn, handle func(frame protocol.Frame) [][]byte) {
	t.Helper()
	go func() {
		buf := make([]byte, 64*1024)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			frame, err := protocol.DecodeResponse(buf[:n])
			if err != nil {
				return
			}
			for _, reply := range handle(frame) {
				if _, err := conn.Write(reply); err != nil {
					return
				}
			}
			if frame.Command == protocol.CmdExit {
				_ = conn.Close()
				return
			}
		}
	}()
}

func newTestSession(t *testing.T, handle func(frame protocol.Frame) [][]byte) *Session {
	t.Helper()
	client, server := net.Pipe()
	fakeTerminal(t, server, handle)
	return NewSession(&pipeDialer{conn: client}, zap.NewNop())
}

func ackOK(sessionID, replyID uint16) []byte {
	return protocol.EncodeCommand(protocol.AckOK, sessionID, replyID, nil)
}

func TestConnectAdoptsDeviceSessionID(t *testing.T) {
	s := newTestSession(t, func(frame protocol.Frame) [][]byte {
		assert.Equal(t, protocol.CmdConnect, frame.Command)
		assert.Equal(t, uint16(0), frame.SessionID)
		return [][]byte{ackOK(0x5A5A, frame.ReplyID)}
	})

	err := s.Connect(context.Background(), "10.0.0.9:4370", time.Second)
	assert.NoError(t, err)
	assert.Equal(t, StateConnected, s.State())
	assert.Equal(t, uint16(0x5A5A), s.SessionID())

	s.Disconnect()
	assert.Equal(t, StateDisconnected, s.State())
}

func TestConnectRejectedHandshake(t *testing.T) {
	s := newTestSession(t, func(frame protocol.Frame) [][]byte {
		return [][]byte{protocol.EncodeCommand(protocol.AckUnauth, 0, frame.ReplyID, nil)}
	})

	err := s.Connect(context.Background(), "10.0.0.9:4370", time.Second)
	assert.ErrorIs(t, err, protocol.ErrUnexpectedCommand)
	assert.Equal(t, StateErrored, s.State())
}

func TestConnectRejectsNonAckReply(t *testing.T) {
	// A terminal echoing a request code instead of an ack is a protocol
	// violation, not a reply to interpret.
	s := newTestSession(t, func(frame protocol.Frame) [][]byte {
		return [][]byte{protocol.EncodeCommand(protocol.CmdConnect, 0, frame.ReplyID, nil)}
	})

	err := s.Connect(context.Background(), "10.0.0.9:4370", time.Second)
	assert.ErrorIs(t, err, protocol.ErrUnexpectedCommand)
	assert.Equal(t, StateErrored, s.State())
}

func TestSendCommandUsesAdoptedSessionAndBumpsReplyID(t *testing.T) {
	var seen []protocol.Frame
	s := newTestSession(t, func(frame protocol.Frame) [][]byte {
		seen = append(seen, frame)
		return [][]byte{ackOK(0x0101, frame.ReplyID)}
	})

	assert.NoError(t, s.Connect(context.Background(), "a:4370", time.Second))

	_, err := s.SendCommand(context.Background(), protocol.CmdEnableDevice, nil, time.Second)
	assert.NoError(t, err)
	_, err = s.SendCommand(context.Background(), protocol.CmdGetTime, nil, time.Second)
	assert.NoError(t, err)

	assert.Len(t, seen, 3)
	assert.Equal(t, uint16(0), seen[0].ReplyID)
	assert.Equal(t, uint16(1), seen[1].ReplyID)
	assert.Equal(t, uint16(2), seen[2].ReplyID)
	assert.Equal(t, uint16(0x0101), seen[1].SessionID)
	assert.Equal(t, uint16(0x0101), seen[2].SessionID)
}

func TestSendCommandReassemblesSplitHeader(t *testing.T) {
	client, server := net.Pipe()
	s := NewSession(&pipeDialer{conn: client}, zap.NewNop())

	go func() {
		buf := make([]byte, 1024)
		// Handshake.
		n, _ := server.Read(buf)
		frame, _ := protocol.DecodeResponse(buf[:n])
		_, _ = server.Write(ackOK(9, frame.ReplyID))

		// Next reply arrives split mid-header.
		n, _ = server.Read(buf)
		frame, _ = protocol.DecodeResponse(buf[:n])
		reply := ackOK(9, frame.ReplyID)
		_, _ = server.Write(reply[:3])
		time.Sleep(20 * time.Millisecond)
		_, _ = server.Write(reply[3:])
	}()

	assert.NoError(t, s.Connect(context.Background(), "a:4370", time.Second))
	got, err := s.SendCommand(context.Background(), protocol.CmdGetTime, nil, time.Second)
	assert.NoError(t, err)
	assert.Equal(t, protocol.AckOK, got.Command)
}

func TestReadAttendanceLogsDrainsFollowUpSegments(t *testing.T) {
	records := []protocol.PunchRecord{
		{EnrollNumber: 7, VerifyMode: protocol.VerifyFingerprint, Year: 2026, Month: 8, Day: 28, Hour: 8, Minute: 55},
		{EnrollNumber: 7, VerifyMode: protocol.VerifyFingerprint, Year: 2026, Month: 8, Day: 28, Hour: 17, Minute: 2},
		{EnrollNumber: 12, VerifyMode: protocol.VerifyCard, Year: 2026, Month: 8, Day: 28, Hour: 9, Minute: 14},
	}
	payload := protocol.EncodeAttendanceLog(records)

	s := newTestSession(t, func(frame protocol.Frame) [][]byte {
		switch frame.Command {
		case protocol.CmdConnect:
			return [][]byte{ackOK(3, frame.ReplyID)}
		case protocol.CmdAttLogRead:
			head := protocol.EncodeCommand(protocol.AckData, 3, frame.ReplyID, payload[:40])
			return [][]byte{head, payload[40:]}
		default:
			return [][]byte{ackOK(3, frame.ReplyID)}
		}
	})

	assert.NoError(t, s.Connect(context.Background(), "a:4370", time.Second))
	got, err := s.ReadAttendanceLogs(context.Background(), time.Second)
	assert.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, uint16(7), got[0].EnrollNumber)
	assert.Equal(t, uint16(12), got[2].EnrollNumber)
}

func TestDisconnectNeverFailsEvenWhenPeerGone(t *testing.T) {
	client, server := net.Pipe()
	_ = server.Close()
	s := NewSession(&pipeDialer{conn: client}, zap.NewNop())

	// Force a connected-looking state with a dead peer.
	err := s.Connect(context.Background(), "a:4370", 100*time.Millisecond)
	assert.Error(t, err)

	s.Disconnect()
	assert.Equal(t, StateDisconnected, s.State())
}

func TestConnectClassifiesTimeout(t *testing.T) {
	client, _ := net.Pipe() // no terminal goroutine, handshake reply never comes
	s := NewSession(&pipeDialer{conn: client}, zap.NewNop())

	err := s.Connect(context.Background(), "a:4370", 50*time.Millisecond)
	var ce *ConnectionError
	assert.ErrorAs(t, err, &ce)
	assert.Equal(t, ConnTimeout, ce.Kind)
}

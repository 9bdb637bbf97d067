package protocol

// Command is a device command or reply code as it appears on the wire.
type Command uint16

const (
	CmdConnect       Command = 1000
	CmdExit          Command = 1001
	CmdEnableDevice  Command = 1002
	CmdDisableDevice Command = 1003
	CmdAttLogRead    Command = 1700
	CmdAttLogClear   Command = 1702
	CmdGetTime       Command = 1737
	CmdSetTime       Command = 1738

	AckOK      Command = 2000
	AckError   Command = 2001
	AckData    Command = 2002
	AckRetry   Command = 2005
	AckUnauth  Command = 2007
	AckUnknown Command = 0xFFFF
)

func (c Command) String() string {
	switch c {
	case CmdConnect:
		return "CONNECT"
	case CmdExit:
		return "EXIT"
	case CmdEnableDevice:
		return "ENABLE_DEVICE"
	case CmdDisableDevice:
		return "DISABLE_DEVICE"
	case CmdAttLogRead:
		return "ATTLOG_RRQ"
	case CmdAttLogClear:
		return "CLEAR_ATTLOG"
	case CmdGetTime:
		return "GET_TIME"
	case CmdSetTime:
		return "SET_TIME"
	case AckOK:
		return "ACK_OK"
	case AckError:
		return "ACK_ERROR"
	case AckData:
		return "ACK_DATA"
	case AckRetry:
		return "ACK_RETRY"
	case AckUnauth:
		return "ACK_UNAUTH"
	case AckUnknown:
		return "ACK_UNKNOWN"
	default:
		return "UNKNOWN_CMD"
	}
}

// IsAck reports whether the code is a reply code rather than a request.
func (c Command) IsAck() bool {
	switch c {
	case AckOK, AckError, AckData, AckRetry, AckUnauth, AckUnknown:
		return true
	default:
		return false
	}
}

// VerifyMode is how the terminal verified the person for one punch.
type VerifyMode uint8

const (
	VerifyPassword    VerifyMode = 0
	VerifyFingerprint VerifyMode = 1
	VerifyCard        VerifyMode = 2
)

func (v VerifyMode) String() string {
	switch v {
	case VerifyPassword:
		return "PASSWORD"
	case VerifyFingerprint:
		return "FINGERPRINT"
	case VerifyCard:
		return "CARD"
	default:
		return "OTHER"
	}
}

// InOutMode is the direction the terminal claims for a punch. Many devices
// report this unreliably, so downstream treats it as advisory only.
type InOutMode uint8

const (
	InOutCheckIn  InOutMode = 0
	InOutCheckOut InOutMode = 1
)

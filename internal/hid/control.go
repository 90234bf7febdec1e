package hid

// The HID L2CAP PSMs. They must match the ones in the SDP record.
const (
	PSMControl   uint16 = 0x11
	PSMInterrupt uint16 = 0x13
)

// HIDP transaction types (upper nibble of the header byte).
const (
	TransHandshake   byte = 0x00
	TransHIDControl  byte = 0x10
	TransGetReport   byte = 0x40
	TransSetReport   byte = 0x50
	TransGetProtocol byte = 0x60
	TransSetProtocol byte = 0x70
	TransData        byte = 0xA0

	transMask byte = 0xF0
)

// HIDP parameters (lower nibble of the header byte).
const (
	ReportTypeInput  byte = 0x01
	ReportTypeOutput byte = 0x02

	HandshakeSuccessful  byte = 0x00
	HandshakeUnsupported byte = 0x03
	HandshakeInvalidParm byte = 0x04
	HandshakeErrUnknown  byte = 0x0E

	ControlVirtualCableUnplug byte = 0x05

	ProtocolBoot   byte = 0x00
	ProtocolReport byte = 0x01
)

// ControlResult describes how a control channel message was handled.
type ControlResult struct {
	// Reply holds the bytes to be written back on the control channel.
	// It is nil if no reply is required.
	Reply []byte

	// Unplug is set when the host requested a virtual cable unplug.
	Unplug bool
}

// Controller answers requests that the host sends on the control channel.
// The zero value starts in report protocol mode.
type Controller struct {
	bootMode bool
}

// Handle processes one control channel message.
func (c *Controller) Handle(msg []byte) ControlResult {
	if len(msg) == 0 {
		return ControlResult{}
	}

	param := msg[0] &^ transMask

	switch msg[0] & transMask {
	case TransHIDControl:
		if param == ControlVirtualCableUnplug {
			return ControlResult{Unplug: true}
		}

		return ControlResult{}

	case TransSetProtocol:
		switch param {
		case ProtocolBoot, ProtocolReport:
			c.bootMode = param == ProtocolBoot
			return handshake(HandshakeSuccessful)
		}

		return handshake(HandshakeInvalidParm)

	case TransGetProtocol:
		return ControlResult{Reply: []byte{TransData, c.Protocol()}}

	case TransGetReport:
		if param&0x03 != ReportTypeInput {
			return handshake(HandshakeInvalidParm)
		}

		release := Release()
		reply := append([]byte{}, release.Bytes()...)
		if c.bootMode {
			// Boot protocol reports carry no report ID.
			reply = append(reply[:1], reply[2:]...)
		}

		return ControlResult{Reply: reply}

	case TransSetReport:
		// Output reports (LED state) are accepted and ignored.
		return handshake(HandshakeSuccessful)

	case TransData, TransHandshake:
		return ControlResult{}
	}

	return handshake(HandshakeUnsupported)
}

// Protocol returns the current protocol mode.
func (c *Controller) Protocol() byte {
	if c.bootMode {
		return ProtocolBoot
	}

	return ProtocolReport
}

func handshake(code byte) ControlResult {
	return ControlResult{Reply: []byte{TransHandshake | code}}
}

// Package transport abstracts the Bluetooth HID links (classic and LE) the
// keyboard application sends reports through. The application only needs a
// narrow "send these bytes as this report" primitive plus link state; pairing,
// bonding and the GATT/SDP machinery stay behind this boundary.
package transport

// ReportKind mirrors the HID report types exchanged with a host.
type ReportKind uint8

const (
	ReportKindOther ReportKind = iota
	ReportKindInput
	ReportKindOutput
	ReportKindFeature
)

func (k ReportKind) String() string {
	switch k {
	case ReportKindInput:
		return "input"
	case ReportKindOutput:
		return "output"
	case ReportKindFeature:
		return "feature"
	default:
		return "other"
	}
}

// Carrier identifies which physical link a dual-mode device is using.
type Carrier uint8

const (
	CarrierNone Carrier = iota
	CarrierClassic
	CarrierLE
)

func (c Carrier) String() string {
	switch c {
	case CarrierClassic:
		return "br/edr"
	case CarrierLE:
		return "le"
	default:
		return "none"
	}
}

// LinkState is the connection state reported by a link observer callback.
type LinkState uint8

const (
	LinkDisconnected LinkState = iota
	LinkConnected
	LinkDiscoverable
	LinkReconnecting
	LinkAdvertisingSpecial
)

// Transport delivers HID reports to the connected host.
//
// BufferUtilization reports how full the transmit path is in percent; the
// application throttles report generation above a threshold rather than
// blocking. SendReport must not block.
type Transport interface {
	SendReport(id uint8, kind ReportKind, payload []byte) error
	Connected() bool
	BufferUtilization() int
}

// Link is the control surface of the active transport beyond report delivery.
type Link interface {
	Transport
	ActiveCarrier() Carrier
	Connect()
	Disconnect()
	VirtualCableUnplug()
	EnterPairing()
}

// AuthSink receives the results of PIN and passkey entry from the keyboard.
// It is implemented by the authenticating transport.
type AuthSink interface {
	// PinCode delivers a completed legacy PIN (digits as typed, not
	// null-terminated).
	PinCode(pin []byte)
	// PassCode delivers a completed, null-terminated passkey buffer.
	PassCode(code []byte)
	// PassCodeKeyPress reports passkey entry progress (start, char,
	// backspace, restart, stop) while entry is ongoing.
	PassCodeKeyPress(event uint8)
}

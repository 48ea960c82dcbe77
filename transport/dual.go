package transport

// Dual pairs a classic and an LE transport and routes reports to whichever
// carrier the bonded host uses. Carrier selection follows the link-state
// observer: the last carrier to report LinkConnected becomes active until it
// disconnects.
type Dual struct {
	classic Transport
	le      Transport
	active  Carrier

	control Control
}

// Control is the subset of link operations a Dual delegates to the underlying
// stack glue. Implementations may ignore operations that do not apply.
type Control interface {
	Connect()
	Disconnect()
	VirtualCableUnplug()
	EnterPairing()
}

// NewDual builds a dual-mode link. control may be nil, in which case the
// control operations are no-ops.
func NewDual(classic, le Transport, control Control) *Dual {
	return &Dual{classic: classic, le: le, control: control}
}

// SetActiveCarrier selects which transport subsequent reports go to.
func (d *Dual) SetActiveCarrier(c Carrier) {
	d.active = c
}

// ActiveCarrier reports the carrier currently used by the bonded host.
func (d *Dual) ActiveCarrier() Carrier {
	return d.active
}

func (d *Dual) current() Transport {
	switch d.active {
	case CarrierLE:
		return d.le
	case CarrierClassic:
		return d.classic
	default:
		return nil
	}
}

// SendReport forwards to the active carrier's transport.
func (d *Dual) SendReport(id uint8, kind ReportKind, payload []byte) error {
	t := d.current()
	if t == nil {
		return ErrNotConnected
	}
	return t.SendReport(id, kind, payload)
}

// Connected reports whether the active carrier has a live connection.
func (d *Dual) Connected() bool {
	t := d.current()
	return t != nil && t.Connected()
}

// BufferUtilization reports the active carrier's transmit fill level; with no
// active carrier the path is considered saturated.
func (d *Dual) BufferUtilization() int {
	t := d.current()
	if t == nil {
		return 100
	}
	return t.BufferUtilization()
}

func (d *Dual) Connect() {
	if d.control != nil {
		d.control.Connect()
	}
}

func (d *Dual) Disconnect() {
	if d.control != nil {
		d.control.Disconnect()
	}
}

func (d *Dual) VirtualCableUnplug() {
	if d.control != nil {
		d.control.VirtualCableUnplug()
	}
}

func (d *Dual) EnterPairing() {
	if d.control != nil {
		d.control.EnterPairing()
	}
}

// Package hidevent defines the hardware event model shared by the keyscan and
// scroll drivers and the keyboard application, plus the bounded FIFO that
// carries events from interrupt context into the poll cycle.
package hidevent

// Kind discriminates the event union.
type Kind uint8

const (
	// KindKey is a key state change (press or release) from the keyscan driver.
	KindKey Kind = iota
	// KindMotion is a single-axis motion delta from the quadrature driver.
	KindMotion
	// KindOverflow marks that the event FIFO overflowed and events were lost.
	KindOverflow
	// KindUserDefined is reserved for application-defined event sources.
	KindUserDefined
)

// EndOfScanCycle is the reserved key code emitted by the keyscan driver at the
// end of every scan cycle. It is not a real key and never appears in a key
// translation table.
const EndOfScanCycle uint8 = 0xFE

// Event is a tagged union of all hardware event variants. Only the fields
// relevant to Kind are meaningful. PollSeqn is stamped by the queue on insert
// and identifies the poll cycle during which the event was captured.
type Event struct {
	Kind     Kind
	Code     uint8 // key scan code, KindKey only
	Down     bool  // key direction, KindKey only
	Motion   int16 // axis delta, KindMotion only
	PollSeqn uint32
}

// KeyEvent builds a key state change event.
func KeyEvent(code uint8, down bool) Event {
	return Event{Kind: KindKey, Code: code, Down: down}
}

// MotionEvent builds a scroll motion event.
func MotionEvent(delta int16) Event {
	return Event{Kind: KindMotion, Motion: delta}
}

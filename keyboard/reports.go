package keyboard

// StandardReport is the classic 8-byte-style keyboard input report: one
// modifier bitmask, a reserved byte and up to MaxKeysInStdReport usage codes.
// The key code array is an unordered set; removal swaps with the last entry.
type StandardReport struct {
	ReportID  uint8
	Modifiers uint8
	Reserved  uint8
	Keys      [MaxKeysInStdReport]uint8
}

// Bytes encodes the report. withID controls whether the report ID prefixes
// the payload; LE notifications identify the report by attribute handle and
// omit it, the classic interrupt channel carries it.
func (r *StandardReport) Bytes(slots int, withID bool) []byte {
	body := make([]byte, 0, 3+slots)
	if withID {
		body = append(body, r.ReportID)
	}
	body = append(body, r.Modifiers, r.Reserved)
	body = append(body, r.Keys[:slots]...)
	return body
}

// BitMappedReport tracks one bit per configured bit mapped key.
type BitMappedReport struct {
	ReportID uint8
	keys     bitset
}

func newBitMappedReport(id uint8, numKeys int) BitMappedReport {
	return BitMappedReport{ReportID: id, keys: newBitset(numKeys)}
}

func (r *BitMappedReport) Bytes(withID bool) []byte {
	body := make([]byte, 0, 1+len(r.keys.bits))
	if withID {
		body = append(body, r.ReportID)
	}
	return append(body, r.keys.bits...)
}

// SleepReport carries the sleep key bit.
type SleepReport struct {
	ReportID uint8
	SleepVal uint8
}

func (r *SleepReport) Bytes(withID bool) []byte {
	if withID {
		return []byte{r.ReportID, r.SleepVal}
	}
	return []byte{r.SleepVal}
}

// Func-lock report status layout: bit 0 is the lock state, bit 1 is the
// "state changed by a key event" flag.
const funcLockEventFlag = 0x02

// FuncLockReport reports the state of func-lock, not of the func-lock key.
type FuncLockReport struct {
	ReportID uint8
	Status   uint8
}

func (r *FuncLockReport) Bytes(withID bool) []byte {
	if withID {
		return []byte{r.ReportID, r.Status}
	}
	return []byte{r.Status}
}

// ScrollReport carries accumulated signed motion for one poll.
type ScrollReport struct {
	ReportID uint8
	Motion   int16
}

func (r *ScrollReport) Bytes(withID bool) []byte {
	lo := byte(uint16(r.Motion) & 0xFF)
	hi := byte(uint16(r.Motion) >> 8)
	if withID {
		return []byte{r.ReportID, lo, hi}
	}
	return []byte{lo, hi}
}

// Scroll usage pulses sent on the LE path, which reports scroll as discrete
// volume steps rather than signed motion.
const (
	scrollUsageVolumeUp   = 0x01
	scrollUsageVolumeDown = 0x02
)

// BatteryReport carries the battery level percentage.
type BatteryReport struct {
	ReportID uint8
	Level    uint8
}

func (r *BatteryReport) Bytes(withID bool) []byte {
	if withID {
		return []byte{r.ReportID, r.Level}
	}
	return []byte{r.Level}
}

// LEDReport mirrors the host-controlled LED state.
type LEDReport struct {
	ReportID  uint8
	LEDStates uint8
}

func (r *LEDReport) Bytes(withID bool) []byte {
	if withID {
		return []byte{r.ReportID, r.LEDStates}
	}
	return []byte{r.LEDStates}
}

// PinReport carries one pin-entry progress code during legacy PIN entry.
type PinReport struct {
	ReportID   uint8
	ReportCode uint8
}

func (r *PinReport) Bytes(withID bool) []byte {
	if withID {
		return []byte{r.ReportID, r.ReportCode}
	}
	return []byte{r.ReportCode}
}

// newRolloverReport builds the constant "all keys maxed" standard report image
// sent to the host when key state becomes indeterminate after a fault. It is
// never mutated at runtime.
func newRolloverReport(id uint8) StandardReport {
	r := StandardReport{ReportID: id}
	for i := range r.Keys {
		r.Keys[i] = RolloverUsage
	}
	return r
}

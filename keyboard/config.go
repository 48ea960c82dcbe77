package keyboard

// KeyKind classifies a scan code for report accumulation.
type KeyKind uint8

const (
	// KindNone keys are ignored entirely.
	KindNone KeyKind = iota
	// KindStandard keys go into the standard report's key code array.
	KindStandard
	// KindModifier keys toggle bits in the standard report's modifier mask.
	KindModifier
	// KindBitMapped keys toggle a single bit in the bit mapped report.
	KindBitMapped
	// KindSleep keys toggle a bit in the sleep report.
	KindSleep
	// KindFuncLock is the func-lock toggle key itself.
	KindFuncLock
	// KindFuncLockDep keys re-route to the standard or bit mapped handler
	// depending on the current func-lock state.
	KindFuncLockDep
	// KindUserDefined keys are passed to the application's user key hook.
	KindUserDefined
)

// KeyEntry translates one raw scan code.
//
// The meaning of Code depends on Kind: a usage code for standard keys, a
// modifier bitmask for modifier keys, a row/col bit position for bit mapped
// keys, a sleep bitmask for sleep keys and an index into the func-lock
// dependent table for KindFuncLockDep.
type KeyEntry struct {
	Kind KeyKind
	Code uint8
}

// FuncLockDepEntry gives both interpretations of a func-lock dependent key.
type FuncLockDepEntry struct {
	// BitCode is the row/col bit position used while func-lock is off.
	BitCode uint8
	// StdCode is the usage code used while func-lock is on (or in boot
	// protocol, where func-lock is assumed on).
	StdCode uint8
}

// FuncLockState is the sticky func-lock toggle value.
type FuncLockState uint8

const (
	FuncLockOff FuncLockState = 0
	FuncLockOn  FuncLockState = 1
)

// MaxKeysInStdReport is the hard upper bound on key slots in the standard
// report; Config.MaxKeysInStdReport may configure fewer but never more.
const MaxKeysInStdReport = 6

// Default pin/passkey digit buffer capacities. A Bluetooth legacy PIN may be
// up to 16 digits; a passkey is at most 6.
const (
	MaxPinSize  = 16
	MaxPassSize = 6
)

// Config carries the static keyboard application configuration. It is
// immutable once the App is created.
type Config struct {
	// MaxKeysInStdReport is the number of usable key slots in the standard
	// report (clamped to MaxKeysInStdReport).
	MaxKeysInStdReport int `help:"Key slots in the standard report" default:"6"`
	// NumBitMappedKeys is the number of bit positions in the bit mapped
	// report; the report size is derived from it.
	NumBitMappedKeys int `help:"Bit positions in the bit mapped report" default:"18"`

	// Report IDs.
	StdReportID      uint8 `default:"1"`
	BitReportID      uint8 `default:"2"`
	BatteryReportID  uint8 `default:"3"`
	SleepReportID    uint8 `default:"4"`
	FuncLockReportID uint8 `default:"5"`
	ScrollReportID   uint8 `default:"6"`
	PinReportID      uint8 `default:"7"`
	LEDReportID      uint8 `default:"14"`

	// RecoveryPollCount is how many polls report transmission stays
	// suppressed after the standard error response.
	RecoveryPollCount int `help:"Polls to suppress reports after a fault" default:"3"`

	// EventQueueSize bounds the hardware event FIFO.
	EventQueueSize int `help:"Capacity of the hardware event queue" default:"24"`

	// ConnectButtonScanIndex is the scan code of the pairing button; its
	// events bypass the event queue.
	ConnectButtonScanIndex uint8 `default:"255"`

	// Scroll handling.
	NegateScroll    bool  `help:"Invert scroll direction"`
	ScrollScale     uint8 `help:"Right-shift applied to accumulated scroll; 0 disables scaling" default:"1"`
	ScrollCombining bool  `help:"Combine all queued scroll events into one report" default:"true"`
	// PollsToKeepFracScroll discards carried fractional scroll motion after
	// this many consecutive scroll-free polls; 0 keeps it forever.
	PollsToKeepFracScroll uint8 `default:"50"`

	DefaultFuncLockState FuncLockState `kong:"-"`
	DefaultLEDState      uint8         `kong:"-"`
}

// DefaultConfig mirrors the stock dual-mode keyboard configuration.
func DefaultConfig() Config {
	return Config{
		MaxKeysInStdReport:     6,
		NumBitMappedKeys:       18,
		StdReportID:            1,
		BitReportID:            2,
		BatteryReportID:        3,
		SleepReportID:          4,
		FuncLockReportID:       5,
		ScrollReportID:         6,
		PinReportID:            7,
		LEDReportID:            14,
		RecoveryPollCount:      3,
		EventQueueSize:         24,
		ConnectButtonScanIndex: 255,
		ScrollScale:            1,
		ScrollCombining:        true,
		PollsToKeepFracScroll:  50,
		DefaultFuncLockState:   FuncLockOff,
	}
}

// DefaultFuncLockDepTable is the stock translation table for func-lock
// dependent keys: media/system functions while func-lock is off, F-row usage
// codes while it is on.
func DefaultFuncLockDepTable() []FuncLockDepEntry {
	return []FuncLockDepEntry{
		{0x03, KeyF1},  // Home / F1
		{0x05, KeyF2},  // Lock / F2
		{0x08, KeyF3},  // Assistant / F3
		{0x06, KeyF4},  // Search / F4
		{0x09, KeyF5},  // Language / F5
		{0x0D, KeyF6},  // Eject / F6
		{0x0B, KeyF7},  // Previous track / F7
		{0x0E, KeyF8},  // Play-pause / F8
		{0x0C, KeyF9},  // Next track / F9
		{0x11, KeyF10}, // Mute / F10
		{0x10, KeyF11}, // Volume down / F11
		{0x0F, KeyF12}, // Volume up / F12
		{0x00, KeyPower},
	}
}

// DefaultKeyTable builds the stock scan-code translation table. Scan codes
// index the slice; anything past its length is treated as a ghost code by the
// classifier.
func DefaultKeyTable() []KeyEntry {
	t := make([]KeyEntry, 96)

	// Letter block, scan codes 0..25.
	for i := 0; i < 26; i++ {
		t[i] = KeyEntry{Kind: KindStandard, Code: uint8(KeyA + i)}
	}
	// Number row, scan codes 26..35.
	for i := 0; i < 9; i++ {
		t[26+i] = KeyEntry{Kind: KindStandard, Code: uint8(Key1 + i)}
	}
	t[35] = KeyEntry{Kind: KindStandard, Code: Key0}

	// Editing and whitespace.
	t[36] = KeyEntry{Kind: KindStandard, Code: KeyEnter}
	t[37] = KeyEntry{Kind: KindStandard, Code: KeyEscape}
	t[38] = KeyEntry{Kind: KindStandard, Code: KeyBackspace}
	t[39] = KeyEntry{Kind: KindStandard, Code: KeyTab}
	t[40] = KeyEntry{Kind: KindStandard, Code: KeySpace}
	t[41] = KeyEntry{Kind: KindStandard, Code: KeyDelete}
	t[42] = KeyEntry{Kind: KindStandard, Code: KeyCapsLock}

	// Arrows.
	t[43] = KeyEntry{Kind: KindStandard, Code: KeyRight}
	t[44] = KeyEntry{Kind: KindStandard, Code: KeyLeft}
	t[45] = KeyEntry{Kind: KindStandard, Code: KeyDown}
	t[46] = KeyEntry{Kind: KindStandard, Code: KeyUp}

	// Numeric keypad, scan codes 48..58.
	t[48] = KeyEntry{Kind: KindStandard, Code: KeyKp0}
	for i := 0; i < 9; i++ {
		t[49+i] = KeyEntry{Kind: KindStandard, Code: uint8(KeyKp1 + i)}
	}
	t[58] = KeyEntry{Kind: KindStandard, Code: KeyKpEnter}

	// Modifiers, scan codes 60..67.
	mods := []uint8{
		ModLeftCtrl, ModLeftShift, ModLeftAlt, ModLeftGUI,
		ModRightCtrl, ModRightShift, ModRightAlt, ModRightGUI,
	}
	for i, m := range mods {
		t[60+i] = KeyEntry{Kind: KindModifier, Code: m}
	}

	// Func-lock toggle and its dependent keys (indices into the dependent
	// table), scan codes 68..81.
	t[68] = KeyEntry{Kind: KindFuncLock}
	for i := 0; i < 13; i++ {
		t[69+i] = KeyEntry{Kind: KindFuncLockDep, Code: uint8(i)}
	}

	// Sleep key.
	t[82] = KeyEntry{Kind: KindSleep, Code: 0x01}

	// Directly bit mapped media keys.
	t[83] = KeyEntry{Kind: KindBitMapped, Code: 0x01}
	t[84] = KeyEntry{Kind: KindBitMapped, Code: 0x02}
	t[85] = KeyEntry{Kind: KindBitMapped, Code: 0x04}

	return t
}

/*Package visa addresses instruments with VISA resource strings and opens
line-terminated sessions to them.

The pure Go backends cover the links found on a lab bench:

	TCPIP[board]::host::port::SOCKET        raw SCPI socket
	ASRL<n or path>[::INSTR]                RS-232
	USB[board]::vid::pid::serial[::INSTR]   USBTMC
	GPIB[board]::pad[::INSTR]               through a Prologix GPIB-USB adapter

With Library set to "ni" and the module built with -tags visa, every
resource is instead opened through the system's NI-VISA installation.
*/
package visa

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultPort is the raw SCPI socket port
	DefaultPort = 5025

	// DefaultTimeout is the I/O timeout of a new session
	DefaultTimeout = 3 * time.Second

	// DefaultIdleTimeout is how long an unused socket connection stays open
	DefaultIdleTimeout = time.Minute

	// DefaultBaud is the baud rate of ASRL resources
	DefaultBaud = 9600
)

var (
	// ErrTimeout is generated when an I/O operation exceeds the session timeout
	ErrTimeout = errors.New("VISA I/O timeout")

	// ErrUnsupported is generated for resources no backend can open
	ErrUnsupported = errors.New("resource not supported by this backend")

	// ErrClosed is generated when a closed session is used
	ErrClosed = errors.New("session is closed")

	// ErrNativeUnavailable is generated when the native library is requested
	// but the module was built without -tags visa
	ErrNativeUnavailable = errors.New("native VISA library not compiled in, rebuild with -tags visa")
)

// ConnectionError is returned when a resource cannot be opened
type ConnectionError struct {
	Resource string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot open %s: %v", e.Resource, e.Err)
}

// Unwrap returns the underlying cause
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// RENMode is an operation on the GPIB remote enable line
type RENMode int

const (
	// RENAssertAddress asserts REN and addresses the device, leaving it in remote
	RENAssertAddress RENMode = iota
	// RENDeassert releases REN
	RENDeassert
	// RENAssert asserts REN
	RENAssert
	// RENDeassertGTL sends go to local and releases REN
	RENDeassertGTL
	// RENAssertLLO asserts REN and sends local lockout
	RENAssertLLO
	// RENAssertAddressLLO addresses the device and sends local lockout
	RENAssertAddressLLO
	// RENAddressGTL addresses the device and sends go to local
	RENAddressGTL
	// RENNone leaves the line alone
	RENNone
)

func (m RENMode) asserts() bool {
	switch m {
	case RENAssert, RENAssertAddress, RENAssertLLO, RENAssertAddressLLO:
		return true
	}
	return false
}

// Config holds the parameters of a connection
type Config struct {
	// Interface selects how a bare address is expanded: GPIB, SOCKET,
	// or empty to use the address as a full resource string
	Interface string `yaml:"Interface" koanf:"Interface"`

	// Port is the TCP port of SOCKET resources
	Port int `yaml:"Port" koanf:"Port"`

	// CardNumber is the GPIB board index
	CardNumber int `yaml:"CardNumber" koanf:"CardNumber"`

	// Timeout is the I/O timeout
	Timeout time.Duration `yaml:"Timeout" koanf:"Timeout"`

	// ReadTermination and WriteTermination terminate messages, '\n' if zero
	ReadTermination  byte `yaml:"-" koanf:"-"`
	WriteTermination byte `yaml:"-" koanf:"-"`

	// REN is applied to INSTR resources when they are opened
	REN RENMode `yaml:"REN" koanf:"REN"`

	// Library is "" or "@py" for the pure Go backends, "ni" for NI-VISA
	Library string `yaml:"Library" koanf:"Library"`

	// Manager, if not nil, owns the session
	Manager *ResourceManager `yaml:"-" koanf:"-"`

	// BaudRate is used by ASRL resources
	BaudRate int `yaml:"BaudRate" koanf:"BaudRate"`

	// PrologixPort is the serial port of a Prologix GPIB-USB controller
	// used to reach GPIB resources
	PrologixPort string `yaml:"PrologixPort" koanf:"PrologixPort"`

	// MinInterval, if nonzero, is the minimum spacing between commands
	MinInterval time.Duration `yaml:"MinInterval" koanf:"MinInterval"`

	// IdleTimeout closes socket connections which sit unused this long;
	// they are re-opened transparently
	IdleTimeout time.Duration `yaml:"IdleTimeout" koanf:"IdleTimeout"`
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ReadTermination == 0 {
		c.ReadTermination = '\n'
	}
	if c.WriteTermination == 0 {
		c.WriteTermination = '\n'
	}
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaud
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	return c
}

// BuildResourceString expands address into a resource string according to
// cfg.Interface.  GPIB addresses are combined with the card number and
// SOCKET addresses with the port; anything else is returned unchanged.
func BuildResourceString(address string, cfg Config) string {
	switch strings.ToUpper(cfg.Interface) {
	case "GPIB":
		return fmt.Sprintf("GPIB%d::%s::INSTR", cfg.CardNumber, address)
	case "SOCKET":
		port := cfg.Port
		if port == 0 {
			port = DefaultPort
		}
		return fmt.Sprintf("TCPIP0::%s::%d::SOCKET", address, port)
	default:
		return address
	}
}

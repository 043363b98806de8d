package visa

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Resource is a parsed resource string
type Resource struct {
	// Interface is GPIB, TCPIP, ASRL, or USB
	Interface string

	// Board is the interface index, e.g. the 0 in GPIB0
	Board int

	// Class is INSTR or SOCKET
	Class string

	// Host and Port address TCPIP resources
	Host string
	Port int

	// Device is the LAN device name of TCPIP INSTR resources, or the serial
	// port of ASRL resources
	Device string

	// Primary and Secondary are GPIB addresses; Secondary is -1 if absent
	Primary   int
	Secondary int

	// VendorID, ProductID, Serial, and USBInterface identify USB resources
	VendorID     uint16
	ProductID    uint16
	Serial       string
	USBInterface int

	raw string
}

func (r Resource) String() string {
	return r.raw
}

// IsInstr is true for INSTR class resources
func (r Resource) IsInstr() bool {
	return r.Class == "INSTR"
}

func malformed(s, why string) error {
	return fmt.Errorf("malformed resource string %q: %s", s, why)
}

// splitPrefix splits GPIB0 into GPIB, 0
func splitPrefix(head, kind string) (int, error) {
	rest := head[len(kind):]
	if rest == "" {
		return 0, nil
	}
	return strconv.Atoi(rest)
}

func parseUint16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	return uint16(v), err
}

// ParseResource parses a VISA resource string
func ParseResource(s string) (Resource, error) {
	r := Resource{raw: s, Secondary: -1}
	parts := strings.Split(strings.TrimSpace(s), "::")
	head := strings.ToUpper(parts[0])
	last := strings.ToUpper(parts[len(parts)-1])
	var err error
	switch {
	case strings.HasPrefix(head, "GPIB"):
		r.Interface = "GPIB"
		if r.Board, err = splitPrefix(head, "GPIB"); err != nil {
			return r, malformed(s, "bad board number")
		}
		if last == "INSTR" {
			parts = parts[:len(parts)-1]
		}
		if len(parts) < 2 || len(parts) > 3 {
			return r, malformed(s, "expected GPIB[board]::primary[::secondary][::INSTR]")
		}
		if r.Primary, err = strconv.Atoi(parts[1]); err != nil || r.Primary < 0 || r.Primary > 30 {
			return r, malformed(s, "primary address must be 0-30")
		}
		if len(parts) == 3 {
			if r.Secondary, err = strconv.Atoi(parts[2]); err != nil {
				return r, malformed(s, "bad secondary address")
			}
		}
		r.Class = "INSTR"
	case strings.HasPrefix(head, "TCPIP"):
		r.Interface = "TCPIP"
		if r.Board, err = splitPrefix(head, "TCPIP"); err != nil {
			return r, malformed(s, "bad board number")
		}
		if last == "SOCKET" {
			if len(parts) != 4 {
				return r, malformed(s, "expected TCPIP[board]::host::port::SOCKET")
			}
			r.Host = parts[1]
			if r.Port, err = strconv.Atoi(parts[2]); err != nil {
				return r, malformed(s, "bad port")
			}
			r.Class = "SOCKET"
			break
		}
		if last == "INSTR" {
			parts = parts[:len(parts)-1]
		}
		if len(parts) < 2 || len(parts) > 3 {
			return r, malformed(s, "expected TCPIP[board]::host[::device][::INSTR]")
		}
		r.Host = parts[1]
		r.Device = "inst0"
		if len(parts) == 3 {
			r.Device = parts[2]
		}
		r.Class = "INSTR"
	case strings.HasPrefix(head, "ASRL"):
		r.Interface = "ASRL"
		if len(parts) > 2 || (len(parts) == 2 && last != "INSTR") {
			return r, malformed(s, "expected ASRL<port>[::INSTR]")
		}
		r.Device = serialDevice(parts[0][len("ASRL"):])
		if r.Device == "" {
			return r, malformed(s, "missing serial port")
		}
		r.Class = "INSTR"
	case strings.HasPrefix(head, "USB"):
		r.Interface = "USB"
		if r.Board, err = splitPrefix(head, "USB"); err != nil {
			return r, malformed(s, "bad board number")
		}
		if last == "INSTR" {
			parts = parts[:len(parts)-1]
		}
		if len(parts) < 4 || len(parts) > 5 {
			return r, malformed(s, "expected USB[board]::vid::pid::serial[::interface][::INSTR]")
		}
		if r.VendorID, err = parseUint16(parts[1]); err != nil {
			return r, malformed(s, "bad vendor ID")
		}
		if r.ProductID, err = parseUint16(parts[2]); err != nil {
			return r, malformed(s, "bad product ID")
		}
		r.Serial = parts[3]
		if len(parts) == 5 {
			if r.USBInterface, err = strconv.Atoi(parts[4]); err != nil {
				return r, malformed(s, "bad interface number")
			}
		}
		r.Class = "INSTR"
	default:
		return r, malformed(s, "unknown interface type")
	}
	return r, nil
}

// serialDevice maps the tail of an ASRL resource to an OS serial port.
// Numbers are VISA's 1-based port indices.
func serialDevice(tail string) string {
	if tail == "" {
		return ""
	}
	n, err := strconv.Atoi(tail)
	if err != nil {
		return tail
	}
	if runtime.GOOS == "windows" {
		return fmt.Sprintf("COM%d", n)
	}
	return fmt.Sprintf("/dev/ttyS%d", n-1)
}

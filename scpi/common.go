package scpi

import (
	"fmt"
	"strconv"
	"strings"
)

// Standard Event Status Register bits, IEEE 488.2 section 11.5.1
const (
	ESROperationComplete = 1 << iota
	ESRRequestControl
	ESRQueryError
	ESRDeviceError
	ESRExecutionError
	ESRCommandError
	ESRUserRequest
	ESRPowerOn
)

// Identity is the parsed reply to *IDN?
type Identity struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Serial       string `json:"serial"`
	Firmware     string `json:"firmware"`
}

// ParseIdentity splits an *IDN? reply into its four fields.  Missing fields
// are left empty.
func ParseIdentity(s string) Identity {
	parts := strings.SplitN(strings.TrimSpace(s), ",", 4)
	for len(parts) < 4 {
		parts = append(parts, "")
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return Identity{Manufacturer: parts[0], Model: parts[1], Serial: parts[2], Firmware: parts[3]}
}

func (id Identity) String() string {
	return strings.Join([]string{id.Manufacturer, id.Model, id.Serial, id.Firmware}, ",")
}

func (s *Instrument) readByte(cmd string) (uint8, error) {
	i, err := s.ReadInt(cmd)
	if err != nil {
		return 0, err
	}
	if i < 0 || i > 255 {
		return 0, fmt.Errorf("%s: register value %d out of range", cmd, i)
	}
	return uint8(i), nil
}

// ClearStatus clears the status byte and event registers, *CLS
func (s *Instrument) ClearStatus() error {
	return s.Write("*CLS")
}

// SetEventStatusEnable sets the standard event status enable mask, *ESE
func (s *Instrument) SetEventStatusEnable(mask uint8) error {
	return s.Write("*ESE", strconv.Itoa(int(mask)))
}

// EventStatusEnable queries the standard event status enable mask, *ESE?
func (s *Instrument) EventStatusEnable() (uint8, error) {
	return s.readByte("*ESE?")
}

// EventStatusRegister queries and clears the standard event status register, *ESR?
func (s *Instrument) EventStatusRegister() (uint8, error) {
	return s.readByte("*ESR?")
}

// IDN returns the raw identification string, *IDN?
func (s *Instrument) IDN() (string, error) {
	return s.ReadString("*IDN?")
}

// Identify returns the parsed identification, *IDN?
func (s *Instrument) Identify() (Identity, error) {
	str, err := s.IDN()
	if err != nil {
		return Identity{}, err
	}
	return ParseIdentity(str), nil
}

// SetOperationComplete sets the OPC bit once pending operations finish, *OPC
func (s *Instrument) SetOperationComplete() error {
	return s.Write("*OPC")
}

// WaitUntilFinished blocks until pending operations finish, *OPC?
func (s *Instrument) WaitUntilFinished() error {
	resp, err := s.ReadString("*OPC?")
	if err != nil {
		return err
	}
	if strings.TrimSpace(resp) != "1" {
		return fmt.Errorf("*OPC? returned %q", resp)
	}
	return nil
}

// Options returns the installed options, *OPT?
func (s *Instrument) Options() ([]string, error) {
	resp, err := s.ReadString("*OPT?")
	if err != nil {
		return nil, err
	}
	return SplitCSV(resp), nil
}

// Reset returns the instrument to its default state, *RST
func (s *Instrument) Reset() error {
	return s.Write("*RST")
}

// SetServiceRequestEnable sets the service request enable mask, *SRE
func (s *Instrument) SetServiceRequestEnable(mask uint8) error {
	return s.Write("*SRE", strconv.Itoa(int(mask)))
}

// ServiceRequestEnable queries the service request enable mask, *SRE?
func (s *Instrument) ServiceRequestEnable() (uint8, error) {
	return s.readByte("*SRE?")
}

// StatusByte queries the status byte, *STB?
func (s *Instrument) StatusByte() (uint8, error) {
	return s.readByte("*STB?")
}

// SelfTest runs the self test, *TST?.  A nonzero result is returned
// along with an error.
func (s *Instrument) SelfTest() (int, error) {
	code, err := s.ReadInt("*TST?")
	if err != nil {
		return 0, err
	}
	if code != 0 {
		return code, fmt.Errorf("self test failed with code %d", code)
	}
	return 0, nil
}

// Wait holds off further commands until pending ones finish, *WAI
func (s *Instrument) Wait() error {
	return s.Write("*WAI")
}

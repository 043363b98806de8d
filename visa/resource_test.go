package visa

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestBuildResourceString(t *testing.T) {
	cases := []struct {
		addr string
		cfg  Config
		exp  string
	}{
		{"16", Config{Interface: "GPIB"}, "GPIB0::16::INSTR"},
		{"16", Config{Interface: "gpib", CardNumber: 1}, "GPIB1::16::INSTR"},
		{"192.168.1.20", Config{Interface: "SOCKET"}, "TCPIP0::192.168.1.20::5025::SOCKET"},
		{"192.168.1.20", Config{Interface: "SOCKET", Port: 5026}, "TCPIP0::192.168.1.20::5026::SOCKET"},
		{"TCPIP0::zva::inst0::INSTR", Config{}, "TCPIP0::zva::inst0::INSTR"},
		{"ASRL3::INSTR", Config{Interface: "serial"}, "ASRL3::INSTR"},
	}
	for _, c := range cases {
		if got := BuildResourceString(c.addr, c.cfg); got != c.exp {
			t.Errorf("BuildResourceString(%q, %+v) = %q, expected %q", c.addr, c.cfg, got, c.exp)
		}
	}
}

func TestParseResource(t *testing.T) {
	cases := []struct {
		in  string
		exp Resource
	}{
		{"GPIB0::20::INSTR", Resource{Interface: "GPIB", Class: "INSTR", Primary: 20, Secondary: -1}},
		{"GPIB1::5::96", Resource{Interface: "GPIB", Board: 1, Class: "INSTR", Primary: 5, Secondary: 96}},
		{"TCPIP0::10.0.0.4::5025::SOCKET", Resource{Interface: "TCPIP", Class: "SOCKET", Host: "10.0.0.4", Port: 5025, Secondary: -1}},
		{"TCPIP::zva24::INSTR", Resource{Interface: "TCPIP", Class: "INSTR", Host: "zva24", Device: "inst0", Secondary: -1}},
		{"TCPIP0::zva24::hislip0::INSTR", Resource{Interface: "TCPIP", Class: "INSTR", Host: "zva24", Device: "hislip0", Secondary: -1}},
		{"ASRL/dev/ttyUSB0::INSTR", Resource{Interface: "ASRL", Class: "INSTR", Device: "/dev/ttyUSB0", Secondary: -1}},
		{"USB0::0x0AAD::0x0119::100234::INSTR", Resource{Interface: "USB", Class: "INSTR", VendorID: 0x0aad, ProductID: 0x0119, Serial: "100234", Secondary: -1}},
	}
	for _, c := range cases {
		got, err := ParseResource(c.in)
		if err != nil {
			t.Errorf("%s: %v", c.in, err)
			continue
		}
		if diff := cmp.Diff(c.exp, got, cmpopts.IgnoreUnexported(Resource{})); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", c.in, diff)
		}
		if got.String() != c.in {
			t.Errorf("String() should return the original, got %q", got.String())
		}
	}
}

func TestParseResourceRejects(t *testing.T) {
	for _, s := range []string{
		"GPIB0::99::INSTR",
		"GPIB0::x::INSTR",
		"TCPIP0::host::SOCKET",
		"TCPIP0::host::port::SOCKET",
		"USB0::0xZZ::0x1::1::INSTR",
		"PXI0::1::INSTR",
		"ASRL::INSTR",
	} {
		if _, err := ParseResource(s); err == nil {
			t.Errorf("expected %q to be rejected", s)
		}
	}
}

func TestIsInstr(t *testing.T) {
	r, _ := ParseResource("TCPIP0::h::5025::SOCKET")
	if r.IsInstr() {
		t.Error("sockets are not INSTR resources")
	}
	r, _ = ParseResource("GPIB0::1::INSTR")
	if !r.IsInstr() {
		t.Error("GPIB resources are INSTR resources")
	}
}

func TestRENModeAsserts(t *testing.T) {
	if !RENAssertAddress.asserts() || RENDeassertGTL.asserts() || RENAddressGTL.asserts() {
		t.Error("REN mode classification is wrong")
	}
}

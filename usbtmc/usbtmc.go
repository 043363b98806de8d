/*Package usbtmc implements datagram encoding and decoding for USB Test and
Measurement Class devices, and a USBDevice which speaks it over bulk
endpoints as an io.ReadWriteCloser.

To send a message:
1.  Write the DEV_DEP_MSG_OUT header
2.  Write the data
3.  Pad the total transmission to a multiple of 4 bytes

To receive a message:
1.  Send a REQUEST_DEV_DEP_MSG_IN header on the Out endpoint
2.  Read from the In endpoint; the first 12 bytes are a header describing
    the transfer size and whether this is the end of the message
3.  Repeat until the end of message bit is set

Large responses (e.g. binary trace data) span several transfers, which
Read stitches back together.
*/
package usbtmc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"
)

const (
	// reserved is the byte to insert in reserved header fields
	reserved = 0x00

	headerSize = 12

	alignment = 4

	msgDevDepOut    = 0x01
	msgRequestDevIn = 0x02

	// usb488RENControl is the USB488 subclass request to drive the REN line
	usb488RENControl = 160

	// maxTransfer is the largest transfer requested in one REQUEST_DEV_DEP_MSG_IN
	maxTransfer = 1 << 20
)

var (
	// ErrShortHeader is generated when fewer than 12 bytes arrive on the In endpoint
	ErrShortHeader = errors.New("bulk-in transfer shorter than the 12 byte header")

	// ErrTagMismatch is generated when a response does not carry the tag of its request
	ErrTagMismatch = errors.New("bulk-in bTag does not match the request")

	// ErrNoDevice is generated when no device matches the requested IDs
	ErrNoDevice = errors.New("no matching USBTMC device")
)

// bTagGen is a concurrent-safe bTag generator cycling through 1..255
type bTagGen struct {
	sync.Mutex

	value byte
}

func (b *bTagGen) next() byte {
	b.Lock()
	defer b.Unlock()
	b.value++
	if b.value == 0 {
		b.value = 1
	}
	return b.value
}

// invbTag computes the bitwise inversion of a btag, per USBTMC standard table 1 offset 2
func invbTag(b byte) byte {
	return b ^ 0xff
}

// encBulkOutHeader creates the header defined in USBTMC standard, Table 3
func encBulkOutHeader(tag byte, datalen int, eom bool) [headerSize]byte {
	out := [headerSize]byte{}
	out[0] = msgDevDepOut
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(datalen))
	if eom {
		out[8] = 0x01
	}
	return out
}

// encBulkInHeader creates the header defined in USBTMC standard, Table 4.
// if terminator is nil, the device is told to ignore termination characters
func encBulkInHeader(tag byte, bufsize int, terminator *byte) [headerSize]byte {
	out := [headerSize]byte{}
	out[0] = msgRequestDevIn
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(bufsize))
	if terminator != nil {
		out[8] = 0x02
		out[9] = *terminator
	}
	return out
}

// bulkInHeader is the decoded header of a DEV_DEP_MSG_IN transfer
type bulkInHeader struct {
	tag          byte
	transferSize int
	eom          bool
}

func decBulkInHeader(b []byte) (bulkInHeader, error) {
	var h bulkInHeader
	if len(b) < headerSize {
		return h, ErrShortHeader
	}
	if b[0] != msgRequestDevIn {
		return h, fmt.Errorf("unexpected MsgID %d in bulk-in header", b[0])
	}
	if b[2] != invbTag(b[1]) {
		return h, fmt.Errorf("corrupt bulk-in header, bTag %d inverse %d", b[1], b[2])
	}
	h.tag = b[1]
	h.transferSize = int(binary.LittleEndian.Uint32(b[4:8]))
	h.eom = b[8]&0x01 != 0
	return h, nil
}

// pad extends b with zeros to a multiple of the USBTMC alignment
func pad(b []byte) []byte {
	if residual := len(b) % alignment; residual > 0 {
		b = append(b, make([]byte, alignment-residual)...)
	}
	return b
}

// USBDevice hides the details of USB and exposes an io.ReadWriteCloser
type USBDevice struct {
	tags   bTagGen
	ctx    *gousb.Context
	device *gousb.Device
	iface  *gousb.Interface
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
	closer func()

	// buf holds payload bytes received but not yet read
	buf []byte
	// eom is true once the last transfer of the current message has arrived
	eom bool
}

// NewUSBDevice opens the first USBTMC device with the given vendor and
// product ID.  If serial is not empty, the device's serial number must match.
func NewUSBDevice(vid, pid uint16, serial string) (*USBDevice, error) {
	d := &USBDevice{ctx: gousb.NewContext(), eom: true}
	devs, err := d.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(vid) && desc.Product == gousb.ID(pid)
	})
	for _, dev := range devs {
		if d.device == nil && (serial == "" || serialMatches(dev, serial)) {
			d.device = dev
			continue
		}
		dev.Close()
	}
	if d.device == nil {
		d.ctx.Close()
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %04x:%04x %s", ErrNoDevice, vid, pid, serial)
	}
	if err = d.device.SetAutoDetach(true); err != nil {
		d.Close()
		return nil, err
	}
	d.iface, d.closer, err = d.device.DefaultInterface()
	if err != nil {
		d.closer = nil
		d.Close()
		return nil, err
	}
	if err = d.findEndpoints(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func serialMatches(dev *gousb.Device, serial string) bool {
	s, err := dev.SerialNumber()
	return err == nil && s == serial
}

// findEndpoints locates the bulk endpoints of the default interface
func (d *USBDevice) findEndpoints() error {
	var err error
	for _, ep := range d.iface.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn && d.in == nil {
			if d.in, err = d.iface.InEndpoint(ep.Number); err != nil {
				return err
			}
		}
		if ep.Direction == gousb.EndpointDirectionOut && d.out == nil {
			if d.out, err = d.iface.OutEndpoint(ep.Number); err != nil {
				return err
			}
		}
	}
	if d.in == nil || d.out == nil {
		return errors.New("usbtmc interface lacks bulk in and out endpoints")
	}
	return nil
}

// Write sends p as a single message with the end of message bit set
func (d *USBDevice) Write(p []byte) (int, error) {
	hdr := encBulkOutHeader(d.tags.next(), len(p), true)
	b := make([]byte, 0, headerSize+len(p)+alignment)
	b = append(b, hdr[:]...)
	b = append(b, p...)
	_, err := d.out.Write(pad(b))
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read returns buffered payload, requesting another transfer from the
// device when the buffer is empty
func (d *USBDevice) Read(p []byte) (int, error) {
	for len(d.buf) == 0 {
		if err := d.transfer(); err != nil {
			return 0, err
		}
	}
	n := copy(p, d.buf)
	d.buf = d.buf[n:]
	return n, nil
}

// transfer performs one REQUEST_DEV_DEP_MSG_IN exchange
func (d *USBDevice) transfer() error {
	tag := d.tags.next()
	hdr := encBulkInHeader(tag, maxTransfer, nil)
	if _, err := d.out.Write(hdr[:]); err != nil {
		return err
	}
	chunk := make([]byte, maxTransfer+headerSize+alignment)
	n, err := d.in.Read(chunk)
	if err != nil {
		return err
	}
	h, err := decBulkInHeader(chunk[:n])
	if err != nil {
		return err
	}
	if h.tag != tag {
		return ErrTagMismatch
	}
	payload := chunk[headerSize:n]
	// a transfer larger than one bulk read continues without a header
	for len(payload) < h.transferSize {
		more := make([]byte, h.transferSize-len(payload)+alignment)
		m, err := d.in.Read(more)
		if err != nil {
			return err
		}
		if m == 0 {
			break
		}
		payload = append(payload, more[:m]...)
	}
	if len(payload) > h.transferSize {
		payload = payload[:h.transferSize]
	}
	d.buf = append(d.buf, payload...)
	d.eom = h.eom
	return nil
}

// Discard drops any payload that has been received but not read
func (d *USBDevice) Discard() {
	d.buf = nil
	d.eom = true
}

// RENControl asserts (true) or releases (false) the remote enable line
// through the USB488 REN_CONTROL request
func (d *USBDevice) RENControl(enable bool) error {
	var val uint16
	if enable {
		val = 1
	}
	status := make([]byte, 1)
	_, err := d.device.Control(0xA1, usb488RENControl, val, uint16(d.iface.Setting.Number), status)
	if err != nil {
		return err
	}
	if status[0] != 0x01 {
		return fmt.Errorf("REN_CONTROL failed with USBTMC status 0x%02x", status[0])
	}
	return nil
}

// SetTimeout sets the timeout of control transfers
func (d *USBDevice) SetTimeout(t time.Duration) {
	d.device.ControlTimeout = t
}

// Close releases the interface, the device, and the libusb context
func (d *USBDevice) Close() error {
	if d.closer != nil {
		d.closer()
	}
	var err error
	if d.device != nil {
		err = d.device.Close()
	}
	if d.ctx != nil {
		d.ctx.Close()
	}
	return err
}

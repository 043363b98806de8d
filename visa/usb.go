package visa

import (
	"time"

	"github.com/nasa-jpl/golaborate-vna/usbtmc"
)

// usbLink is a USBTMC device.  Bulk transfers are not bounded by the
// session timeout; control transfers are.
type usbLink struct {
	*usbtmc.USBDevice
}

func openUSB(res Resource, cfg Config) (link, error) {
	dev, err := usbtmc.NewUSBDevice(res.VendorID, res.ProductID, res.Serial)
	if err != nil {
		return nil, err
	}
	return usbLink{dev}, nil
}

func (l usbLink) setTimeout(d time.Duration) {
	l.SetTimeout(d)
}

func (l usbLink) clear() error {
	l.Discard()
	return nil
}

func (l usbLink) controlREN(mode RENMode) error {
	return l.RENControl(mode.asserts())
}

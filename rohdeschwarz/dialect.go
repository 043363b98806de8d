package rohdeschwarz

import (
	"fmt"
	"strconv"
	"time"
)

// ZVADialect is the SCPI command set of the ZVA family
type ZVADialect struct{}

func hz(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

func (ZVADialect) QueryActiveChannel() string { return "INSTrument:NSELect?" }

func (ZVADialect) SetActiveChannel(ch int) string { return fmt.Sprintf("INSTrument:NSELect %d", ch) }

func (ZVADialect) QueryChannelCatalog() string { return "CONFigure:CHANnel:CATalog?" }

func (ZVADialect) QuerySweepType(ch int) string { return fmt.Sprintf("SENSe%d:SWEep:TYPE?", ch) }

func (ZVADialect) QueryStartFrequency(ch int) string {
	return fmt.Sprintf("SENSe%d:FREQuency:STARt?", ch)
}

func (ZVADialect) QueryStopFrequency(ch int) string {
	return fmt.Sprintf("SENSe%d:FREQuency:STOP?", ch)
}

func (ZVADialect) QuerySweepPoints(ch int) string { return fmt.Sprintf("SENSe%d:SWEep:POINts?", ch) }

func (ZVADialect) SetStartFrequency(ch int, f float64) string {
	return fmt.Sprintf("SENSe%d:FREQuency:STARt %s", ch, hz(f))
}

func (ZVADialect) SetStopFrequency(ch int, f float64) string {
	return fmt.Sprintf("SENSe%d:FREQuency:STOP %s", ch, hz(f))
}

func (ZVADialect) SetSweepPoints(ch, n int) string {
	return fmt.Sprintf("SENSe%d:SWEep:POINts %d", ch, n)
}

func (ZVADialect) QueryParameterCatalog(ch int) string {
	return fmt.Sprintf("CALCulate%d:PARameter:CATalog?", ch)
}

func (ZVADialect) QuerySelectedParameter(ch int) string {
	return fmt.Sprintf("CALCulate%d:PARameter:SELect?", ch)
}

func (ZVADialect) SelectParameter(ch int, name string) string {
	return fmt.Sprintf("CALCulate%d:PARameter:SELect '%s'", ch, name)
}

func (ZVADialect) SelectMeasurementNumber(ch, n int) string {
	return fmt.Sprintf("CALCulate%d:PARameter:MNUMber:SELect %d", ch, n)
}

func (ZVADialect) QueryTraceCatalog(ch int) string {
	return fmt.Sprintf("CONFigure:CHANnel%d:TRACe:CATalog?", ch)
}

func (ZVADialect) QueryData(ch int, form string) string {
	return fmt.Sprintf("CALCulate%d:DATA? %s", ch, form)
}

func (ZVADialect) SetDataFormat(binary bool) string {
	if binary {
		return "FORMat:DATA REAL,64"
	}
	return "FORMat:DATA ASCII"
}

// SetByteOrder with swapped = true makes binary transfers little endian
func (ZVADialect) SetByteOrder(swapped bool) string {
	if swapped {
		return "FORMat:BORDer SWAPped"
	}
	return "FORMat:BORDer NORMal"
}

func (ZVADialect) CreateMeasurement(ch int, name, param string) string {
	return fmt.Sprintf("CALCulate%d:PARameter:SDEFine '%s','%s'", ch, name, param)
}

func (ZVADialect) DeleteMeasurement(ch int, name string) string {
	return fmt.Sprintf("CALCulate%d:PARameter:DELete '%s'", ch, name)
}

func (ZVADialect) SetContinuous(ch int, on bool) string {
	return fmt.Sprintf("INITiate%d:CONTinuous %s", ch, onOff(on))
}

func (ZVADialect) Sweep(ch int) string { return fmt.Sprintf("INITiate%d:IMMediate;*OPC?", ch) }

// ProbeTimeout is the time allowed for the active channel query
func (ZVADialect) ProbeTimeout() time.Duration { return 500 * time.Millisecond }

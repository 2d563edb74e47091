package records

import "fmt"

// dateCoding marks VIFs whose 16/32/48-bit data fields hold calendar values
// instead of integers.
type dateCoding uint8

const (
	noDate dateCoding = iota
	dateTypeG
	dateTypeF
)

// maxVIFE bounds the extension chain (EN 13757-3 allows ten).
const maxVIFE = 10

type valueInfo struct {
	Description Description
	Unit        Unit
	Exponent    int
	UserDefined string
	date        dateCoding
}

func vi(d Description, u Unit, exp int) valueInfo {
	return valueInfo{Description: d, Unit: u, Exponent: exp}
}

// decodeVIB decodes the value information block starting at b[i] and
// returns the index of the first data octet. Reserved codes decode to
// DescNotSupported; only truncation is an error.
func decodeVIB(b []byte, i int) (valueInfo, int, error) {
	if i >= len(b) {
		return valueInfo{}, i, truncated("VIF")
	}
	vif := b[i]
	i++
	var info valueInfo
	ext := vif&0x80 != 0
	switch {
	case vif == 0xFB || vif == 0xFD:
		if i >= len(b) {
			return valueInfo{}, i, truncated("VIFE")
		}
		vife := b[i]
		i++
		if vif == 0xFB {
			info = decodeAlternateExtendedVIF(vife & 0x7F)
		} else {
			info = decodeMainExtendedVIF(vife & 0x7F)
		}
		ext = vife&0x80 != 0
	case vif&0x7F == 0x7C:
		if i >= len(b) {
			return valueInfo{}, i, truncated("plain text VIF length")
		}
		n := int(b[i])
		i++
		if i+n > len(b) {
			return valueInfo{}, i, truncated("plain text VIF")
		}
		info = valueInfo{Description: DescUserDefined, UserDefined: reversedText(b[i : i+n])}
		i += n
	case vif&0x7F == 0x7F:
		info = valueInfo{Description: DescManufacturerSpecific}
	default:
		info = decodeMainVIF(vif & 0x7F)
	}
	for n := 0; ext; n++ {
		if n == maxVIFE {
			return valueInfo{}, i, fmt.Errorf("VIFE chain exceeds %d octets", maxVIFE)
		}
		if i >= len(b) {
			return valueInfo{}, i, truncated("VIFE")
		}
		vife := b[i]
		i++
		applyCombinableVIFE(&info, vife&0x7F)
		ext = vife&0x80 != 0
	}
	return info, i, nil
}

// applyCombinableVIFE handles the orthogonal extensions that change the
// scale; the rest only qualify the value and are kept in the raw VIB.
func applyCombinableVIFE(info *valueInfo, v byte) {
	switch {
	case v&0x78 == 0x70:
		info.Exponent += int(v&0x07) - 6
	case v == 0x7D:
		info.Exponent += 3
	}
}

// decodeMainVIF follows the primary VIF table (EN 13757-3 table 10).
func decodeMainVIF(v byte) valueInfo {
	nnn := int(v & 0x07)
	nn := int(v & 0x03)
	switch {
	case v&0x78 == 0x00:
		return vi(DescEnergy, UnitWattHour, nnn-3)
	case v&0x78 == 0x08:
		return vi(DescEnergy, UnitJoule, nnn)
	case v&0x78 == 0x10:
		return vi(DescVolume, UnitCubicMetre, nnn-6)
	case v&0x78 == 0x18:
		return vi(DescMass, UnitKilogram, nnn-3)
	case v&0x7C == 0x20:
		return vi(DescOnTime, timeUnit(v), 0)
	case v&0x7C == 0x24:
		return vi(DescOperatingTime, timeUnit(v), 0)
	case v&0x78 == 0x28:
		return vi(DescPower, UnitWatt, nnn-3)
	case v&0x78 == 0x30:
		return vi(DescPower, UnitJoulePerHour, nnn)
	case v&0x78 == 0x38:
		return vi(DescVolumeFlow, UnitCubicMetrePerHour, nnn-6)
	case v&0x78 == 0x40:
		return vi(DescVolumeFlowExt, UnitCubicMetrePerMinute, nnn-7)
	case v&0x78 == 0x48:
		return vi(DescVolumeFlowExt, UnitCubicMetrePerSecond, nnn-9)
	case v&0x78 == 0x50:
		return vi(DescMassFlow, UnitKilogramPerHour, nnn-3)
	case v&0x7C == 0x58:
		return vi(DescFlowTemperature, UnitDegreeCelsius, nn-3)
	case v&0x7C == 0x5C:
		return vi(DescReturnTemperature, UnitDegreeCelsius, nn-3)
	case v&0x7C == 0x60:
		return vi(DescTemperatureDifference, UnitKelvin, nn-3)
	case v&0x7C == 0x64:
		return vi(DescExternalTemperature, UnitDegreeCelsius, nn-3)
	case v&0x7C == 0x68:
		return vi(DescPressure, UnitBar, nn-3)
	case v == 0x6C:
		return valueInfo{Description: DescDate, date: dateTypeG}
	case v == 0x6D:
		return valueInfo{Description: DescDateTime, date: dateTypeF}
	case v == 0x6E:
		return vi(DescHCA, UnitNone, 0)
	case v&0x7C == 0x70:
		return vi(DescAveragingDuration, timeUnit(v), 0)
	case v&0x7C == 0x74:
		return vi(DescActualityDuration, timeUnit(v), 0)
	case v == 0x78:
		return vi(DescFabricationNo, UnitNone, 0)
	case v == 0x79:
		return vi(DescExtendedIdentification, UnitNone, 0)
	case v == 0x7A:
		return vi(DescBusAddress, UnitNone, 0)
	default:
		return vi(DescNotSupported, UnitNone, 0)
	}
}

// decodeMainExtendedVIF follows the 0xFD extension table (EN 13757-3 table 14).
func decodeMainExtendedVIF(v byte) valueInfo {
	nn := int(v & 0x03)
	nnnn := int(v & 0x0F)
	switch {
	case v&0x7C == 0x00:
		return vi(DescCredit, UnitCurrency, nn-3)
	case v&0x7C == 0x04:
		return vi(DescDebit, UnitCurrency, nn-3)
	case v == 0x08:
		return vi(DescAccessNumber, UnitNone, 0)
	case v == 0x09:
		return vi(DescMedium, UnitNone, 0)
	case v == 0x0A:
		return vi(DescManufacturer, UnitNone, 0)
	case v == 0x0B:
		return vi(DescParameterSetID, UnitNone, 0)
	case v == 0x0C:
		return vi(DescModelVersion, UnitNone, 0)
	case v == 0x0D:
		return vi(DescHardwareVersion, UnitNone, 0)
	case v == 0x0E:
		return vi(DescFirmwareVersion, UnitNone, 0)
	case v == 0x0F:
		return vi(DescSoftwareVersion, UnitNone, 0)
	case v == 0x10:
		return vi(DescCustomerLocation, UnitNone, 0)
	case v == 0x11:
		return vi(DescCustomer, UnitNone, 0)
	case v == 0x12:
		return vi(DescAccessCodeUser, UnitNone, 0)
	case v == 0x13:
		return vi(DescAccessCodeOperator, UnitNone, 0)
	case v == 0x14:
		return vi(DescAccessCodeSystemOperator, UnitNone, 0)
	case v == 0x15:
		return vi(DescAccessCodeDeveloper, UnitNone, 0)
	case v == 0x16:
		return vi(DescPassword, UnitNone, 0)
	case v == 0x17:
		return vi(DescErrorFlags, UnitNone, 0)
	case v == 0x18:
		return vi(DescErrorMask, UnitNone, 0)
	case v == 0x1A:
		return vi(DescDigitalOutput, UnitNone, 0)
	case v == 0x1B:
		return vi(DescDigitalInput, UnitNone, 0)
	case v == 0x1C:
		return vi(DescBaudrate, UnitBaud, 0)
	case v == 0x1D:
		return vi(DescResponseDelayTime, UnitBitTimes, 0)
	case v == 0x1E:
		return vi(DescRetry, UnitNone, 0)
	case v == 0x20:
		return vi(DescFirstStorageNumberCyclic, UnitNone, 0)
	case v == 0x21:
		return vi(DescLastStorageNumberCyclic, UnitNone, 0)
	case v == 0x22:
		return vi(DescSizeStorageBlock, UnitNone, 0)
	case v&0x7C == 0x24:
		return vi(DescStorageInterval, timeUnit(v), 0)
	case v == 0x28:
		return vi(DescStorageInterval, UnitMonth, 0)
	case v == 0x29:
		return vi(DescStorageInterval, UnitYear, 0)
	case v&0x7C == 0x2C:
		return vi(DescDurationSinceReadout, timeUnit(v), 0)
	case v == 0x30:
		return valueInfo{Description: DescTariffStart, date: dateTypeF}
	case v&0x7C == 0x30:
		return vi(DescTariffDuration, timeUnit(v), 0)
	case v&0x7C == 0x34:
		return vi(DescTariffPeriod, timeUnit(v), 0)
	case v == 0x38:
		return vi(DescTariffPeriod, UnitMonth, 0)
	case v == 0x39:
		return vi(DescTariffPeriod, UnitYear, 0)
	case v == 0x3A:
		return vi(DescDimensionless, UnitNone, 0)
	case v&0x70 == 0x40:
		return vi(DescVoltage, UnitVolt, nnnn-9)
	case v&0x70 == 0x50:
		return vi(DescCurrent, UnitAmpere, nnnn-12)
	case v == 0x60:
		return vi(DescResetCounter, UnitNone, 0)
	case v == 0x61:
		return vi(DescCumulationCounter, UnitNone, 0)
	case v == 0x62:
		return vi(DescControlSignal, UnitNone, 0)
	case v == 0x63:
		return vi(DescDayOfWeek, UnitNone, 0)
	case v == 0x64:
		return vi(DescWeekNumber, UnitNone, 0)
	case v == 0x65:
		return vi(DescTimePointDayChange, UnitNone, 0)
	case v == 0x66:
		return vi(DescParameterActivationState, UnitNone, 0)
	case v == 0x67:
		return vi(DescSpecialSupplierInformation, UnitNone, 0)
	case v&0x7C == 0x68:
		return vi(DescLastCumulationDuration, longTimeUnit(v), 0)
	case v&0x7C == 0x6C:
		return vi(DescOperatingTimeBattery, longTimeUnit(v), 0)
	case v == 0x70:
		return valueInfo{Description: DescBatteryChangeDate, date: dateTypeF}
	case v == 0x74:
		return vi(DescRemainingBatteryLifetime, UnitDay, 0)
	default:
		return vi(DescNotSupported, UnitNone, 0)
	}
}

// decodeAlternateExtendedVIF follows the 0xFB extension table (EN 13757-3
// table 12). Large units are folded into the exponent of the base unit.
func decodeAlternateExtendedVIF(v byte) valueInfo {
	n := int(v & 0x01)
	nn := int(v & 0x03)
	nnn := int(v & 0x07)
	switch {
	case v&0x7E == 0x00:
		return vi(DescEnergy, UnitWattHour, n+5)
	case v&0x7E == 0x08:
		return vi(DescEnergy, UnitJoule, n+8)
	case v&0x7E == 0x10:
		return vi(DescVolume, UnitCubicMetre, n+2)
	case v&0x7E == 0x18:
		return vi(DescMass, UnitKilogram, n+5)
	case v == 0x21:
		return vi(DescVolume, UnitCubicFeet, -1)
	case v&0x7E == 0x22:
		return vi(DescVolume, UnitUSGallon, n-1)
	case v == 0x24:
		return vi(DescVolumeFlow, UnitUSGallonPerMinute, -3)
	case v == 0x25:
		return vi(DescVolumeFlow, UnitUSGallonPerMinute, 0)
	case v == 0x26:
		return vi(DescVolumeFlow, UnitUSGallonPerHour, 0)
	case v&0x7E == 0x28:
		return vi(DescPower, UnitWatt, n+5)
	case v&0x7E == 0x30:
		return vi(DescPower, UnitJoulePerHour, n+8)
	case v&0x7C == 0x58:
		return vi(DescFlowTemperature, UnitDegreeFahrenheit, nn-3)
	case v&0x7C == 0x5C:
		return vi(DescReturnTemperature, UnitDegreeFahrenheit, nn-3)
	case v&0x7C == 0x60:
		return vi(DescTemperatureDifference, UnitDegreeFahrenheit, nn-3)
	case v&0x7C == 0x64:
		return vi(DescExternalTemperature, UnitDegreeFahrenheit, nn-3)
	case v&0x7C == 0x70:
		return vi(DescTemperatureLimit, UnitDegreeFahrenheit, nn-3)
	case v&0x7C == 0x74:
		return vi(DescTemperatureLimit, UnitDegreeCelsius, nn-3)
	case v&0x78 == 0x78:
		return vi(DescMaxPower, UnitWatt, nnn-3)
	default:
		return vi(DescNotSupported, UnitNone, 0)
	}
}

// reversedText renders LVAR text, which is transmitted last character first.
func reversedText(b []byte) string {
	out := make([]byte, len(b))
	for k := range b {
		out[len(b)-1-k] = b[k]
	}
	return string(out)
}

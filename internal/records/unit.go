package records

import "fmt"

// Unit is a physical unit. Positive ids are the DLMS/COSEM unit codes
// (IEC 62056-62); units M-Bus needs but DLMS lacks use negative ids.
type Unit int

const (
	UnitNone Unit = 0

	UnitYear                 Unit = 1
	UnitMonth                Unit = 2
	UnitWeek                 Unit = 3
	UnitDay                  Unit = 4
	UnitHour                 Unit = 5
	UnitMinute               Unit = 6
	UnitSecond               Unit = 7
	UnitDegree               Unit = 8
	UnitDegreeCelsius        Unit = 9
	UnitCurrency             Unit = 10
	UnitMetre                Unit = 11
	UnitMetrePerSecond       Unit = 12
	UnitCubicMetre           Unit = 13
	UnitCubicMetreCorrected  Unit = 14
	UnitCubicMetrePerHour    Unit = 15
	UnitCubicMetrePerHourCor Unit = 16
	UnitCubicMetrePerDay     Unit = 17
	UnitCubicMetrePerDayCor  Unit = 18
	UnitLitre                Unit = 19
	UnitKilogram             Unit = 20
	UnitNewton               Unit = 21
	UnitNewtonMetre          Unit = 22
	UnitPascal               Unit = 23
	UnitBar                  Unit = 24
	UnitJoule                Unit = 25
	UnitJoulePerHour         Unit = 26
	UnitWatt                 Unit = 27
	UnitVoltAmpere           Unit = 28
	UnitVar                  Unit = 29
	UnitWattHour             Unit = 30
	UnitVoltAmpereHour       Unit = 31
	UnitVarHour              Unit = 32
	UnitAmpere               Unit = 33
	UnitCoulomb              Unit = 34
	UnitVolt                 Unit = 35
	UnitVoltPerMetre         Unit = 36
	UnitFarad                Unit = 37
	UnitOhm                  Unit = 38
	UnitOhmMetre             Unit = 39
	UnitWeber                Unit = 40
	UnitTesla                Unit = 41
	UnitAmperePerMetre       Unit = 42
	UnitHenry                Unit = 43
	UnitHertz                Unit = 44
	UnitKilogramPerSecond    Unit = 50
	UnitKelvin               Unit = 52
	UnitPercentage           Unit = 56
	UnitAmpereHour           Unit = 57
	UnitSignalStrength       Unit = 70
	UnitReserved             Unit = 253
	UnitOther                Unit = 254
	UnitCount                Unit = 255

	UnitCubicMetrePerSecond Unit = -1
	UnitCubicMetrePerMinute Unit = -2
	UnitKilogramPerHour     Unit = -3
	UnitCubicFeet           Unit = -4
	UnitUSGallon            Unit = -5
	UnitUSGallonPerMinute   Unit = -6
	UnitUSGallonPerHour     Unit = -7
	UnitDegreeFahrenheit    Unit = -8
	UnitBaud                Unit = -9
	UnitBitTimes            Unit = -10
)

var unitSymbols = map[Unit]string{
	UnitNone:                 "",
	UnitYear:                 "a",
	UnitMonth:                "mo",
	UnitWeek:                 "wk",
	UnitDay:                  "d",
	UnitHour:                 "h",
	UnitMinute:               "min",
	UnitSecond:               "s",
	UnitDegree:               "°",
	UnitDegreeCelsius:        "°C",
	UnitCurrency:             "currency",
	UnitMetre:                "m",
	UnitMetrePerSecond:       "m/s",
	UnitCubicMetre:           "m³",
	UnitCubicMetreCorrected:  "m³ (corr.)",
	UnitCubicMetrePerHour:    "m³/h",
	UnitCubicMetrePerHourCor: "m³/h (corr.)",
	UnitCubicMetrePerDay:     "m³/d",
	UnitCubicMetrePerDayCor:  "m³/d (corr.)",
	UnitLitre:                "l",
	UnitKilogram:             "kg",
	UnitNewton:               "N",
	UnitNewtonMetre:          "Nm",
	UnitPascal:               "Pa",
	UnitBar:                  "bar",
	UnitJoule:                "J",
	UnitJoulePerHour:         "J/h",
	UnitWatt:                 "W",
	UnitVoltAmpere:           "VA",
	UnitVar:                  "var",
	UnitWattHour:             "Wh",
	UnitVoltAmpereHour:       "VAh",
	UnitVarHour:              "varh",
	UnitAmpere:               "A",
	UnitCoulomb:              "C",
	UnitVolt:                 "V",
	UnitVoltPerMetre:         "V/m",
	UnitFarad:                "F",
	UnitOhm:                  "Ω",
	UnitOhmMetre:             "Ωm",
	UnitWeber:                "Wb",
	UnitTesla:                "T",
	UnitAmperePerMetre:       "A/m",
	UnitHenry:                "H",
	UnitHertz:                "Hz",
	UnitKilogramPerSecond:    "kg/s",
	UnitKelvin:               "K",
	UnitPercentage:           "%",
	UnitAmpereHour:           "Ah",
	UnitSignalStrength:       "dBm",
	UnitReserved:             "reserved",
	UnitOther:                "other",
	UnitCount:                "count",
	UnitCubicMetrePerSecond:  "m³/s",
	UnitCubicMetrePerMinute:  "m³/min",
	UnitKilogramPerHour:      "kg/h",
	UnitCubicFeet:            "ft³",
	UnitUSGallon:             "US gal",
	UnitUSGallonPerMinute:    "US gal/min",
	UnitUSGallonPerHour:      "US gal/h",
	UnitDegreeFahrenheit:     "°F",
	UnitBaud:                 "Bd",
	UnitBitTimes:             "bit times",
}

// Symbol is the unit symbol, empty for dimensionless values.
func (u Unit) Symbol() string {
	if s, ok := unitSymbols[u]; ok {
		return s
	}
	return fmt.Sprintf("unit(%d)", int(u))
}

func (u Unit) String() string { return u.Symbol() }

// timeUnit maps the two-bit nn time code shared by several VIFs.
func timeUnit(nn byte) Unit {
	switch nn & 0x03 {
	case 0:
		return UnitSecond
	case 1:
		return UnitMinute
	case 2:
		return UnitHour
	default:
		return UnitDay
	}
}

// longTimeUnit maps the pp code: hours, days, months, years.
func longTimeUnit(pp byte) Unit {
	switch pp & 0x03 {
	case 0:
		return UnitHour
	case 1:
		return UnitDay
	case 2:
		return UnitMonth
	default:
		return UnitYear
	}
}

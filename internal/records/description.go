package records

import "fmt"

// Description is what a record measures, derived from its VIB.
type Description int

const (
	DescNotSupported Description = iota
	DescEnergy
	DescVolume
	DescMass
	DescOnTime
	DescOperatingTime
	DescPower
	DescVolumeFlow
	DescVolumeFlowExt
	DescMassFlow
	DescFlowTemperature
	DescReturnTemperature
	DescTemperatureDifference
	DescExternalTemperature
	DescPressure
	DescDate
	DescDateTime
	DescHCA
	DescAveragingDuration
	DescActualityDuration
	DescFabricationNo
	DescExtendedIdentification
	DescBusAddress
	DescUserDefined
	DescManufacturerSpecific
	DescCredit
	DescDebit
	DescAccessNumber
	DescMedium
	DescManufacturer
	DescParameterSetID
	DescModelVersion
	DescHardwareVersion
	DescFirmwareVersion
	DescSoftwareVersion
	DescCustomerLocation
	DescCustomer
	DescAccessCodeUser
	DescAccessCodeOperator
	DescAccessCodeSystemOperator
	DescAccessCodeDeveloper
	DescPassword
	DescErrorFlags
	DescErrorMask
	DescDigitalOutput
	DescDigitalInput
	DescBaudrate
	DescResponseDelayTime
	DescRetry
	DescFirstStorageNumberCyclic
	DescLastStorageNumberCyclic
	DescSizeStorageBlock
	DescStorageInterval
	DescDurationSinceReadout
	DescTariffStart
	DescTariffDuration
	DescTariffPeriod
	DescDimensionless
	DescVoltage
	DescCurrent
	DescResetCounter
	DescCumulationCounter
	DescControlSignal
	DescDayOfWeek
	DescWeekNumber
	DescTimePointDayChange
	DescParameterActivationState
	DescSpecialSupplierInformation
	DescLastCumulationDuration
	DescOperatingTimeBattery
	DescBatteryChangeDate
	DescRemainingBatteryLifetime
	DescTemperatureLimit
	DescMaxPower
)

var descriptionNames = map[Description]string{
	DescNotSupported:               "not_supported",
	DescEnergy:                     "energy",
	DescVolume:                     "volume",
	DescMass:                       "mass",
	DescOnTime:                     "on_time",
	DescOperatingTime:              "operating_time",
	DescPower:                      "power",
	DescVolumeFlow:                 "volume_flow",
	DescVolumeFlowExt:              "volume_flow_ext",
	DescMassFlow:                   "mass_flow",
	DescFlowTemperature:            "flow_temperature",
	DescReturnTemperature:          "return_temperature",
	DescTemperatureDifference:      "temperature_difference",
	DescExternalTemperature:        "external_temperature",
	DescPressure:                   "pressure",
	DescDate:                       "date",
	DescDateTime:                   "date_time",
	DescHCA:                        "hca",
	DescAveragingDuration:          "averaging_duration",
	DescActualityDuration:          "actuality_duration",
	DescFabricationNo:              "fabrication_no",
	DescExtendedIdentification:     "extended_identification",
	DescBusAddress:                 "bus_address",
	DescUserDefined:                "user_defined",
	DescManufacturerSpecific:       "manufacturer_specific",
	DescCredit:                     "credit",
	DescDebit:                      "debit",
	DescAccessNumber:               "access_number",
	DescMedium:                     "medium",
	DescManufacturer:               "manufacturer",
	DescParameterSetID:             "parameter_set_id",
	DescModelVersion:               "model_version",
	DescHardwareVersion:            "hardware_version",
	DescFirmwareVersion:            "firmware_version",
	DescSoftwareVersion:            "software_version",
	DescCustomerLocation:           "customer_location",
	DescCustomer:                   "customer",
	DescAccessCodeUser:             "access_code_user",
	DescAccessCodeOperator:         "access_code_operator",
	DescAccessCodeSystemOperator:   "access_code_system_operator",
	DescAccessCodeDeveloper:        "access_code_developer",
	DescPassword:                   "password",
	DescErrorFlags:                 "error_flags",
	DescErrorMask:                  "error_mask",
	DescDigitalOutput:              "digital_output",
	DescDigitalInput:               "digital_input",
	DescBaudrate:                   "baudrate",
	DescResponseDelayTime:          "response_delay_time",
	DescRetry:                      "retry",
	DescFirstStorageNumberCyclic:   "first_storage_number_cyclic",
	DescLastStorageNumberCyclic:    "last_storage_number_cyclic",
	DescSizeStorageBlock:           "size_storage_block",
	DescStorageInterval:            "storage_interval",
	DescDurationSinceReadout:       "duration_since_readout",
	DescTariffStart:                "tariff_start",
	DescTariffDuration:             "tariff_duration",
	DescTariffPeriod:               "tariff_period",
	DescDimensionless:              "dimensionless",
	DescVoltage:                    "voltage",
	DescCurrent:                    "current",
	DescResetCounter:               "reset_counter",
	DescCumulationCounter:          "cumulation_counter",
	DescControlSignal:              "control_signal",
	DescDayOfWeek:                  "day_of_week",
	DescWeekNumber:                 "week_number",
	DescTimePointDayChange:         "time_point_day_change",
	DescParameterActivationState:   "parameter_activation_state",
	DescSpecialSupplierInformation: "special_supplier_information",
	DescLastCumulationDuration:     "last_cumulation_duration",
	DescOperatingTimeBattery:       "operating_time_battery",
	DescBatteryChangeDate:          "battery_change_date",
	DescRemainingBatteryLifetime:   "remaining_battery_lifetime",
	DescTemperatureLimit:           "temperature_limit",
	DescMaxPower:                   "max_power",
}

func (d Description) String() string {
	if s, ok := descriptionNames[d]; ok {
		return s
	}
	return fmt.Sprintf("description(%d)", int(d))
}

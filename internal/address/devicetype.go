package address

import "fmt"

// DeviceType is the medium / device type octet of a secondary address.
type DeviceType byte

const (
	DeviceTypeOther                  DeviceType = 0x00
	DeviceTypeOil                    DeviceType = 0x01
	DeviceTypeElectricity            DeviceType = 0x02
	DeviceTypeGas                    DeviceType = 0x03
	DeviceTypeHeat                   DeviceType = 0x04
	DeviceTypeSteam                  DeviceType = 0x05
	DeviceTypeWarmWater              DeviceType = 0x06
	DeviceTypeWater                  DeviceType = 0x07
	DeviceTypeHeatCostAllocator      DeviceType = 0x08
	DeviceTypeCompressedAir          DeviceType = 0x09
	DeviceTypeCoolingOutlet          DeviceType = 0x0A
	DeviceTypeCoolingInlet           DeviceType = 0x0B
	DeviceTypeHeatInlet              DeviceType = 0x0C
	DeviceTypeHeatCooling            DeviceType = 0x0D
	DeviceTypeBusSystem              DeviceType = 0x0E
	DeviceTypeUnknown                DeviceType = 0x0F
	DeviceTypeIrrigationWater        DeviceType = 0x10
	DeviceTypeWaterLogger            DeviceType = 0x11
	DeviceTypeGasLogger              DeviceType = 0x12
	DeviceTypeGasConverter           DeviceType = 0x13
	DeviceTypeCalorificValue         DeviceType = 0x14
	DeviceTypeHotWater               DeviceType = 0x15
	DeviceTypeColdWater              DeviceType = 0x16
	DeviceTypeDualRegisterWater      DeviceType = 0x17
	DeviceTypePressure               DeviceType = 0x18
	DeviceTypeADConverter            DeviceType = 0x19
	DeviceTypeSmokeDetector          DeviceType = 0x1A
	DeviceTypeRoomSensor             DeviceType = 0x1B
	DeviceTypeGasDetector            DeviceType = 0x1C
	DeviceTypeBreaker                DeviceType = 0x20
	DeviceTypeValve                  DeviceType = 0x21
	DeviceTypeCustomerUnit           DeviceType = 0x25
	DeviceTypeWasteWater             DeviceType = 0x28
	DeviceTypeGarbage                DeviceType = 0x29
	DeviceTypeServiceTool            DeviceType = 0x30
	DeviceTypeGateway                DeviceType = 0x31
	DeviceTypeUnidirectionalRepeater DeviceType = 0x32
	DeviceTypeBidirectionalRepeater  DeviceType = 0x33
	DeviceTypeRadioConverterSystem   DeviceType = 0x36
	DeviceTypeRadioConverterMeter    DeviceType = 0x37
	DeviceTypeReserved               DeviceType = 0xFF
)

// deviceTypeNames is keyed by the numeric id; a duplicated id is a compile
// error for a map literal with constant keys.
var deviceTypeNames = map[DeviceType]string{
	DeviceTypeOther:                  "other",
	DeviceTypeOil:                    "oil meter",
	DeviceTypeElectricity:            "electricity meter",
	DeviceTypeGas:                    "gas meter",
	DeviceTypeHeat:                   "heat meter",
	DeviceTypeSteam:                  "steam meter",
	DeviceTypeWarmWater:              "warm water meter",
	DeviceTypeWater:                  "water meter",
	DeviceTypeHeatCostAllocator:      "heat cost allocator",
	DeviceTypeCompressedAir:          "compressed air",
	DeviceTypeCoolingOutlet:          "cooling meter (outlet)",
	DeviceTypeCoolingInlet:           "cooling meter (inlet)",
	DeviceTypeHeatInlet:              "heat meter (inlet)",
	DeviceTypeHeatCooling:            "heat/cooling meter",
	DeviceTypeBusSystem:              "bus/system component",
	DeviceTypeUnknown:                "unknown medium",
	DeviceTypeIrrigationWater:        "irrigation water meter",
	DeviceTypeWaterLogger:            "water data logger",
	DeviceTypeGasLogger:              "gas data logger",
	DeviceTypeGasConverter:           "gas converter",
	DeviceTypeCalorificValue:         "calorific value",
	DeviceTypeHotWater:               "hot water meter",
	DeviceTypeColdWater:              "cold water meter",
	DeviceTypeDualRegisterWater:      "dual register water meter",
	DeviceTypePressure:               "pressure meter",
	DeviceTypeADConverter:            "A/D converter",
	DeviceTypeSmokeDetector:          "smoke detector",
	DeviceTypeRoomSensor:             "room sensor",
	DeviceTypeGasDetector:            "gas detector",
	DeviceTypeBreaker:                "breaker (electricity)",
	DeviceTypeValve:                  "valve (gas or water)",
	DeviceTypeCustomerUnit:           "customer unit",
	DeviceTypeWasteWater:             "waste water meter",
	DeviceTypeGarbage:                "garbage",
	DeviceTypeServiceTool:            "service tool",
	DeviceTypeGateway:                "communication controller",
	DeviceTypeUnidirectionalRepeater: "unidirectional repeater",
	DeviceTypeBidirectionalRepeater:  "bidirectional repeater",
	DeviceTypeRadioConverterSystem:   "radio converter (system side)",
	DeviceTypeRadioConverterMeter:    "radio converter (meter side)",
	DeviceTypeReserved:               "reserved",
}

// Known reports whether t is listed in the EN 13757-3 medium table.
func (t DeviceType) Known() bool {
	_, ok := deviceTypeNames[t]
	return ok
}

func (t DeviceType) String() string {
	if name, ok := deviceTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02X)", byte(t))
}

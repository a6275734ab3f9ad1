package modbus

import "github.com/vindstrom/solarctl/internal/core/port"

// Register addresses for the reference inverter (§6's Modbus TCP map).
// All are SunSpec-flavored holding/input registers; 32-bit fields are
// big-endian pairs (high register first), exactly like the teacher's
// sunspec decoding.
const (
	regSOCFloor        uint16 = 3310 // holding, %, R/W — reserved SOC discharge floor (the primary control)
	regGridImportCap   uint16 = 800  // holding, 0.1 kW, R/W
	regChargeStopSOC   uint16 = 3048 // holding, %, R/W
	regDischargeStopSOC uint16 = 3067 // holding, %, R/W (hardware floor)

	regStatus       uint16 = 0    // input, u16 — mode lookup table
	regPVPowerHi    uint16 = 1    // input, u32 pair, 0.1 W — total PV power
	regBMSVoltage   uint16 = 3169 // input, u16 (raw)
	regBMSCurrent   uint16 = 3170 // input, i16, 0.1 A — negative = charging
	regBMSSOC       uint16 = 3171 // input, u16, %
	regGridImportHi uint16 = 3021 // input, u32 pair, 0.1 W — instantaneous grid import
	regDailyBlock   uint16 = 3045 // input, 40 u16s — daily energy block

	dailyBlockSize = 40
)

// Offsets within the 40-register daily energy block.
const (
	offsetLoadW      = 0
	offsetACGenKWh10 = 4
	offsetGridInKWh10  = 22
	offsetGridOutKWh10 = 26
	offsetLoadKWh10    = 30
	offsetPVKWh10      = 38
)

// decodeU32BE combines a big-endian register pair as the spec
// mandates: (high << 16) | low.
func decodeU32BE(hi, lo uint16) uint32 {
	return uint32(hi)<<16 | uint32(lo)
}

// decodeI16 sign-extends a raw 16-bit register value.
func decodeI16(v uint16) int16 {
	if v > 32767 {
		return int16(int32(v) - 65536)
	}
	return int16(v)
}

func statusToMode(v uint16) port.InverterMode {
	switch v {
	case 0:
		return port.ModeWaiting
	case 1:
		return port.ModeNormal
	case 3:
		return port.ModeFault
	case 4:
		return port.ModeFlash
	default:
		if v >= 5 && v <= 8 {
			return port.ModeStorage
		}
		return port.ModeUnknown
	}
}

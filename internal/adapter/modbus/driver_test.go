package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vindstrom/solarctl/internal/core/domain"
	"github.com/vindstrom/solarctl/internal/core/port"
)

func TestDecodeU32BE(t *testing.T) {
	assert.Equal(t, uint32(0x00010002), decodeU32BE(1, 2))
	assert.Equal(t, uint32(0), decodeU32BE(0, 0))
}

func TestDecodeI16SignExtends(t *testing.T) {
	assert.Equal(t, int16(-1), decodeI16(65535))
	assert.Equal(t, int16(100), decodeI16(100))
	assert.Equal(t, int16(-100), decodeI16(65436))
}

func TestStatusToMode(t *testing.T) {
	assert.Equal(t, port.ModeWaiting, statusToMode(0))
	assert.Equal(t, port.ModeNormal, statusToMode(1))
	assert.Equal(t, port.ModeFault, statusToMode(3))
	assert.Equal(t, port.ModeFlash, statusToMode(4))
	assert.Equal(t, port.ModeStorage, statusToMode(6))
	assert.Equal(t, port.ModeUnknown, statusToMode(99))
}

func TestIntentFor(t *testing.T) {
	assert.Equal(t, "charge", intentFor(domain.ActionChargeGrid))
	assert.Equal(t, "charge", intentFor(domain.ActionChargeSolar))
	assert.Equal(t, "discharge", intentFor(domain.ActionDischarge))
	assert.Equal(t, "discharge", intentFor(domain.ActionSell))
	assert.Equal(t, "idle", intentFor(domain.ActionIdle))
}

func TestClampSOC(t *testing.T) {
	assert.Equal(t, 13, clampSOC(0))
	assert.Equal(t, 100, clampSOC(150))
	assert.Equal(t, 50, clampSOC(50))
}

func TestTargetForChargeDischarge(t *testing.T) {
	d := &Driver{chargeSOC: 90, dischargeSOC: 20}

	target, err := d.targetFor("charge", nil)
	assert.NoError(t, err)
	assert.Equal(t, 90, target)

	target, err = d.targetFor("discharge", nil)
	assert.NoError(t, err)
	assert.Equal(t, 20, target)
}

func TestTargetForIdleReadsCurrentSOC(t *testing.T) {
	d := &Driver{chargeSOC: 90, dischargeSOC: 20}
	target, err := d.targetFor("idle", func() (int, error) { return 55, nil })
	assert.NoError(t, err)
	assert.Equal(t, 55, target)
}

package lidar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/rangefinder"
)

func TestSimulatedBus_AutoIncrement(t *testing.T) {
	bus := NewSimulatedBus(DefaultAddress)
	ctx := context.Background()

	require.NoError(t, bus.WriteToAddr(ctx, DefaultAddress, []byte{0x26, 0x2C, 0x01}))
	assert.Equal(t, byte(0x2C), bus.Register(0x26))
	assert.Equal(t, byte(0x01), bus.Register(0x27))

	require.NoError(t, bus.WriteToAddr(ctx, DefaultAddress, []byte{0x26}))
	buf := make([]byte, 2)
	require.NoError(t, bus.ReadFromAddr(ctx, DefaultAddress, buf))
	assert.Equal(t, []byte{0x2C, 0x01}, buf)
}

func TestSimulatedBus_NoAck(t *testing.T) {
	bus := NewSimulatedBus(DefaultAddress)
	ctx := context.Background()

	err := bus.WriteToAddr(ctx, 0x11, []byte{0x00})
	assert.ErrorIs(t, err, rangefinder.ErrNoAck)

	bus.SetAck(false)
	err = bus.ReadFromAddr(ctx, DefaultAddress, make([]byte, 1))
	assert.ErrorIs(t, err, rangefinder.ErrNoAck)
	assert.Empty(t, bus.Writes())
}

func TestSimulatedBus_ContinuousSampling(t *testing.T) {
	bus := NewSimulatedBus(DefaultAddress)
	ctx := context.Background()
	bus.QueueFrames(RawFrame{Dist: 10, Flux: 200}, RawFrame{Dist: 20, Flux: 200})

	buf := make([]byte, frameWidth)
	for _, expected := range []byte{10, 20} {
		require.NoError(t, bus.WriteToAddr(ctx, DefaultAddress, []byte{0x00}))
		require.NoError(t, bus.ReadFromAddr(ctx, DefaultAddress, buf))
		assert.Equal(t, expected, buf[0])
	}
	// trigger writes are ignored in continuous mode
	require.NoError(t, bus.WriteToAddr(ctx, DefaultAddress, []byte{0x24, 0x01}))
	assert.Equal(t, 0, bus.Triggers())
}

func TestSimulatedBus_OutOfRange(t *testing.T) {
	bus := NewSimulatedBus(DefaultAddress)
	err := bus.WriteToAddr(context.Background(), DefaultAddress, []byte{0x30, 0x01})
	assert.Error(t, err)
}

func TestSimulatedBus_SoftResetReloadsSavedSettings(t *testing.T) {
	bus := NewSimulatedBus(DefaultAddress)
	ctx := context.Background()

	require.NoError(t, bus.WriteToAddr(ctx, DefaultAddress, []byte{0x26, 0x32, 0x00}))
	require.NoError(t, bus.WriteToAddr(ctx, DefaultAddress, []byte{0x20, 0x01}))
	require.NoError(t, bus.WriteToAddr(ctx, DefaultAddress, []byte{0x23, 0x01}))
	require.NoError(t, bus.WriteToAddr(ctx, DefaultAddress, []byte{0x22, 0x11}))
	require.NoError(t, bus.WriteToAddr(ctx, DefaultAddress, []byte{0x21, 0x02}))

	assert.Equal(t, byte(0x11), bus.Address())
	assert.Equal(t, byte(modeValueContinuous), bus.Register(0x23), "unsaved mode reverts")
	assert.Equal(t, byte(0x32), bus.Register(0x26), "saved frame rate survives")
}

package lidar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockI2CBus is a mock implementation of rangefinder.I2CBus using testify/mock
type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
		copy(buffer, data)
	}
	return args.Error(1)
}

// recordingClock records requested sleeps instead of blocking.
type recordingClock struct {
	clock.Clock
	slept []time.Duration
}

func newRecordingClock() *recordingClock {
	return &recordingClock{Clock: clock.NewMock()}
}

func (c *recordingClock) Sleep(d time.Duration) {
	c.slept = append(c.slept, d)
}

func (c *recordingClock) reset() {
	c.slept = nil
}

func expectBegin(bus *MockI2CBus, addr byte) {
	bus.On("WriteToAddr", mock.Anything, addr, []byte{0x0A}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, addr, mock.Anything).Return([]byte{0x01, 0x02, 0x03}, nil).Once()
	bus.On("WriteToAddr", mock.Anything, addr, []byte{0x23, 0x01}).Return(nil).Once()
}

func newSimSession(t *testing.T, opts ...TFLunaOpt) (*TFLuna, *SimulatedBus, *recordingClock) {
	t.Helper()
	bus := NewSimulatedBus(DefaultAddress)
	clk := newRecordingClock()
	s := NewTFLuna(bus, append([]TFLunaOpt{WithClock(clk)}, opts...)...)
	require.NoError(t, s.Begin(context.Background()))
	clk.reset()
	return s, bus, clk
}

func TestTFLuna_Begin(t *testing.T) {
	bus := new(MockI2CBus)
	expectBegin(bus, 0x10)
	clk := newRecordingClock()
	s := NewTFLuna(bus, WithClock(clk))

	err := s.Begin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeTrigger, s.Mode())
	assert.Equal(t, StatusReady, s.LastStatus())
	assert.Equal(t, []time.Duration{DefaultFastDelay, DefaultCrossChipDelay}, clk.slept)
	bus.AssertExpectations(t)
}

func TestTFLuna_BeginNoResponse(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, byte(0x10), []byte{0x0A}).Return(errors.New("nack")).Once()
	s := NewTFLuna(bus, WithClock(newRecordingClock()))

	err := s.Begin(context.Background())
	assert.ErrorIs(t, err, ErrNoResponse)
	assert.Equal(t, ModeUnset, s.Mode())
	assert.Equal(t, StatusNoResponse, s.LastStatus())
	bus.AssertNotCalled(t, "WriteToAddr", mock.Anything, byte(0x10), []byte{0x23, 0x01})
}

func TestTFLuna_BeginInvalidAddress(t *testing.T) {
	bus := new(MockI2CBus)
	s := NewTFLuna(bus, WithAddress(0x05), WithClock(newRecordingClock()))

	err := s.Begin(context.Background())
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.Equal(t, StatusInvalidParameter, s.LastStatus())
	bus.AssertNotCalled(t, "WriteToAddr", mock.Anything, mock.Anything, mock.Anything)
}

func TestTFLuna_GetData(t *testing.T) {
	tests := []struct {
		name     string
		frame    []byte
		expected Measurement
	}{
		{
			name:     "ready",
			frame:    []byte{0x96, 0x00, 0xF4, 0x01, 0x64, 0x00},
			expected: Measurement{Dist: 150, Flux: 500, Temp: 100, Celsius: 25, Status: StatusReady},
		},
		{
			name:     "weak",
			frame:    []byte{0x96, 0x00, 0x32, 0x00, 0x64, 0x00},
			expected: Measurement{Dist: -1, Flux: 50, Temp: 100, Celsius: 25, Status: StatusWeak},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := new(MockI2CBus)
			expectBegin(bus, 0x10)
			bus.On("WriteToAddr", mock.Anything, byte(0x10), []byte{0x24, 0x01}).Return(nil).Once()
			bus.On("WriteToAddr", mock.Anything, byte(0x10), []byte{0x00}).Return(nil).Once()
			bus.On("ReadFromAddr", mock.Anything, byte(0x10), mock.Anything).Return(tt.frame, nil).Once()
			s := NewTFLuna(bus, WithClock(newRecordingClock()))
			require.NoError(t, s.Begin(context.Background()))

			m, err := s.GetData(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, m)
			assert.Equal(t, tt.expected.Status, s.LastStatus())
			bus.AssertExpectations(t)
		})
	}
}

func TestTFLuna_GetDataTriggerFailure(t *testing.T) {
	bus := new(MockI2CBus)
	expectBegin(bus, 0x10)
	bus.On("WriteToAddr", mock.Anything, byte(0x10), []byte{0x24, 0x01}).Return(errors.New("nack")).Once()
	s := NewTFLuna(bus, WithClock(newRecordingClock()))
	require.NoError(t, s.Begin(context.Background()))

	m, err := s.GetData(context.Background())
	assert.ErrorIs(t, err, ErrCommFail)
	assert.Equal(t, StatusCommFail, m.Status)
	assert.Equal(t, StatusCommFail, s.LastStatus())
	bus.AssertNotCalled(t, "WriteToAddr", mock.Anything, byte(0x10), []byte{0x00})
}

func TestTFLuna_NotInitialized(t *testing.T) {
	s := NewTFLuna(NewSimulatedBus(DefaultAddress), WithClock(newRecordingClock()))
	_, err := s.GetData(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, s.SetFrameRate(context.Background(), 10), ErrNotInitialized)
	assert.Equal(t, StatusNotReady, s.LastStatus())
}

func TestTFLuna_SetI2CAddrRejected(t *testing.T) {
	for _, addr := range []byte{0x00, 0x05, 0x06, 0x78, 0xFF} {
		s, bus, _ := newSimSession(t)
		before := len(bus.Writes())

		err := s.SetI2CAddr(context.Background(), addr)
		assert.ErrorIs(t, err, ErrInvalidParameter)
		assert.Equal(t, StatusInvalidParameter, s.LastStatus())
		assert.Len(t, bus.Writes(), before, "no bus traffic for %#x", addr)
		_, pending := s.PendingAddress()
		assert.False(t, pending)
	}
}

func TestTFLuna_AddressChange(t *testing.T) {
	for addr := MinAddress; addr <= MaxAddress; addr++ {
		s, bus, _ := newSimSession(t)
		ctx := context.Background()

		require.NoError(t, s.SetI2CAddr(ctx, addr))
		assert.Equal(t, DefaultAddress, s.Address(), "address applied before reset")
		require.NoError(t, s.SoftReset(ctx))
		assert.Equal(t, addr, s.Address())
		assert.Equal(t, addr, bus.Address())

		m, err := s.GetData(ctx)
		require.NoError(t, err, "address %#x", addr)
		assert.True(t, m.Valid())
		if addr != DefaultAddress {
			assert.Error(t, bus.WriteToAddr(ctx, DefaultAddress, []byte{0x00}), "old address %#x still answers", DefaultAddress)
		}
	}
}

func TestTFLuna_AddressChangeNeedsAcknowledgedReset(t *testing.T) {
	s, bus, _ := newSimSession(t)
	ctx := context.Background()
	require.NoError(t, s.SetI2CAddr(ctx, 0x42))

	bus.SetAck(false)
	err := s.SoftReset(ctx)
	assert.ErrorIs(t, err, ErrNoResponse)
	assert.Equal(t, DefaultAddress, s.Address())
	pending, ok := s.PendingAddress()
	assert.True(t, ok)
	assert.Equal(t, byte(0x42), pending)
}

func TestTFLuna_SoftResetKeepsUnsavedMode(t *testing.T) {
	s, bus, _ := newSimSession(t)
	ctx := context.Background()
	mode := regAddr(RegMode)

	require.NoError(t, s.SoftReset(ctx))
	assert.Equal(t, ModeTrigger, s.Mode())
	assert.Equal(t, byte(modeValueTrigger), bus.Register(mode))

	_, err := s.GetData(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Triggers())

	require.NoError(t, s.SetModeCont(ctx))
	require.NoError(t, s.SoftReset(ctx))
	assert.Equal(t, ModeContinuous, s.Mode())
	assert.Equal(t, byte(modeValueContinuous), bus.Register(mode))
}

func TestTFLuna_SoftResetModeRestoreFailure(t *testing.T) {
	bus := new(MockI2CBus)
	expectBegin(bus, 0x10)
	s := NewTFLuna(bus, WithClock(newRecordingClock()))
	require.NoError(t, s.Begin(context.Background()))

	bus.On("WriteToAddr", mock.Anything, byte(0x10), []byte{0x21, 0x02}).Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, byte(0x10), []byte{0x23, 0x01}).Return(errors.New("nack")).Once()

	err := s.SoftReset(context.Background())
	assert.ErrorIs(t, err, ErrNoResponse)
	assert.Equal(t, StatusNoResponse, s.LastStatus())
	bus.AssertExpectations(t)
}

func TestTFLuna_FrameRate(t *testing.T) {
	s, bus, _ := newSimSession(t)
	ctx := context.Background()
	for fps := uint16(MinFrameRate); fps <= MaxFrameRate; fps++ {
		require.NoError(t, s.SetFrameRate(ctx, fps))
		got, err := s.GetFrameRate(ctx)
		require.NoError(t, err)
		assert.Equal(t, fps, got)
	}

	require.NoError(t, s.SetFrameRate(ctx, 20))
	for _, fps := range []uint16{0, 251, 1000} {
		err := s.SetFrameRate(ctx, fps)
		assert.ErrorIs(t, err, ErrInvalidParameter)
		assert.Equal(t, byte(20), bus.Register(0x26))
		assert.Equal(t, byte(0), bus.Register(0x27))
	}
}

func TestTFLuna_TriggerFreshness(t *testing.T) {
	s, bus, _ := newSimSession(t)
	ctx := context.Background()
	bus.QueueFrames(
		RawFrame{Dist: 120, Flux: 600, Temp: 100},
		RawFrame{Dist: 240, Flux: 700, Temp: 104},
	)

	first, err := s.GetData(ctx)
	require.NoError(t, err)
	second, err := s.GetData(ctx)
	require.NoError(t, err)

	assert.Equal(t, 120, first.Dist)
	assert.Equal(t, 240, second.Dist)
	assert.Equal(t, 26.0, second.Celsius)
	assert.Equal(t, 2, bus.Triggers())
}

func TestTFLuna_ReadConsumesTrigger(t *testing.T) {
	s, bus, _ := newSimSession(t)
	ctx := context.Background()
	bus.QueueFrames(RawFrame{Dist: 55, Flux: 300, Temp: 80})

	_, err := s.Read(ctx)
	assert.ErrorIs(t, err, ErrNotTriggered)

	require.NoError(t, s.SetTrigger(ctx))
	m, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 55, m.Dist)

	_, err = s.Read(ctx)
	assert.ErrorIs(t, err, ErrNotTriggered)
	assert.Equal(t, StatusNotReady, s.LastStatus())
	assert.Equal(t, 1, bus.Triggers())
}

func TestTFLuna_ReadFailureKeepsLast(t *testing.T) {
	s, bus, _ := newSimSession(t)
	ctx := context.Background()
	bus.QueueFrames(RawFrame{Dist: 77, Flux: 300, Temp: 80})
	_, err := s.GetData(ctx)
	require.NoError(t, err)

	require.NoError(t, s.SetTrigger(ctx))
	bus.SetAck(false)
	m, err := s.Read(ctx)
	assert.ErrorIs(t, err, ErrCommFail)
	assert.Equal(t, StatusCommFail, m.Status)
	assert.Equal(t, 77, m.Dist)
	assert.Equal(t, StatusCommFail, s.LastStatus())
	assert.Equal(t, err, s.LastError())
}

func TestTFLuna_ContinuousMode(t *testing.T) {
	s, bus, _ := newSimSession(t)
	ctx := context.Background()

	require.NoError(t, s.SetModeCont(ctx))
	assert.Equal(t, ModeContinuous, s.Mode())
	assert.Equal(t, byte(0), bus.Register(0x23))

	_, err := s.GetData(ctx)
	assert.ErrorIs(t, err, ErrModeNotTrigger)
	assert.ErrorIs(t, s.SetTrigger(ctx), ErrModeNotTrigger)

	mode, err := s.ReadMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeContinuous, mode)

	require.NoError(t, s.SetModeTrig(ctx))
	_, err = s.GetData(ctx)
	assert.NoError(t, err)
}

func TestTFLuna_HardReset(t *testing.T) {
	s, bus, _ := newSimSession(t)
	ctx := context.Background()
	require.NoError(t, s.SetI2CAddr(ctx, 0x20))
	require.NoError(t, s.SoftReset(ctx))
	require.NoError(t, s.SetFrameRate(ctx, 20))
	require.Equal(t, byte(0x20), bus.Address())

	require.NoError(t, s.HardReset(ctx))
	pending, ok := s.PendingAddress()
	assert.True(t, ok)
	assert.Equal(t, DefaultAddress, pending)

	require.NoError(t, s.SoftReset(ctx))
	assert.Equal(t, DefaultAddress, s.Address())
	assert.Equal(t, DefaultAddress, bus.Address())
	assert.Equal(t, ModeContinuous, s.Mode())

	fps, err := s.GetFrameRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(simDefaultFPS), fps)
}

func TestTFLuna_Disable(t *testing.T) {
	s, bus, _ := newSimSession(t)
	ctx := context.Background()

	require.NoError(t, s.SetDisable(ctx))
	assert.Equal(t, byte(1), bus.Register(0x25))
	m, err := s.GetData(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusWeak, m.Status)
	assert.Equal(t, -1, m.Dist)

	require.NoError(t, s.SetEnable(ctx))
	m, err = s.GetData(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, m.Status)
}

func TestTFLuna_LowPower(t *testing.T) {
	s, bus, _ := newSimSession(t)
	ctx := context.Background()
	require.NoError(t, s.SetLowPower(ctx, true))
	assert.Equal(t, byte(1), bus.Register(0x28))
	require.NoError(t, s.SetLowPower(ctx, false))
	assert.Equal(t, byte(0), bus.Register(0x28))
}

func TestTFLuna_Identity(t *testing.T) {
	s, bus, _ := newSimSession(t)
	ctx := context.Background()
	bus.SetProdCode("TF0123456789AB")
	bus.SetFirmware(2, 1, 7)

	code, err := s.GetProdCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "TF0123456789AB", code)
	assert.Len(t, code, 14)

	bus.SetProdCode("TF01")
	code, err = s.GetProdCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "TF01", code)

	version, err := s.GetFirmwareVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2.1.7", version)
}

func TestTFLuna_TimeAndErrorCode(t *testing.T) {
	s, _, _ := newSimSession(t)
	ctx := context.Background()
	_, err := s.GetData(ctx)
	require.NoError(t, err)

	tick, err := s.GetTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(10), tick)

	code, err := s.GetErrorCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), code)
}

func TestTFLuna_SettleDelays(t *testing.T) {
	timing := Timing{Fast: time.Millisecond, CrossChip: 10 * time.Millisecond, Flash: time.Second}
	tests := []struct {
		name     string
		op       func(ctx context.Context, s *TFLuna) error
		expected []time.Duration
	}{
		{
			name:     "save",
			op:       func(ctx context.Context, s *TFLuna) error { return s.SaveSettings(ctx) },
			expected: []time.Duration{time.Second},
		},
		{
			name:     "soft reset",
			op:       func(ctx context.Context, s *TFLuna) error { return s.SoftReset(ctx) },
			expected: []time.Duration{time.Second, 10 * time.Millisecond},
		},
		{
			name:     "frame rate waits once after both bytes",
			op:       func(ctx context.Context, s *TFLuna) error { return s.SetFrameRate(ctx, 50) },
			expected: []time.Duration{10 * time.Millisecond},
		},
		{
			name:     "address",
			op:       func(ctx context.Context, s *TFLuna) error { return s.SetI2CAddr(ctx, 0x30) },
			expected: []time.Duration{time.Millisecond},
		},
		{
			name: "sample",
			op: func(ctx context.Context, s *TFLuna) error {
				_, err := s.GetData(ctx)
				return err
			},
			expected: []time.Duration{10 * time.Millisecond, time.Millisecond},
		},
		{
			name:     "rejected parameter",
			op:       func(ctx context.Context, s *TFLuna) error { return s.SetFrameRate(ctx, 0) },
			expected: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, clk := newSimSession(t, WithTiming(timing))
			_ = tt.op(context.Background(), s)
			assert.Equal(t, tt.expected, clk.slept)
		})
	}
}

func TestTFLuna_CanceledContext(t *testing.T) {
	s, bus, _ := newSimSession(t)
	before := len(bus.Writes())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.SetFrameRate(ctx, 50)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, bus.Writes(), before)
}

func TestTFLuna_SaveSettings(t *testing.T) {
	s, bus, _ := newSimSession(t)
	require.NoError(t, s.SaveSettings(context.Background()))
	writes := bus.Writes()
	require.NotEmpty(t, writes)
	assert.Equal(t, []byte{0x20, 0x01}, writes[len(writes)-1].Data)
}

func TestTFLuna_ReadRaw(t *testing.T) {
	s, _, _ := newSimSession(t)
	ctx := context.Background()

	raw, err := s.ReadRaw(ctx, RegVersion)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, raw)

	_, err = s.ReadRaw(ctx, RegTrigger)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.Equal(t, StatusInvalidParameter, s.LastStatus())

	_, err = s.ReadRaw(ctx, "baud_rate")
	assert.ErrorIs(t, err, ErrUnknownRegister)
	assert.Equal(t, StatusInvalidParameter, s.LastStatus())
}

package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/rangefinder"
	"github.com/mklimuk/rangefinder/snsctx"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

const reportSize = 64

// HID report commands
const (
	cmdStatus        byte = 0x10
	cmdI2CWrite      byte = 0x90
	cmdI2CRead       byte = 0x91
	cmdI2CGetData    byte = 0x40
	cmdStatusCancel  byte = 0x10
	respI2CReadError byte = 0x41
)

var ErrDeviceNotFound = errors.New("MCP2221 device not found")
var ErrAmbiguousDevice = errors.New("ambiguous device identification")

var _ rangefinder.I2CBus = &MCP2221{}

type MCP2221Opts struct {
	// DeviceIndex selects the adapter when more than one is connected. -1 requires
	// exactly one adapter.
	DeviceIndex  int
	ResponseWait time.Duration
}

type MCP2221Opt func(*MCP2221Opts)

func WithDeviceIndex(index int) MCP2221Opt {
	return func(o *MCP2221Opts) {
		o.DeviceIndex = index
	}
}

func WithResponseWait(wait time.Duration) MCP2221Opt {
	return func(o *MCP2221Opts) {
		o.ResponseWait = wait
	}
}

// MCP2221 is a USB-to-I2C bridge driven through HID reports.
type MCP2221 struct {
	mx       sync.Mutex
	config   MCP2221Opts
	request  []byte
	response []byte
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"i2c_data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	ReadPending            int    `yaml:"read_pending"`
}

func NewMCP2221(opts ...MCP2221Opt) *MCP2221 {
	config := MCP2221Opts{
		DeviceIndex:  -1,
		ResponseWait: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &MCP2221{
		config:   config,
		request:  make([]byte, reportSize),
		response: make([]byte, reportSize),
	}
}

// Devices lists the connected MCP2221 adapters.
func Devices() []hid.DeviceInfo {
	return hid.Enumerate(VendorID, ProductID)
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	encodeI2CWrite(d.request, address, buffer)
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("write to %#x failed: %w", address, err)
	}
	// write could not be performed
	if d.response[1] == 0x01 {
		slog.DebugContext(ctx, "adapter busy", "addr", slog.IntValue(int(address)))
		return rangefinder.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	encodeI2CRead(d.request, address, len(buffer))
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("bus read from %#x failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		return rangefinder.ErrBusBusy
	}
	resetBuffer(d.request)
	d.request[0] = cmdI2CGetData
	resetBuffer(d.response)
	err = d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	return decodeReadData(d.response, address, buffer)
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	err := d.send(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
	*/
	status := &MCP2221Status{
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}

// ReleaseBus cancels the current I2C transfer and frees the bus, which is needed
// after a sensor stopped responding in the middle of a transaction.
func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[2] = cmdStatusCancel
	err := d.send(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("release request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func encodeI2CWrite(request []byte, address byte, buffer []byte) {
	request[0] = cmdI2CWrite
	binary.LittleEndian.PutUint16(request[1:3], uint16(len(buffer)))
	request[3] = address << 1
	copy(request[4:], buffer)
}

func encodeI2CRead(request []byte, address byte, n int) {
	request[0] = cmdI2CRead
	binary.LittleEndian.PutUint16(request[1:3], uint16(n))
	request[3] = address<<1 + 1
}

func decodeReadData(response []byte, address byte, buffer []byte) error {
	if response[1] == respI2CReadError {
		return fmt.Errorf("error reading from %#x: %w", address, rangefinder.ErrNoAck)
	}
	if response[3] == 127 || int(response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), response[3])
	}
	copy(buffer, response[4:])
	return nil
}

func (d *MCP2221) open() (*hid.Device, error) {
	devs := Devices()
	if len(devs) == 0 {
		return nil, ErrDeviceNotFound
	}
	index := d.config.DeviceIndex
	if index < 0 {
		if len(devs) > 1 {
			return nil, ErrAmbiguousDevice
		}
		index = 0
	}
	if index >= len(devs) {
		return nil, fmt.Errorf("no device with id %d", index)
	}
	dev, err := devs[index].Open()
	if err != nil {
		return nil, fmt.Errorf("error opening device: %w", err)
	}
	return dev, nil
}

func (d *MCP2221) send(ctx context.Context, response bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dev, err := d.open()
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			slog.DebugContext(ctx, "could not close adapter", "error", err)
		}
	}()
	snsctx.LogFrame(ctx, "usb-out", d.request[3]>>1, d.request)
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	if !response {
		return nil
	}
	time.Sleep(d.config.ResponseWait)
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	snsctx.LogFrame(ctx, "usb-in", d.request[3]>>1, d.response)
	return nil
}

func (d *MCP2221) resetBuffers() {
	resetBuffer(d.request)
	resetBuffer(d.response)
}

func resetBuffer(buf []byte) {
	for i := range buf {
		buf[i] = 0x00
	}
}

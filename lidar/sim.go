package lidar

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/mklimuk/rangefinder"
)

var _ rangefinder.I2CBus = &SimulatedBus{}

const (
	simRegisterSpace = 0x30
	simDefaultFPS    = 100
)

// persisted lists the settings a soft reset reloads from flash. The address
// register is not reloaded so that a pending address takes effect on reboot.
var persisted = []RegisterName{RegMode, RegDisable, RegFPS, RegLowPower}

// BusWrite records a write seen by the simulated device.
type BusWrite struct {
	Address byte
	Data    []byte
}

// SimulatedBus models a TF-Luna on an I2C bus at register level. Writes select a
// register with the first byte and store the remaining bytes with auto-increment;
// reads return bytes from the selected register. In trigger mode a new sample is
// produced only by a write to the trigger register; in continuous mode every read of
// the measurement window produces one. Settings survive a soft reset only once
// saved to flash.
type SimulatedBus struct {
	mx       sync.Mutex
	address  byte
	regs     [simRegisterSpace]byte
	flash    [simRegisterSpace]byte
	pointer  byte
	noAck    bool
	frames   []RawFrame
	triggers int
	samples  int
	writes   []BusWrite
}

func NewSimulatedBus(address byte) *SimulatedBus {
	b := &SimulatedBus{address: address}
	b.factoryDefaults()
	b.SetFirmware(3, 2, 1)
	b.SetProdCode("TFLUNA00000001")
	return b
}

func (b *SimulatedBus) factoryDefaults() {
	b.regs[regAddr(RegI2CAddr)] = DefaultAddress
	b.regs[regAddr(RegMode)] = modeValueContinuous
	b.regs[regAddr(RegDisable)] = 0
	b.regs[regAddr(RegLowPower)] = 0
	binary.LittleEndian.PutUint16(b.regs[regAddr(RegFPS):], simDefaultFPS)
	b.save()
}

func (b *SimulatedBus) save() {
	for _, name := range persisted {
		e, _ := Entry(name)
		copy(b.flash[e.Addr:int(e.Addr)+e.Width], b.regs[e.Addr:])
	}
}

func (b *SimulatedBus) reload() {
	for _, name := range persisted {
		e, _ := Entry(name)
		copy(b.regs[e.Addr:int(e.Addr)+e.Width], b.flash[e.Addr:])
	}
}

// regAddr returns the wire address of a register, panicking on unknown names.
func regAddr(name RegisterName) byte {
	e, err := Entry(name)
	if err != nil {
		panic(err)
	}
	return e.Addr
}

// SetFirmware sets the version registers.
func (b *SimulatedBus) SetFirmware(major, minor, revision byte) {
	b.mx.Lock()
	defer b.mx.Unlock()
	addr := regAddr(RegVersion)
	b.regs[addr] = revision
	b.regs[addr+1] = minor
	b.regs[addr+2] = major
}

// SetProdCode stores code in the production code block, padded with zero bytes.
func (b *SimulatedBus) SetProdCode(code string) {
	b.mx.Lock()
	defer b.mx.Unlock()
	addr := regAddr(RegProdCode)
	block := b.regs[addr : int(addr)+14]
	for i := range block {
		block[i] = 0
	}
	copy(block, code)
}

// QueueFrames queues raw samples returned by the following triggers.
// Once the queue is empty synthetic samples are produced.
func (b *SimulatedBus) QueueFrames(frames ...RawFrame) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.frames = append(b.frames, frames...)
}

// SetAck controls whether the device acknowledges transactions.
func (b *SimulatedBus) SetAck(ack bool) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.noAck = !ack
}

// Address returns the address the device currently answers on.
func (b *SimulatedBus) Address() byte {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.address
}

// Register returns the content of a single register byte.
func (b *SimulatedBus) Register(addr byte) byte {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.regs[addr]
}

// Triggers returns how many triggers produced a sample.
func (b *SimulatedBus) Triggers() int {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.triggers
}

// Writes returns the writes acknowledged so far.
func (b *SimulatedBus) Writes() []BusWrite {
	b.mx.Lock()
	defer b.mx.Unlock()
	out := make([]BusWrite, len(b.writes))
	copy(out, b.writes)
	return out
}

func (b *SimulatedBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if err := b.ack(address); err != nil {
		return err
	}
	b.writes = append(b.writes, BusWrite{Address: address, Data: append([]byte(nil), buffer...)})
	if len(buffer) == 0 {
		return nil
	}
	b.pointer = buffer[0]
	for _, v := range buffer[1:] {
		if int(b.pointer) >= simRegisterSpace {
			return fmt.Errorf("sim: register %#x out of range", b.pointer)
		}
		b.store(b.pointer, v)
		b.pointer++
	}
	return nil
}

func (b *SimulatedBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if err := b.ack(address); err != nil {
		return err
	}
	if b.pointer == frameAddr && b.regs[regAddr(RegMode)] == modeValueContinuous {
		b.sample()
	}
	for i := range buffer {
		if int(b.pointer) >= simRegisterSpace {
			return fmt.Errorf("sim: register %#x out of range", b.pointer)
		}
		buffer[i] = b.regs[b.pointer]
		b.pointer++
	}
	return nil
}

func (b *SimulatedBus) ack(address byte) error {
	if b.noAck || address != b.address {
		return fmt.Errorf("sim: address %#x: %w", address, rangefinder.ErrNoAck)
	}
	return nil
}

func (b *SimulatedBus) store(reg byte, v byte) {
	switch reg {
	case regAddr(RegTrigger):
		if v == cmdTrigger && b.regs[regAddr(RegMode)] == modeValueTrigger {
			b.triggers++
			b.sample()
		}
	case regAddr(RegSoftReset):
		if v == cmdSoftReset {
			b.address = b.regs[regAddr(RegI2CAddr)]
			b.reload()
			binary.LittleEndian.PutUint16(b.regs[regAddr(RegTick):], 0)
		}
	case regAddr(RegHardReset):
		if v == cmdHardReset {
			b.factoryDefaults()
		}
	case regAddr(RegSave):
		if v == cmdSave {
			b.save()
		}
	default:
		b.regs[reg] = v
	}
}

// sample loads the next frame into the measurement window.
func (b *SimulatedBus) sample() {
	b.samples++
	var f RawFrame
	if len(b.frames) > 0 {
		f = b.frames[0]
		b.frames = b.frames[1:]
	} else {
		f = RawFrame{Dist: uint16(100 + b.samples%50), Flux: 1000, Temp: 100}
	}
	if b.regs[regAddr(RegDisable)] == 1 {
		f.Dist, f.Flux = 0, 0
	}
	binary.LittleEndian.PutUint16(b.regs[0:], f.Dist)
	binary.LittleEndian.PutUint16(b.regs[2:], f.Flux)
	binary.LittleEndian.PutUint16(b.regs[4:], f.Temp)
	tick := binary.LittleEndian.Uint16(b.regs[regAddr(RegTick):])
	binary.LittleEndian.PutUint16(b.regs[regAddr(RegTick):], tick+10)
}

package vm

import (
	"errors"
	"sync"

	"github.com/chazu/sil/pkg/sil"
)

// ---------------------------------------------------------------------------
// Host devices: ports, sensors, actuators and syscalls
// ---------------------------------------------------------------------------

// Port is a bidirectional channel addressed by IN and OUT.
type Port interface {
	Read() (sil.ByteSil, error)
	Write(v sil.ByteSil) error
}

// Sensor is read by SENSE.
type Sensor interface {
	Sense() (sil.ByteSil, error)
}

// Actuator is driven by ACT.
type Actuator interface {
	Act(v sil.ByteSil) error
}

// Syscall handles SYS. It may read and write registers through ctx.
type Syscall func(ctx *SyscallContext) error

// PortFunc adapts a pair of functions to Port. A nil half reports
// ErrUnsupported.
type PortFunc struct {
	In  func() (sil.ByteSil, error)
	Out func(sil.ByteSil) error
}

// ErrUnsupported is returned by adapters missing a direction.
var ErrUnsupported = errors.New("vm: operation not supported by device")

func (p PortFunc) Read() (sil.ByteSil, error) {
	if p.In == nil {
		return sil.Null, ErrUnsupported
	}
	return p.In()
}

func (p PortFunc) Write(v sil.ByteSil) error {
	if p.Out == nil {
		return ErrUnsupported
	}
	return p.Out(v)
}

// SensorFunc adapts a function to Sensor.
type SensorFunc func() (sil.ByteSil, error)

func (f SensorFunc) Sense() (sil.ByteSil, error) { return f() }

// ActuatorFunc adapts a function to Actuator.
type ActuatorFunc func(sil.ByteSil) error

func (f ActuatorFunc) Act(v sil.ByteSil) error { return f(v) }

// SyscallContext is the view of the VM a syscall gets: registers only.
type SyscallContext struct {
	regs  *[16]sil.ByteSil
	PC    uint32
	Cycle uint64
	ID    uint8
}

// Register returns r[i&15].
func (c *SyscallContext) Register(i int) sil.ByteSil {
	return c.regs[i&15]
}

// SetRegister writes r[i&15].
func (c *SyscallContext) SetRegister(i int, v sil.ByteSil) {
	c.regs[i&15] = v
}

// Devices is the host registry consulted by the I/O opcodes. It may be
// populated from another goroutine while a VM runs.
type Devices struct {
	mu        sync.RWMutex
	ports     map[uint8]Port
	sensors   map[uint8]Sensor
	actuators map[uint8]Actuator
	syscalls  map[uint8]Syscall
}

// NewDevices returns an empty registry.
func NewDevices() *Devices {
	return &Devices{
		ports:     make(map[uint8]Port),
		sensors:   make(map[uint8]Sensor),
		actuators: make(map[uint8]Actuator),
		syscalls:  make(map[uint8]Syscall),
	}
}

func (d *Devices) RegisterPort(id uint8, p Port) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ports[id] = p
}

func (d *Devices) RegisterSensor(id uint8, s Sensor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sensors[id] = s
}

func (d *Devices) RegisterActuator(id uint8, a Actuator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actuators[id] = a
}

func (d *Devices) RegisterSyscall(id uint8, fn Syscall) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.syscalls[id] = fn
}

func (d *Devices) port(id uint8) Port {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ports[id]
}

func (d *Devices) sensor(id uint8) Sensor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sensors[id]
}

func (d *Devices) actuator(id uint8) Actuator {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.actuators[id]
}

func (d *Devices) syscall(id uint8) Syscall {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.syscalls[id]
}

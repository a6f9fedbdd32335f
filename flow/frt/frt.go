// Package frt loads accelerator bitstreams and runs them from the host.
//
// Device runtimes register a Driver under the bitstream file extension they
// handle; generated host code calls Open with the bitstream path.
package frt

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNoDriver is returned when no driver handles a bitstream.
var ErrNoDriver = errors.New("no driver for bitstream")

// ArgInfo describes one kernel argument as recorded in the bitstream.
type ArgInfo struct {
	Index int
	Name  string
	Type  string
}

func (a ArgInfo) String() string {
	return fmt.Sprintf("%d: %s (%s)", a.Index, a.Name, a.Type)
}

// Instance is one loaded bitstream.
type Instance interface {
	Args() []ArgInfo
	// SetArg binds a scalar or a Buffer to the argument at index.
	SetArg(index int, value any) error
	WriteToDevice() error
	Exec() error
	ReadFromDevice() error
	Finish() error
}

// Driver opens bitstreams of one kind.
type Driver interface {
	Open(bitstream string) (Instance, error)
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a driver available for bitstreams ending in "."+ext. It
// panics if ext is registered twice or driver is nil.
func Register(ext string, driver Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if driver == nil {
		panic("frt: Register driver is nil")
	}
	ext = strings.TrimPrefix(ext, ".")
	if _, dup := drivers[ext]; dup {
		panic("frt: Register called twice for extension " + ext)
	}
	drivers[ext] = driver
}

// Drivers returns the registered extensions in sorted order.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	out := make([]string, 0, len(drivers))
	for ext := range drivers {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Open loads bitstream with the driver registered for its extension.
func Open(bitstream string) (Instance, error) {
	ext := strings.TrimPrefix(filepath.Ext(bitstream), ".")
	driversMu.RLock()
	driver, ok := drivers[ext]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoDriver, bitstream)
	}
	inst, err := driver.Open(bitstream)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", bitstream, err)
	}
	return inst, nil
}

// Direction tells the runtime which transfers a buffer needs.
type Direction int

const (
	// ReadOnlyDir buffers are only read back from the device.
	ReadOnlyDir Direction = iota
	// WriteOnlyDir buffers are only written to the device.
	WriteOnlyDir
	// ReadWriteDir buffers are written before and read after execution.
	ReadWriteDir
)

func (d Direction) String() string {
	switch d {
	case WriteOnlyDir:
		return "write-only"
	case ReadWriteDir:
		return "read-write"
	default:
		return "read-only"
	}
}

// Buffer is host memory bound to a memory-mapped kernel argument.
type Buffer struct {
	Dir Direction
	// Data is the host slice.
	Data any
	Len  int
}

// ReadOnly binds data that the device writes and the host reads back.
func ReadOnly[T any](data []T) Buffer {
	return Buffer{Dir: ReadOnlyDir, Data: data, Len: len(data)}
}

// WriteOnly binds data that the device only reads.
func WriteOnly[T any](data []T) Buffer {
	return Buffer{Dir: WriteOnlyDir, Data: data, Len: len(data)}
}

// ReadWrite binds data that is copied to the device and back.
func ReadWrite[T any](data []T) Buffer {
	return Buffer{Dir: ReadWriteDir, Data: data, Len: len(data)}
}

package bt

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/lowaak/smart-trainer/interval-trainer/internal/events"
)

type BTDeviceState int

const (
	Disconnected BTDeviceState = iota
	Connecting
	Connected
)

func (s BTDeviceState) String() string {
	switch s {
	case Connected:
		return "Connected"
	case Connecting:
		return "Connecting"
	case Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

var (
	ErrNotConnected           = errors.New("bt: device not connected")
	ErrServiceNotFound        = errors.New("bt: service not found")
	ErrCharacteristicNotFound = errors.New("bt: characteristic not found")
)

// BTDevice is a peripheral that exposes GATT characteristics by uuid string
type BTDevice interface {
	GetAddressString() string
	GetLocalName() string
	GetState() BTDeviceState
	IsConnected() bool
	EnableNotifications(serviceUuid string, characteristicUuid string, callbackFunc func(buf []byte)) error
	DisableNotifications(serviceUuid string, characteristicUuid string) error
	WriteCharacteristic(serviceUuid string, characteristicUuid string, data []byte) error
	// ListenToState calls callback on every link state change, starting with
	// the current state once one has been reported
	ListenToState(callback func(BTDeviceState)) func()
}

type btDeviceImpl struct {
	address   bluetooth.Address
	localName string
	logger    *log.Logger

	mu              sync.RWMutex
	state           BTDeviceState
	connectedDevice *bluetooth.Device // nil while disconnected
	stateEvent      *events.CallbackEvent[BTDeviceState]

	// bleMu serializes GATT operations and guards the discovery caches
	bleMu                 sync.Mutex
	services              map[string]*bluetooth.DeviceService
	characteristics       map[string]*bluetooth.DeviceCharacteristic
	discoveredServices    map[string]bool
	allServicesDiscovered bool
}

func newBtDeviceImpl(logger *log.Logger, address bluetooth.Address, localName string) *btDeviceImpl {
	if logger == nil {
		panic("BTDevice: logger cannot be nil")
	}
	if localName == "" {
		localName = "Unknown"
	}
	return &btDeviceImpl{
		logger:             logger,
		address:            address,
		localName:          localName,
		state:              Disconnected,
		stateEvent:         events.NewCallbackEvent[BTDeviceState](true),
		services:           make(map[string]*bluetooth.DeviceService),
		characteristics:    make(map[string]*bluetooth.DeviceCharacteristic),
		discoveredServices: make(map[string]bool),
	}
}

func (b *btDeviceImpl) GetAddressString() string {
	return b.address.String()
}

func (b *btDeviceImpl) GetLocalName() string {
	return b.localName
}

func (b *btDeviceImpl) GetState() BTDeviceState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *btDeviceImpl) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connectedDevice != nil
}

func (b *btDeviceImpl) setConnected(device *bluetooth.Device) {
	b.mu.Lock()
	b.connectedDevice = device
	if device != nil {
		b.state = Connected
	} else {
		b.state = Disconnected
	}
	state := b.state
	b.mu.Unlock()

	if device == nil {
		// handles are invalid after a disconnect
		b.bleMu.Lock()
		clear(b.services)
		clear(b.characteristics)
		clear(b.discoveredServices)
		b.allServicesDiscovered = false
		b.bleMu.Unlock()
	}
	b.stateEvent.Notify(state)
}

func (b *btDeviceImpl) setState(state BTDeviceState) {
	b.mu.Lock()
	b.state = state
	b.mu.Unlock()
	b.stateEvent.Notify(state)
}

func (b *btDeviceImpl) ListenToState(callback func(BTDeviceState)) func() {
	return b.stateEvent.Listen(callback)
}

func (b *btDeviceImpl) getConnectedDevice() *bluetooth.Device {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connectedDevice
}

func (b *btDeviceImpl) EnableNotifications(serviceUuid string, characteristicUuid string, callbackFunc func(buf []byte)) error {
	b.bleMu.Lock()
	defer b.bleMu.Unlock()

	characteristic, err := b.characteristic(serviceUuid, characteristicUuid)
	if err != nil {
		return err
	}
	if err := characteristic.EnableNotifications(callbackFunc); err != nil {
		return fmt.Errorf("enable notifications on %s: %w", characteristicUuid, err)
	}
	b.logger.Printf("BTDevice: Notifications enabled for %s", characteristicUuid)
	return nil
}

func (b *btDeviceImpl) DisableNotifications(serviceUuid string, characteristicUuid string) error {
	b.bleMu.Lock()
	defer b.bleMu.Unlock()

	characteristic, err := b.characteristic(serviceUuid, characteristicUuid)
	if err != nil {
		return err
	}
	// a nil callback unsubscribes
	if err := characteristic.EnableNotifications(nil); err != nil {
		return fmt.Errorf("disable notifications on %s: %w", characteristicUuid, err)
	}
	return nil
}

func (b *btDeviceImpl) WriteCharacteristic(serviceUuid string, characteristicUuid string, data []byte) error {
	b.bleMu.Lock()
	defer b.bleMu.Unlock()

	characteristic, err := b.characteristic(serviceUuid, characteristicUuid)
	if err != nil {
		return err
	}
	if _, err := characteristic.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", characteristicUuid, err)
	}
	return nil
}

// characteristic resolves a characteristic, discovering every service and then every
// characteristic of the service once. Rediscovering single services interrupts
// notifications already enabled on some stacks. Caller holds bleMu.
func (b *btDeviceImpl) characteristic(serviceUuidStr, characteristicUuidStr string) (*bluetooth.DeviceCharacteristic, error) {
	serviceUuid, err := bluetooth.ParseUUID(serviceUuidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", serviceUuidStr, err)
	}
	characteristicUuid, err := bluetooth.ParseUUID(characteristicUuidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid characteristic UUID %q: %w", characteristicUuidStr, err)
	}

	key := characteristicKey(serviceUuid, characteristicUuid)
	if characteristic, ok := b.characteristics[key]; ok {
		return characteristic, nil
	}

	if !b.discoveredServices[serviceUuid.String()] {
		service, err := b.service(serviceUuid)
		if err != nil {
			return nil, err
		}
		discovered, err := service.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("discover characteristics of %s: %w", serviceUuid, err)
		}
		for i := range discovered {
			b.characteristics[characteristicKey(serviceUuid, discovered[i].UUID())] = &discovered[i]
		}
		b.discoveredServices[serviceUuid.String()] = true
	}

	characteristic, ok := b.characteristics[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrCharacteristicNotFound, characteristicUuid, serviceUuid)
	}
	return characteristic, nil
}

func (b *btDeviceImpl) service(serviceUuid bluetooth.UUID) (*bluetooth.DeviceService, error) {
	if service, ok := b.services[serviceUuid.String()]; ok {
		return service, nil
	}

	device := b.getConnectedDevice()
	if device == nil {
		return nil, ErrNotConnected
	}

	if !b.allServicesDiscovered {
		b.logger.Printf("BTDevice: Discovering services of %s", b.GetAddressString())
		discovered, err := device.DiscoverServices(nil)
		if err != nil {
			return nil, fmt.Errorf("discover services: %w", err)
		}
		for i := range discovered {
			b.services[discovered[i].UUID().String()] = &discovered[i]
		}
		b.allServicesDiscovered = true
	}

	service, ok := b.services[serviceUuid.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceUuid)
	}
	return service, nil
}

func characteristicKey(service, characteristic bluetooth.UUID) string {
	return service.String() + "_" + characteristic.String()
}

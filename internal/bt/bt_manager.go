package bt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/lowaak/smart-trainer/interval-trainer/internal/events"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/go_func_utils"
)

var ErrDeviceNotFound = errors.New("bt: device not found")

// BTManagerInterface connects to known peripherals by address
type BTManagerInterface interface {
	Enable() error
	ConnectByAddress(ctx context.Context, address string) (BTDevice, error)
	Disconnect(device BTDevice) error
	ListenToConnectedDevices(ch chan<- []BTDevice) func()
	Shutdown()
}

var _ BTManagerInterface = (*BTManager)(nil)

type BTManager struct {
	adapter *bluetooth.Adapter
	logger  *log.Logger

	mu               sync.RWMutex
	devicesByAddress map[string]*btDeviceImpl

	connectedDevicesEvent *events.ChannelEvent[[]BTDevice]
	wg                    sync.WaitGroup
}

func NewBTManager(adapter *bluetooth.Adapter, logger *log.Logger) *BTManager {
	if logger == nil {
		panic("BTManager: logger cannot be nil")
	}
	return &BTManager{
		adapter:               adapter,
		logger:                logger,
		devicesByAddress:      make(map[string]*btDeviceImpl),
		connectedDevicesEvent: events.NewChannelEvent[[]BTDevice](true),
	}
}

// Enable powers the adapter and tracks link changes reported by the stack
func (m *BTManager) Enable() error {
	m.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		d, ok := m.lookup(device.Address.String())
		if !ok {
			return
		}
		if connected {
			m.logger.Printf("BTManager: Device connected: %s", d.GetAddressString())
			d.setConnected(&device)
		} else {
			m.logger.Printf("BTManager: Device disconnected: %s", d.GetAddressString())
			d.setConnected(nil)
		}
		m.emitConnectedDevicesChange()
	})
	return m.adapter.Enable()
}

// ConnectByAddress scans until address is advertised, then connects to it.
// The scan is abandoned when ctx is done.
func (m *BTManager) ConnectByAddress(ctx context.Context, address string) (BTDevice, error) {
	m.logger.Printf("BTManager: Looking for %s", address)
	result, err := m.scanFor(ctx, address)
	if err != nil {
		return nil, err
	}

	d := newBtDeviceImpl(m.logger, result.Address, result.LocalName())
	m.mu.Lock()
	m.devicesByAddress[normalizeAddress(d.GetAddressString())] = d
	m.mu.Unlock()

	d.setState(Connecting)
	device, err := m.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		d.setState(Disconnected)
		return nil, fmt.Errorf("connect %s: %w", address, err)
	}
	d.setConnected(&device)
	m.emitConnectedDevicesChange()

	m.logger.Printf("BTManager: Connected to %s (%s)", d.GetLocalName(), d.GetAddressString())
	return d, nil
}

func (m *BTManager) scanFor(ctx context.Context, address string) (bluetooth.ScanResult, error) {
	want := normalizeAddress(address)
	found := make(chan bluetooth.ScanResult, 1)
	scanDone := make(chan error, 1)

	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() {
		defer m.wg.Done()
		scanDone <- m.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if normalizeAddress(result.Address.String()) != want {
				return
			}
			select {
			case found <- result:
				if err := adapter.StopScan(); err != nil {
					m.logger.Printf("BTManager: Error stopping scan: %v", err)
				}
			default:
			}
		})
	})

	select {
	case result := <-found:
		return result, nil
	case err := <-scanDone:
		select {
		case result := <-found:
			return result, nil
		default:
		}
		if err == nil {
			err = ErrDeviceNotFound
		}
		return bluetooth.ScanResult{}, fmt.Errorf("scan for %s: %w", address, err)
	case <-ctx.Done():
		if err := m.adapter.StopScan(); err != nil {
			m.logger.Printf("BTManager: Error stopping scan: %v", err)
		}
		return bluetooth.ScanResult{}, fmt.Errorf("%w: %s: %w", ErrDeviceNotFound, address, ctx.Err())
	}
}

func (m *BTManager) Disconnect(device BTDevice) error {
	d, ok := m.lookup(device.GetAddressString())
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, device.GetAddressString())
	}
	inner := d.getConnectedDevice()
	if inner == nil {
		return nil
	}
	m.logger.Printf("BTManager: Disconnecting from %s", d.GetAddressString())
	if err := inner.Disconnect(); err != nil {
		return err
	}
	d.setConnected(nil)
	m.emitConnectedDevicesChange()
	return nil
}

// ListenToConnectedDevices registers a channel for connected device list changes
func (m *BTManager) ListenToConnectedDevices(ch chan<- []BTDevice) func() {
	return m.connectedDevicesEvent.Listen(ch)
}

// Shutdown disconnects every device and waits for scans to finish
func (m *BTManager) Shutdown() {
	m.logger.Println("BTManager: Shutting down")
	for _, d := range m.connected() {
		if err := m.Disconnect(d); err != nil {
			m.logger.Printf("BTManager: Error disconnecting from %v: %v", d.GetAddressString(), err)
		}
	}
	if err := m.adapter.StopScan(); err != nil {
		m.logger.Printf("BTManager: Error stopping scan: %v", err)
	}
	m.wg.Wait()
	m.logger.Println("BTManager: Shutdown complete")
}

func (m *BTManager) lookup(address string) (*btDeviceImpl, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devicesByAddress[normalizeAddress(address)]
	return d, ok
}

func (m *BTManager) connected() []BTDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]BTDevice, 0)
	for _, d := range m.devicesByAddress {
		if d.IsConnected() {
			result = append(result, d)
		}
	}
	return result
}

func (m *BTManager) emitConnectedDevicesChange() {
	m.connectedDevicesEvent.Notify(m.connected())
}

// normalizeAddress makes MAC addresses and platform UUID addresses comparable
func normalizeAddress(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}

// SameAddress reports whether two addresses name the same peripheral
func SameAddress(a, b string) bool {
	return normalizeAddress(a) == normalizeAddress(b)
}

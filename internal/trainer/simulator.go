package trainer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lowaak/smart-trainer/interval-trainer/internal/bt"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/events"
	"github.com/lowaak/smart-trainer/interval-trainer/internal/go_func_utils"
)

const (
	DefaultSimulatorAddress = "00:11:22:33:44:02"
	maxRecordedWrites       = 100
)

// WrittenValue records a value written to a characteristic
type WrittenValue struct {
	Timestamp          time.Time `json:"timestamp"`
	ServiceUUID        string    `json:"serviceUuid"`
	CharacteristicUUID string    `json:"characteristicUuid"`
	DataHex            string    `json:"dataHex"`
	Description        string    `json:"description"`
}

// SimulatorState is what GET /api/state returns
type SimulatorState struct {
	Address          string  `json:"address"`
	LocalName        string  `json:"localName"`
	Connected        bool    `json:"connected"`
	PowerWatts       int16   `json:"power"`
	CadenceRpm       float64 `json:"cadence"`
	SpeedKmh         float64 `json:"speedKmh"`
	TargetPowerWatts int16   `json:"targetPower"`
	FadeWattsPerMin  float64 `json:"fadeWattsPerMin"`
	ControlGranted   bool    `json:"controlGranted"`
}

type SimulatedTrainerArgs struct {
	Logger *log.Logger

	// Optional
	Address         string
	LocalName       string
	PowerWatts      int16
	FadeWattsPerMin float64
	// NotifyInterval is the period of data notifications. Zero disables the
	// ticker; notifications are then sent only through Trigger.
	NotifyInterval time.Duration
	Now            func() time.Time
}

// SimulatedTrainer is an FTMS trainer that lives in process. It speaks the same
// bytes a real trainer does and can be driven over HTTP.
type SimulatedTrainer struct {
	logger    *log.Logger
	address   string
	localName string
	interval  time.Duration
	now       func() time.Time

	mu             sync.RWMutex
	state          bt.BTDeviceState
	power          int16
	cadence        float64
	speed          float64
	target         int16
	targetSetAt    time.Time
	fade           float64
	controlGranted bool
	callbacks      map[string]func([]byte)
	writes         []WrittenValue

	stateEvent *events.CallbackEvent[bt.BTDeviceState]

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ bt.BTDevice = (*SimulatedTrainer)(nil)

func NewSimulatedTrainer(args SimulatedTrainerArgs) *SimulatedTrainer {
	if args.Logger == nil {
		panic("SimulatedTrainer: logger cannot be nil")
	}
	if args.Address == "" {
		args.Address = DefaultSimulatorAddress
	}
	if args.LocalName == "" {
		args.LocalName = "Simulated Trainer"
	}
	if args.PowerWatts == 0 {
		args.PowerWatts = DefaultDemoBaseWatts
	}
	if args.Now == nil {
		args.Now = time.Now
	}
	return &SimulatedTrainer{
		logger:     args.Logger,
		address:    args.Address,
		localName:  args.LocalName,
		interval:   args.NotifyInterval,
		now:        args.Now,
		state:      bt.Disconnected,
		power:      args.PowerWatts,
		cadence:    90,
		speed:      30,
		fade:       args.FadeWattsPerMin,
		callbacks:  make(map[string]func([]byte)),
		stateEvent: events.NewCallbackEvent[bt.BTDeviceState](true),
	}
}

func (s *SimulatedTrainer) GetAddressString() string {
	return s.address
}

func (s *SimulatedTrainer) GetLocalName() string {
	return s.localName
}

func (s *SimulatedTrainer) GetState() bt.BTDeviceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *SimulatedTrainer) ListenToState(callback func(bt.BTDeviceState)) func() {
	return s.stateEvent.Listen(callback)
}

func (s *SimulatedTrainer) IsConnected() bool {
	return s.GetState() == bt.Connected
}

// SetConnected starts or stops the notification ticker along with the connection
func (s *SimulatedTrainer) SetConnected(connected bool) {
	s.mu.Lock()
	if connected {
		s.state = bt.Connected
	} else {
		s.state = bt.Disconnected
		s.controlGranted = false
		clear(s.callbacks)
	}
	state := s.state
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
	s.logger.Printf("SimulatedTrainer: State changed to %s", state)
	s.stateEvent.Notify(state)

	if connected && s.interval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		s.mu.Lock()
		s.cancel = cancel
		s.mu.Unlock()
		go_func_utils.SafeGoWait(s.logger, &s.wg, func() { s.runTicker(ctx) })
	}
}

func (s *SimulatedTrainer) runTicker(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Trigger()
		}
	}
}

func (s *SimulatedTrainer) supports(serviceUuid, characteristicUuid string) bool {
	switch {
	case serviceUuid == ServiceUUIDFTMS && characteristicUuid == CharUUIDIndoorBikeData:
	case serviceUuid == ServiceUUIDFTMS && characteristicUuid == CharUUIDFTMSControlPoint:
	case serviceUuid == ServiceUUIDCyclingPower && characteristicUuid == CharUUIDCyclingPowerMeasurement:
	default:
		return false
	}
	return true
}

func (s *SimulatedTrainer) EnableNotifications(serviceUuid string, characteristicUuid string, callbackFunc func(buf []byte)) error {
	if !s.IsConnected() {
		return bt.ErrNotConnected
	}
	if !s.supports(serviceUuid, characteristicUuid) {
		return fmt.Errorf("%w: %s/%s", bt.ErrCharacteristicNotFound, serviceUuid, characteristicUuid)
	}
	s.mu.Lock()
	s.callbacks[serviceUuid+"_"+characteristicUuid] = callbackFunc
	s.mu.Unlock()
	s.logger.Printf("SimulatedTrainer: Notifications enabled for %s", characteristicUuid)
	return nil
}

func (s *SimulatedTrainer) DisableNotifications(serviceUuid string, characteristicUuid string) error {
	if !s.supports(serviceUuid, characteristicUuid) {
		return fmt.Errorf("%w: %s/%s", bt.ErrCharacteristicNotFound, serviceUuid, characteristicUuid)
	}
	s.mu.Lock()
	delete(s.callbacks, serviceUuid+"_"+characteristicUuid)
	s.mu.Unlock()
	return nil
}

func (s *SimulatedTrainer) WriteCharacteristic(serviceUuid string, characteristicUuid string, data []byte) error {
	if !s.IsConnected() {
		return bt.ErrNotConnected
	}
	if serviceUuid != ServiceUUIDFTMS || characteristicUuid != CharUUIDFTMSControlPoint {
		return fmt.Errorf("%w: %s/%s is not writable", bt.ErrCharacteristicNotFound, serviceUuid, characteristicUuid)
	}
	if len(data) == 0 {
		return errors.New("simulator: empty control point write")
	}

	description := DescribeControlPoint(data)
	s.logger.Printf("SimulatedTrainer: Control point write %s (%s)", hex.EncodeToString(data), description)

	result, callback := func() (byte, func([]byte)) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.writes = append(s.writes, WrittenValue{
			Timestamp:          s.now(),
			ServiceUUID:        serviceUuid,
			CharacteristicUUID: characteristicUuid,
			DataHex:            hex.EncodeToString(data),
			Description:        description,
		})
		if len(s.writes) > maxRecordedWrites {
			s.writes = slices.Clone(s.writes[len(s.writes)-maxRecordedWrites:])
		}
		return s.handleControlLocked(data), s.callbacks[ServiceUUIDFTMS+"_"+CharUUIDFTMSControlPoint]
	}()

	if callback != nil {
		callback([]byte{FTMSOpCodeResponseCode, data[0], result})
	}
	return nil
}

func (s *SimulatedTrainer) handleControlLocked(data []byte) byte {
	switch data[0] {
	case FTMSOpCodeRequestControl:
		s.controlGranted = true
		return FTMSResultSuccess
	case FTMSOpCodeReset:
		s.controlGranted = false
		s.target = 0
		return FTMSResultSuccess
	case FTMSOpCodeStartOrResume, FTMSOpCodeStopOrPause:
		if !s.controlGranted {
			return FTMSResultControlNotPermitted
		}
		return FTMSResultSuccess
	case FTMSOpCodeSetTargetPower:
		if !s.controlGranted {
			return FTMSResultControlNotPermitted
		}
		if len(data) < 3 {
			return FTMSResultInvalidParameter
		}
		s.target = int16(le.Uint16(data[1:3]))
		s.targetSetAt = s.now()
		return FTMSResultSuccess
	default:
		return FTMSResultOpCodeNotSupported
	}
}

// currentPowerLocked follows the ERG target when one is set, faded by the
// time spent holding it
func (s *SimulatedTrainer) currentPowerLocked() int16 {
	if s.target == 0 {
		return s.power
	}
	watts := float64(s.target) - s.fade*s.now().Sub(s.targetSetAt).Minutes()
	return int16(clampWatts(watts))
}

// Trigger sends one notification on every enabled data characteristic
func (s *SimulatedTrainer) Trigger() {
	s.mu.RLock()
	power := s.currentPowerLocked()
	speed, cadence := s.speed, s.cadence
	ibd := s.callbacks[ServiceUUIDFTMS+"_"+CharUUIDIndoorBikeData]
	cp := s.callbacks[ServiceUUIDCyclingPower+"_"+CharUUIDCyclingPowerMeasurement]
	s.mu.RUnlock()

	if ibd != nil {
		ibd(EncodeIndoorBikeData(speed, cadence, power))
	}
	if cp != nil {
		cp(EncodeCyclingPower(power))
	}
}

func (s *SimulatedTrainer) State() SimulatorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SimulatorState{
		Address:          s.address,
		LocalName:        s.localName,
		Connected:        s.state == bt.Connected,
		PowerWatts:       s.currentPowerLocked(),
		CadenceRpm:       s.cadence,
		SpeedKmh:         s.speed,
		TargetPowerWatts: s.target,
		FadeWattsPerMin:  s.fade,
		ControlGranted:   s.controlGranted,
	}
}

// Writes returns the recorded control point writes, oldest first
func (s *SimulatedTrainer) Writes() []WrittenValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.writes)
}

// Handler serves the control API:
//
//	GET  /api/state    current values
//	POST /api/set      ?power=&cadence=&speedKmh=&fade=
//	GET  /api/writes   recorded control point writes
//	POST /api/trigger  send one round of notifications
func (s *SimulatedTrainer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleGetState)
		r.Post("/set", s.handleSet)
		r.Get("/writes", s.handleGetWrites)
		r.Post("/trigger", s.handleTrigger)
	})
	return r
}

func (s *SimulatedTrainer) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.State())
}

func (s *SimulatedTrainer) handleGetWrites(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Writes())
}

func (s *SimulatedTrainer) handleTrigger(w http.ResponseWriter, r *http.Request) {
	s.Trigger()
	w.WriteHeader(http.StatusNoContent)
}

func (s *SimulatedTrainer) handleSet(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	parse := func(key string) (float64, bool, error) {
		raw := query.Get(key)
		if raw == "" {
			return 0, false, nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return 0, false, fmt.Errorf("invalid %s: %q", key, raw)
		}
		return v, true, nil
	}

	power, hasPower, err := parse("power")
	if err == nil && power > MaxTargetPowerWatts {
		err = fmt.Errorf("invalid power: %v", power)
	}
	cadence, hasCadence, err2 := parse("cadence")
	speed, hasSpeed, err3 := parse("speedKmh")
	fade, hasFade, err4 := parse("fade")
	if err = errors.Join(err, err2, err3, err4); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if hasPower {
		s.power = int16(power)
	}
	if hasCadence {
		s.cadence = cadence
	}
	if hasSpeed {
		s.speed = speed
	}
	if hasFade {
		s.fade = fade
	}
	s.mu.Unlock()

	writeJSON(w, s.State())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// SimulatedManager hands out a single SimulatedTrainer by address
type SimulatedManager struct {
	logger  *log.Logger
	trainer *SimulatedTrainer
	addr    string

	server                *http.Server
	connectedDevicesEvent *events.ChannelEvent[[]bt.BTDevice]
	wg                    sync.WaitGroup
	shutdownOnce          sync.Once
}

var _ bt.BTManagerInterface = (*SimulatedManager)(nil)

// NewSimulatedManager serves the trainer's control API on addr when addr is not empty
func NewSimulatedManager(logger *log.Logger, trainer *SimulatedTrainer, addr string) *SimulatedManager {
	if logger == nil {
		panic("SimulatedManager: logger cannot be nil")
	}
	if trainer == nil {
		panic("SimulatedManager: trainer cannot be nil")
	}
	return &SimulatedManager{
		logger:                logger,
		trainer:               trainer,
		addr:                  addr,
		connectedDevicesEvent: events.NewChannelEvent[[]bt.BTDevice](true),
	}
}

func (m *SimulatedManager) Enable() error {
	m.connectedDevicesEvent.Notify([]bt.BTDevice{})
	if m.addr == "" || m.server != nil {
		return nil
	}
	m.server = &http.Server{Addr: m.addr, Handler: m.trainer.Handler()}
	go_func_utils.SafeGoWait(m.logger, &m.wg, func() {
		m.logger.Printf("SimulatedManager: Control API on http://%s/api/state", m.addr)
		if err := m.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			m.logger.Printf("SimulatedManager: Web server error: %v", err)
		}
	})
	return nil
}

func (m *SimulatedManager) ConnectByAddress(ctx context.Context, address string) (bt.BTDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !bt.SameAddress(address, m.trainer.GetAddressString()) {
		return nil, fmt.Errorf("%w: %s", bt.ErrDeviceNotFound, address)
	}
	m.trainer.SetConnected(true)
	m.connectedDevicesEvent.Notify([]bt.BTDevice{m.trainer})
	return m.trainer, nil
}

func (m *SimulatedManager) Disconnect(device bt.BTDevice) error {
	if device != bt.BTDevice(m.trainer) {
		return fmt.Errorf("%w: %s", bt.ErrDeviceNotFound, device.GetAddressString())
	}
	m.trainer.SetConnected(false)
	m.connectedDevicesEvent.Notify([]bt.BTDevice{})
	return nil
}

func (m *SimulatedManager) ListenToConnectedDevices(ch chan<- []bt.BTDevice) func() {
	return m.connectedDevicesEvent.Listen(ch)
}

func (m *SimulatedManager) Shutdown() {
	m.shutdownOnce.Do(func() {
		m.trainer.SetConnected(false)
		if m.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.server.Shutdown(ctx); err != nil {
				m.logger.Printf("SimulatedManager: Error shutting down web server: %v", err)
			}
		}
		m.wg.Wait()
		m.logger.Printf("SimulatedManager: Shutdown complete")
	})
}

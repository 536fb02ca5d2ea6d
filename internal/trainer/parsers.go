package trainer

import (
	"encoding/binary"
	"fmt"
)

// Indoor Bike Data flag bits (FTMS 1.0)
const (
	ibdFlagMoreData             = 1 << 0 // inverted: 0 means instantaneous speed is present
	ibdFlagAverageSpeed         = 1 << 1
	ibdFlagInstantaneousCadence = 1 << 2
	ibdFlagAverageCadence       = 1 << 3
	ibdFlagTotalDistance        = 1 << 4
	ibdFlagResistanceLevel      = 1 << 5
	ibdFlagInstantaneousPower   = 1 << 6
	ibdFlagAveragePower         = 1 << 7
	ibdFlagExpendedEnergy       = 1 << 8
	ibdFlagHeartRate            = 1 << 9
	ibdFlagMetabolicEquivalent  = 1 << 10
	ibdFlagElapsedTime          = 1 << 11
	ibdFlagRemainingTime        = 1 << 12
)

// IndoorBikeData is a decoded FTMS Indoor Bike Data notification.
// Fields whose flag is absent stay zero; use the Has methods to tell them apart.
type IndoorBikeData struct {
	Flags uint16

	SpeedKmh            float64
	AverageSpeedKmh     float64
	CadenceRpm          float64
	AverageCadenceRpm   float64
	TotalDistanceMeters uint32
	ResistanceLevel     int16
	PowerWatts          int16
	AveragePowerWatts   int16
	TotalEnergyKJ       uint16
	EnergyPerHourKJ     uint16
	EnergyPerMinuteKJ   uint8
	HeartRateBpm        uint8
	MetabolicEquivalent float64
	ElapsedSeconds      uint16
	RemainingSeconds    uint16
}

func (d IndoorBikeData) HasSpeed() bool     { return d.Flags&ibdFlagMoreData == 0 }
func (d IndoorBikeData) HasCadence() bool   { return d.Flags&ibdFlagInstantaneousCadence != 0 }
func (d IndoorBikeData) HasPower() bool     { return d.Flags&ibdFlagInstantaneousPower != 0 }
func (d IndoorBikeData) HasHeartRate() bool { return d.Flags&ibdFlagHeartRate != 0 }

// ibdField is one optional field, in payload order
type ibdField struct {
	name    string
	present func(flags uint16) bool
	size    int
	decode  func(d *IndoorBikeData, b []byte)
}

func flagSet(bit uint16) func(uint16) bool {
	return func(flags uint16) bool { return flags&bit != 0 }
}

var le = binary.LittleEndian

var ibdFields = []ibdField{
	{"instantaneous speed", func(f uint16) bool { return f&ibdFlagMoreData == 0 }, 2, func(d *IndoorBikeData, b []byte) {
		d.SpeedKmh = float64(le.Uint16(b)) * 0.01
	}},
	{"average speed", flagSet(ibdFlagAverageSpeed), 2, func(d *IndoorBikeData, b []byte) {
		d.AverageSpeedKmh = float64(le.Uint16(b)) * 0.01
	}},
	{"instantaneous cadence", flagSet(ibdFlagInstantaneousCadence), 2, func(d *IndoorBikeData, b []byte) {
		d.CadenceRpm = float64(le.Uint16(b)) * 0.5
	}},
	{"average cadence", flagSet(ibdFlagAverageCadence), 2, func(d *IndoorBikeData, b []byte) {
		d.AverageCadenceRpm = float64(le.Uint16(b)) * 0.5
	}},
	{"total distance", flagSet(ibdFlagTotalDistance), 3, func(d *IndoorBikeData, b []byte) {
		d.TotalDistanceMeters = uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
	}},
	{"resistance level", flagSet(ibdFlagResistanceLevel), 2, func(d *IndoorBikeData, b []byte) {
		d.ResistanceLevel = int16(le.Uint16(b))
	}},
	{"instantaneous power", flagSet(ibdFlagInstantaneousPower), 2, func(d *IndoorBikeData, b []byte) {
		d.PowerWatts = int16(le.Uint16(b))
	}},
	{"average power", flagSet(ibdFlagAveragePower), 2, func(d *IndoorBikeData, b []byte) {
		d.AveragePowerWatts = int16(le.Uint16(b))
	}},
	{"expended energy", flagSet(ibdFlagExpendedEnergy), 5, func(d *IndoorBikeData, b []byte) {
		d.TotalEnergyKJ = le.Uint16(b[0:2])
		d.EnergyPerHourKJ = le.Uint16(b[2:4])
		d.EnergyPerMinuteKJ = b[4]
	}},
	{"heart rate", flagSet(ibdFlagHeartRate), 1, func(d *IndoorBikeData, b []byte) {
		d.HeartRateBpm = b[0]
	}},
	{"metabolic equivalent", flagSet(ibdFlagMetabolicEquivalent), 1, func(d *IndoorBikeData, b []byte) {
		d.MetabolicEquivalent = float64(b[0]) * 0.1
	}},
	{"elapsed time", flagSet(ibdFlagElapsedTime), 2, func(d *IndoorBikeData, b []byte) {
		d.ElapsedSeconds = le.Uint16(b)
	}},
	{"remaining time", flagSet(ibdFlagRemainingTime), 2, func(d *IndoorBikeData, b []byte) {
		d.RemainingSeconds = le.Uint16(b)
	}},
}

// ParseIndoorBikeData decodes an FTMS Indoor Bike Data payload
func ParseIndoorBikeData(buf []byte) (IndoorBikeData, error) {
	if len(buf) < 2 {
		return IndoorBikeData{}, fmt.Errorf("%w: indoor bike data is %d bytes", ErrShortPayload, len(buf))
	}
	d := IndoorBikeData{Flags: le.Uint16(buf)}
	offset := 2
	for _, field := range ibdFields {
		if !field.present(d.Flags) {
			continue
		}
		if offset+field.size > len(buf) {
			return IndoorBikeData{}, fmt.Errorf("%w: %s at offset %d", ErrShortPayload, field.name, offset)
		}
		field.decode(&d, buf[offset:offset+field.size])
		offset += field.size
	}
	return d, nil
}

// EncodeIndoorBikeData is the inverse of ParseIndoorBikeData for speed, cadence and power
func EncodeIndoorBikeData(speedKmh, cadenceRpm float64, powerWatts int16) []byte {
	buf := le.AppendUint16(nil, ibdFlagInstantaneousCadence|ibdFlagInstantaneousPower)
	buf = le.AppendUint16(buf, uint16(speedKmh*100))
	buf = le.AppendUint16(buf, uint16(cadenceRpm*2))
	buf = le.AppendUint16(buf, uint16(powerWatts))
	return buf
}

func powerFromIndoorBikeData(buf []byte) (float64, error) {
	d, err := ParseIndoorBikeData(buf)
	if err != nil {
		return 0, err
	}
	if !d.HasPower() {
		return 0, ErrNoPowerField
	}
	return float64(d.PowerWatts), nil
}

// CyclingPowerMeasurement holds the mandatory part of a Cycling Power Measurement
type CyclingPowerMeasurement struct {
	Flags      uint16
	PowerWatts int16
}

// ParseCyclingPower decodes the flags and instantaneous power (SINT16, bytes 2-3)
func ParseCyclingPower(buf []byte) (CyclingPowerMeasurement, error) {
	if len(buf) < 4 {
		return CyclingPowerMeasurement{}, fmt.Errorf("%w: cycling power is %d bytes", ErrShortPayload, len(buf))
	}
	return CyclingPowerMeasurement{
		Flags:      le.Uint16(buf[0:2]),
		PowerWatts: int16(le.Uint16(buf[2:4])),
	}, nil
}

func EncodeCyclingPower(powerWatts int16) []byte {
	buf := le.AppendUint16(nil, 0)
	return le.AppendUint16(buf, uint16(powerWatts))
}

func powerFromCyclingPower(buf []byte) (float64, error) {
	m, err := ParseCyclingPower(buf)
	if err != nil {
		return 0, err
	}
	return float64(m.PowerWatts), nil
}

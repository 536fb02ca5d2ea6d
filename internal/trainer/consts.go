package trainer

import "time"

// Bluetooth Service and Characteristic UUIDs used for power and trainer control
const (
	// Cycling Power Service
	ServiceUUIDCyclingPower         = "00001818-0000-1000-8000-00805f9b34fb"
	CharUUIDCyclingPowerMeasurement = "00002a63-0000-1000-8000-00805f9b34fb"

	// Fitness Machine Service (FTMS)
	ServiceUUIDFTMS          = "00001826-0000-1000-8000-00805f9b34fb"
	CharUUIDIndoorBikeData   = "00002ad2-0000-1000-8000-00805f9b34fb"
	CharUUIDFTMSControlPoint = "00002ad9-0000-1000-8000-00805f9b34fb"
)

// DataStreamID uniquely identifies a power data stream
type DataStreamID string

const (
	StreamIndoorBikeData DataStreamID = "indoor_bike_data"
	StreamCyclingPower   DataStreamID = "cycling_power"
	StreamDemo           DataStreamID = "demo"
)

// PowerStream is a notify characteristic that carries instantaneous power
type PowerStream struct {
	ID                 DataStreamID
	DisplayName        string
	ServiceUUID        string
	CharacteristicUUID string
	parse              func(buf []byte) (float64, error)
}

// Parse extracts watts from one notification payload
func (s PowerStream) Parse(buf []byte) (float64, error) {
	return s.parse(buf)
}

var (
	DataStreamIndoorBikeData = PowerStream{
		ID:                 StreamIndoorBikeData,
		DisplayName:        "Indoor Bike Data",
		ServiceUUID:        ServiceUUIDFTMS,
		CharacteristicUUID: CharUUIDIndoorBikeData,
		parse:              powerFromIndoorBikeData,
	}
	DataStreamCyclingPower = PowerStream{
		ID:                 StreamCyclingPower,
		DisplayName:        "Cycling Power",
		ServiceUUID:        ServiceUUIDCyclingPower,
		CharacteristicUUID: CharUUIDCyclingPowerMeasurement,
		parse:              powerFromCyclingPower,
	}
)

// AllPowerStreams lists the streams a trainer is subscribed to, most preferred first
var AllPowerStreams = []PowerStream{
	DataStreamIndoorBikeData,
	DataStreamCyclingPower,
}

// GetPowerStreamByID returns a stream by its ID
func GetPowerStreamByID(id DataStreamID) (PowerStream, bool) {
	for _, s := range AllPowerStreams {
		if s.ID == id {
			return s, true
		}
	}
	return PowerStream{}, false
}

// FTMS Control Point Op Codes (Fitness Machine Service 1.0)
const (
	FTMSOpCodeRequestControl      byte = 0x00
	FTMSOpCodeReset               byte = 0x01
	FTMSOpCodeSetTargetResistance byte = 0x04
	FTMSOpCodeSetTargetPower      byte = 0x05
	FTMSOpCodeStartOrResume       byte = 0x07
	FTMSOpCodeStopOrPause         byte = 0x08
	FTMSOpCodeResponseCode        byte = 0x80
)

// FTMS Control Point Result Codes
const (
	FTMSResultSuccess             byte = 0x01
	FTMSResultOpCodeNotSupported  byte = 0x02
	FTMSResultInvalidParameter    byte = 0x03
	FTMSResultOperationFailed     byte = 0x04
	FTMSResultControlNotPermitted byte = 0x05
)

// Power limits accepted by Set Target Power
const (
	MinTargetPowerWatts = 25
	MaxTargetPowerWatts = 2000
)

// Demo source defaults
const (
	DefaultDemoBaseWatts      = 200
	DefaultDemoSampleInterval = 1 * time.Second
	demoJitterWatts           = 15
	demoDriftStepWatts        = 2.0
	demoDriftLimitWatts       = 30.0
)

// Status describes the trainer connection for display
type Status struct {
	Source           string
	Address          string
	Connected        bool
	Stream           DataStreamID
	ControlAcquired  bool
	TargetPowerWatts int16 // 0 until a target has been sent
	Err              error
}

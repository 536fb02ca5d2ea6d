package trainer

import "fmt"

var ftmsOpCodeNames = map[byte]string{
	FTMSOpCodeRequestControl:      "Request Control",
	FTMSOpCodeReset:               "Reset",
	FTMSOpCodeSetTargetResistance: "Set Target Resistance",
	FTMSOpCodeSetTargetPower:      "Set Target Power",
	FTMSOpCodeStartOrResume:       "Start/Resume",
	FTMSOpCodeStopOrPause:         "Stop/Pause",
}

var ftmsResultNames = map[byte]string{
	FTMSResultSuccess:             "Success",
	FTMSResultOpCodeNotSupported:  "Op Code Not Supported",
	FTMSResultInvalidParameter:    "Invalid Parameter",
	FTMSResultOperationFailed:     "Operation Failed",
	FTMSResultControlNotPermitted: "Control Not Permitted",
}

func opCodeName(op byte) string {
	if name, ok := ftmsOpCodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("OpCode 0x%02X", op)
}

// ClampTargetPower limits watts to what Set Target Power accepts
func ClampTargetPower(watts int16) int16 {
	return max(MinTargetPowerWatts, min(MaxTargetPowerWatts, watts))
}

// EncodeSetTargetPower builds [0x05, lo, hi] with watts clamped
func EncodeSetTargetPower(watts int16) []byte {
	return le.AppendUint16([]byte{FTMSOpCodeSetTargetPower}, uint16(ClampTargetPower(watts)))
}

// DescribeControlPoint renders a control point write for logs and the simulator
func DescribeControlPoint(data []byte) string {
	if len(data) == 0 {
		return "empty"
	}
	if data[0] == FTMSOpCodeSetTargetPower {
		if len(data) < 3 {
			return "Set Target Power (malformed)"
		}
		return fmt.Sprintf("Set Target Power: %dW", int16(le.Uint16(data[1:3])))
	}
	return opCodeName(data[0])
}

// ControlPointResponse is the indication sent back for every control point write
type ControlPointResponse struct {
	RequestOpCode byte
	Result        byte
}

// ParseControlPointResponse decodes [0x80, RequestOpCode, ResultCode, ...]
func ParseControlPointResponse(buf []byte) (ControlPointResponse, error) {
	if len(buf) < 3 {
		return ControlPointResponse{}, fmt.Errorf("%w: control point response is %d bytes", ErrShortPayload, len(buf))
	}
	if buf[0] != FTMSOpCodeResponseCode {
		return ControlPointResponse{}, fmt.Errorf("trainer: unexpected control point op code 0x%02X", buf[0])
	}
	return ControlPointResponse{RequestOpCode: buf[1], Result: buf[2]}, nil
}

func (r ControlPointResponse) Success() bool {
	return r.Result == FTMSResultSuccess
}

func (r ControlPointResponse) String() string {
	result, ok := ftmsResultNames[r.Result]
	if !ok {
		result = fmt.Sprintf("Result 0x%02X", r.Result)
	}
	return fmt.Sprintf("%s -> %s", opCodeName(r.RequestOpCode), result)
}

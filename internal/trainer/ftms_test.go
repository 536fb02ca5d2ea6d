package trainer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeSetTargetPower(t *testing.T) {
	assert.Equal(t, []byte{0x05, 0xfa, 0x00}, EncodeSetTargetPower(250))
	assert.Equal(t, []byte{0x05, 0x19, 0x00}, EncodeSetTargetPower(10))
	assert.Equal(t, []byte{0x05, 0xd0, 0x07}, EncodeSetTargetPower(3000))
}

func TestClampTargetPower(t *testing.T) {
	assert.Equal(t, int16(MinTargetPowerWatts), ClampTargetPower(-5))
	assert.Equal(t, int16(180), ClampTargetPower(180))
	assert.Equal(t, int16(MaxTargetPowerWatts), ClampTargetPower(2001))
}

func TestDescribeControlPoint(t *testing.T) {
	assert.Equal(t, "empty", DescribeControlPoint(nil))
	assert.Equal(t, "Request Control", DescribeControlPoint([]byte{FTMSOpCodeRequestControl}))
	assert.Equal(t, "Start/Resume", DescribeControlPoint([]byte{FTMSOpCodeStartOrResume}))
	assert.Equal(t, "Set Target Power: 250W", DescribeControlPoint(EncodeSetTargetPower(250)))
	assert.Equal(t, "Set Target Power (malformed)", DescribeControlPoint([]byte{FTMSOpCodeSetTargetPower, 0x01}))
	assert.Equal(t, "OpCode 0x42", DescribeControlPoint([]byte{0x42}))
}

func TestParseControlPointResponse(t *testing.T) {
	r, err := ParseControlPointResponse([]byte{0x80, FTMSOpCodeSetTargetPower, FTMSResultSuccess})
	require.NoError(t, err)
	assert.True(t, r.Success())
	assert.Equal(t, "Set Target Power -> Success", r.String())

	r, err = ParseControlPointResponse([]byte{0x80, FTMSOpCodeRequestControl, FTMSResultControlNotPermitted})
	require.NoError(t, err)
	assert.False(t, r.Success())
	assert.Equal(t, "Request Control -> Control Not Permitted", r.String())

	_, err = ParseControlPointResponse([]byte{0x80, 0x00})
	assert.ErrorIs(t, err, ErrShortPayload)

	_, err = ParseControlPointResponse([]byte{0x05, 0x00, 0x01})
	assert.Error(t, err)
}

package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageAndDecode(t *testing.T) {
	msg, err := NewMessage(TypeJoinRoom, RoomPayload{RoomID: "r1", UserID: "u1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"roomId":"r1","userId":"u1"}`, string(msg.Payload))

	var p RoomPayload
	require.NoError(t, msg.Decode(&p))
	assert.Equal(t, "r1", p.RoomID)

	bare, err := NewMessage(TypePing, nil)
	require.NoError(t, err)
	assert.Error(t, bare.Decode(&p))

	data, err := json.Marshal(bare)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping"}`, string(data))
}

func TestNewMessageRejectsUnencodablePayload(t *testing.T) {
	_, err := NewMessage("x", map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestStampKeepsExistingTimestamp(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	m := Message{Type: "a"}
	m.Stamp(now)
	assert.Equal(t, int64(1_700_000_000_000), m.Timestamp)

	preset := Message{Type: "a", Timestamp: 5}
	preset.Stamp(now)
	assert.Equal(t, int64(5), preset.Timestamp)
}

func TestIsAuthClose(t *testing.T) {
	assert.True(t, IsAuthClose(CloseAuthRejected))
	assert.True(t, IsAuthClose(CloseAuthGone))
	assert.False(t, IsAuthClose(CloseNormal))
	assert.False(t, IsAuthClose(CloseAbnormal))

	err := &CloseError{Code: 4100, Reason: "expired"}
	assert.Contains(t, err.Error(), "4100")
}

func TestTimerDataMergesExtra(t *testing.T) {
	d := TimerData{
		CurrentTime: 1200,
		TotalTime:   1500,
		Status:      "running",
		Mode:        "pomodoro",
		Extra:       map[string]any{"task": "read", "mode": "ignored"},
	}
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"currentTime":1200,"totalTime":1500,"status":"running","mode":"pomodoro","task":"read"}`, string(data))

	var back TimerData
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 1200, back.CurrentTime)
	assert.Equal(t, "pomodoro", back.Mode)
	assert.Equal(t, map[string]any{"task": "read"}, back.Extra)
}

func TestTimerDataWithoutExtras(t *testing.T) {
	var d TimerData
	require.NoError(t, json.Unmarshal([]byte(`{"currentTime":3,"totalTime":4,"status":"paused","mode":"free","userName":"ana"}`), &d))
	assert.Nil(t, d.Extra)
	assert.Equal(t, "ana", d.UserName)
}

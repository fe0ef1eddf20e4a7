package types

import (
	"encoding/json"
	"time"
)

// Reserved and control message types.
const (
	TypePing             = "ping"
	TypePong             = "pong"
	TypeJoinRoom         = "join_room"
	TypeLeaveRoom        = "leave_room"
	TypeTimerUpdate      = "timer_update"
	TypeUserJoined       = "user_joined"
	TypeUserLeft         = "user_left"
	TypeTimerSyncRequest = "timer_sync_request"
	AnyType              = "*"
)

// RoomPayload is the payload of join_room and leave_room.
type RoomPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId,omitempty"`
}

// PeerPayload identifies a peer in user_joined and user_left.
type PeerPayload struct {
	RoomID   string `json:"roomId,omitempty"`
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

// TimerUpdatePayload is the payload of timer_update.
type TimerUpdatePayload struct {
	RoomID    string    `json:"roomId,omitempty"`
	UserID    string    `json:"userId"`
	TimerData TimerData `json:"timerData"`
}

// TimerData is a serialized timer state shared with peers. Extra carries
// caller-supplied fields merged into the same JSON object.
type TimerData struct {
	CurrentTime int            `json:"currentTime"`
	TotalTime   int            `json:"totalTime"`
	Status      string         `json:"status"`
	Mode        string         `json:"mode"`
	UserName    string         `json:"userName,omitempty"`
	Extra       map[string]any `json:"-"`
}

var timerDataFields = map[string]struct{}{
	"currentTime": {}, "totalTime": {}, "status": {}, "mode": {}, "userName": {},
}

// MarshalJSON flattens Extra into the object. Known fields win over extras.
func (d TimerData) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+5)
	for k, v := range d.Extra {
		out[k] = v
	}
	out["currentTime"] = d.CurrentTime
	out["totalTime"] = d.TotalTime
	out["status"] = d.Status
	out["mode"] = d.Mode
	if d.UserName != "" {
		out["userName"] = d.UserName
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the known fields and keeps the rest in Extra.
func (d *TimerData) UnmarshalJSON(data []byte) error {
	type plain TimerData
	var known plain
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	*d = TimerData(known)
	for k, v := range all {
		if _, ok := timerDataFields[k]; ok {
			continue
		}
		if d.Extra == nil {
			d.Extra = make(map[string]any)
		}
		d.Extra[k] = v
	}
	return nil
}

// PeerSnapshot is the last known timer state of a peer in the current room.
type PeerSnapshot struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	TimerData   TimerData `json:"timerData"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

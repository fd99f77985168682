package broadcast

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayPublishesLocallyAndQueuesMirror(t *testing.T) {
	r := NewRegistry(nil)
	s := newActive(t, r, 2, 8)
	require.NoError(t, s.Join(BroadcastTopic(2)))

	relay := NewRedisRelay(r, nil, "owleye:topic:", 1)
	assert.Equal(t, 1, relay.Publish(BroadcastTopic(2), NewSafetyAlert(map[string]string{"title": "Gate 3 closed"})))
	assert.Equal(t, 1, relay.Publish(BroadcastTopic(2), "second"), "a full mirror buffer must not block local fan-out")

	env := <-relay.out
	assert.Equal(t, relay.origin, env.Origin)
	assert.Equal(t, "broadcast_2", env.Topic)
	assert.JSONEq(t, `{"type":"safety_alert","alert":{"title":"Gate 3 closed"}}`, string(env.Payload))
	assert.Len(t, drain(s), 2)
}

func TestRelayApplySkipsOwnOrigin(t *testing.T) {
	r := NewRegistry(nil)
	s := newActive(t, r, 2, 8)
	require.NoError(t, s.Join(AttendanceTopic(2)))
	relay := NewRedisRelay(r, nil, "owleye:topic:", 4)

	own, _ := json.Marshal(envelope{Origin: relay.origin, Topic: "attendance_2", Payload: json.RawMessage(`{"current_attendance":1,"capacity":5}`)})
	peer, _ := json.Marshal(envelope{Origin: "peer", Topic: "attendance_2", Payload: json.RawMessage(`{"current_attendance":2,"capacity":5}`)})

	assert.Equal(t, 0, relay.apply("owleye:topic:attendance_2", own))
	assert.Equal(t, 1, relay.apply("owleye:topic:attendance_2", peer))
	assert.Equal(t, 0, relay.apply("owleye:topic:attendance_2", []byte("garbage")))

	assert.Equal(t, []string{`{"current_attendance":2,"capacity":5}`}, drain(s))
}

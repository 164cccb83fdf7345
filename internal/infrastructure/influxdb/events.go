package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gatekeeper/internal/auth"
)

// authEventMeasurement holds one point per authentication outcome.
const authEventMeasurement = "auth_events"

// RecordAuthEvent implements auth.EventRecorder. The write is buffered and
// never blocks the login path.
func (c *Client) RecordAuthEvent(_ context.Context, e auth.Event) {
	c.WriteAuthEvent(e)
}

// WriteAuthEvent queues a point for e. Account ids are fields, not tags, to
// keep series cardinality bounded by kind, platform and user type.
func (c *Client) WriteAuthEvent(e auth.Event) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(authEventPoint(e))
}

func authEventPoint(e auth.Event) *write.Point {
	tags := map[string]string{"kind": string(e.Kind)}
	if e.Platform != "" {
		tags["platform"] = string(e.Platform)
	}
	if e.UserType != "" {
		tags["user_type"] = string(e.UserType)
	}

	fields := map[string]interface{}{"count": 1}
	if e.AccountID != "" {
		fields["account_id"] = e.AccountID
	}
	if e.Reason != "" {
		fields["reason"] = e.Reason
	}

	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(authEventMeasurement, tags, fields, ts)
}

// WritePoint queues a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

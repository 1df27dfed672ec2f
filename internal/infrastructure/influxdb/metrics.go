package influxdb

import (
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementAuth   = "auth_events"
	MeasurementChange = "document_changes"
)

// WriteAuthEvent records one authentication decision. Action is the audit
// action (login, login_failed, upgrade_rejected, ...) and source is where
// the decision was made (api, websocket, gate).
func (c *Client) WriteAuthEvent(action, source string) {
	c.writePoint(MeasurementAuth,
		map[string]string{"action": action, "source": source},
		map[string]any{"count": 1},
	)
}

// WriteCollectionChange records a committed write against a collection.
// Count is the number of documents the write touched.
func (c *Client) WriteCollectionChange(collection, action string, count int) {
	if count <= 0 {
		return
	}
	c.writePoint(MeasurementChange,
		map[string]string{"collection": collection, "action": action},
		map[string]any{"count": count},
	)
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, c.now()))
}

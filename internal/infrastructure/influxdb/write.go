package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// SampleMeasurement is the measurement name for process-variable samples.
const SampleMeasurement = "pv_samples"

// WriteSample records one numeric process-variable value.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteSample("room_temp", "esw.test.temp", "value", 21.5, ev.Time)
func (c *Client) WriteSample(variable, eventKey, param string, value float64, ts time.Time) {
	c.WritePoint(SampleMeasurement,
		map[string]string{
			"variable":  variable,
			"event_key": eventKey,
			"param":     param,
		},
		map[string]interface{}{
			"value": value,
		},
		ts,
	)
}

// WritePoint writes a custom point with a specific timestamp.
// A zero timestamp means now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}

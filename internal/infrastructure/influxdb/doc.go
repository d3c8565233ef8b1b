// Package influxdb provides InfluxDB connectivity for the sequencer.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, non-blocking sample writes and health monitoring. The history
// recorder writes one point per numeric process-variable refresh:
//
//	measurement: pv_samples
//	tags:        variable, event_key, param
//	fields:      value (float)
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSample("room_temp", "esw.test.temp", "value", 21.5, time.Now())
//
// Writes are batched according to batch_size and flush_interval. Write
// failures surface asynchronously through SetOnError.
package influxdb

// Package influxdb mirrors device telemetry into a local InfluxDB v2 bucket.
//
// The Client is a transport.Sink: wrapped around the cloud link with
// transport.Tee, every data and diagnostics message that reached the cloud
// is also written here as points.
//
// # Point layout
//
//	measurement  cloud4rpi_variables | cloud4rpi_diagnostics
//	tags         device, name
//	fields       value            (bool, number, string)
//	             lat, lng         (location)
//
// Nil values are skipped. Anything else is stored as its JSON text.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, "greenhouse-pi")
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	conn = transport.Tee(conn, client)
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval). Batch
// errors are delivered to the SetOnError callback. Connection and health
// check errors are returned directly.
package influxdb

// Package influxdb records authentication outcomes as InfluxDB points.
//
// Each login success, failure, lockout and password change becomes one point
// in the auth_events measurement, tagged by kind, platform and user type. The
// client implements auth.EventRecorder so the service can fan events out to
// it alongside the SQL audit trail.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// Writes are batched according to batch_size and flush_interval; errors are
// delivered asynchronously to the SetOnError callback.
package influxdb

// Package influxdb records docgate usage metrics in InfluxDB.
//
// The sink is optional. When enabled it receives one point per
// authentication decision and one point per committed document change,
// which is enough to chart login failures, rejected upgrades and write
// volume per collection without querying the audit table.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteAuthEvent("login_failed", "api")
//	client.WriteCollectionChange("notes", "insert", 1)
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Write failures are reported through SetOnError.
package influxdb

// Package mqtt publishes docgate change events to an MQTT broker.
//
// The client is publish-only: it connects with auto-reconnect, keeps a
// retained online/offline status (with a Last Will for crashes), and
// publishes one message per document change:
//
//	{prefix}/system/status
//	{prefix}/collections/{collection}/{action}
//
// AsyncPublisher sits between request handlers and the client so a slow
// or absent broker never delays an HTTP response.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	pub := mqtt.NewAsyncPublisher(client, 0, logger)
//	go pub.Run(ctx)
//	pub.Enqueue(client.Topics().CollectionChange("notes", "insert"), change)
package mqtt

package mqtt

import "strings"

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "docgate"

// Topics builds docgate's MQTT topic names under a common prefix.
//
//	topics := mqtt.NewTopics("docgate")
//	topics.CollectionChange("notes", "insert")
//	// Returns: "docgate/collections/notes/insert"
type Topics struct {
	prefix string
}

// NewTopics returns a builder for prefix, trimmed of trailing slashes.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: docgate/system/status
func (t Topics) SystemStatus() string {
	return t.prefix + "/system/status"
}

// CollectionChange returns the topic for a document change event.
//
// Example: docgate/collections/notes/update
func (t Topics) CollectionChange(collection, action string) string {
	return t.prefix + "/collections/" + collection + "/" + action
}

// AllCollectionChanges returns a wildcard matching every change event.
//
// Example: docgate/collections/+/+
func (t Topics) AllCollectionChanges() string {
	return t.prefix + "/collections/+/+"
}

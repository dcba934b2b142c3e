package mqtt

// Publisher sends payloads to an MQTT broker.
type Publisher interface {
	// Publish sends payload on topic. kind selects the configured QoS
	// ("telemetry", "audit", "alert").
	Publish(kind, topic string, retained bool, payload []byte) error
}

// Subscriber receives payloads from an MQTT broker.
type Subscriber interface {
	Subscribe(kind, topic string, handler func(topic string, payload []byte)) error
}

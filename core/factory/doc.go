// Package factory builds pluggable modules (audit sinks, metrics sinks,
// recommenders) from configuration. A module is named by its type string and
// carries a raw settings map that the registered factory decodes with Decode.
//
//	var sinks = factory.NewRegistry[audit.Sink]()
//	_ = sinks.Register("jsonl", func(conf map[string]any) (audit.Sink, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return audit.NewJSONLSink(c.Path)
//	})
//	s, err := sinks.Create(factory.ModuleConfig{Type: "jsonl", Conf: map[string]any{"path": "audit.jsonl"}})
package factory

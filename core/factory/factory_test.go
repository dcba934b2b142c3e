package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fileSink struct {
	Path    string
	MaxSize int
	Brokers []string
}

func newFileSink(conf map[string]any) (*fileSink, error) {
	var c struct {
		Path    string   `json:"path"`
		MaxSize int      `json:"max_size_mb"`
		Brokers []string `json:"brokers"`
	}
	if err := Decode(conf, &c); err != nil {
		return nil, err
	}
	return &fileSink{Path: c.Path, MaxSize: c.MaxSize, Brokers: c.Brokers}, nil
}

func TestRegistryCreate(t *testing.T) {
	reg := NewRegistry[*fileSink]()
	require.NoError(t, reg.Register("jsonl", newFileSink))

	s, err := reg.Create(ModuleConfig{Type: "jsonl", Conf: map[string]any{"path": "audit.jsonl", "max_size_mb": 10}})
	require.NoError(t, err)
	assert.Equal(t, "audit.jsonl", s.Path)
	assert.Equal(t, 10, s.MaxSize)
}

func TestDecodeWeakInput(t *testing.T) {
	reg := NewRegistry[*fileSink]()
	require.NoError(t, reg.Register("kafka", newFileSink))

	// shape produced by the env config provider
	s, err := reg.Create(ModuleConfig{Type: "kafka", Conf: map[string]any{
		"max_size_mb": "25",
		"brokers":     "a:9092,b:9092",
	}})
	require.NoError(t, err)
	assert.Equal(t, 25, s.MaxSize)
	assert.Equal(t, []string{"a:9092", "b:9092"}, s.Brokers)

	_, err = reg.Create(ModuleConfig{Type: "kafka", Conf: map[string]any{"max_size_mb": "lots"}})
	assert.ErrorContains(t, err, "decode module config")
}

func TestRegistryErrors(t *testing.T) {
	reg := NewRegistry[int]()
	one := func(map[string]any) (int, error) { return 1, nil }
	require.NoError(t, reg.Register("sqlite", one))
	require.NoError(t, reg.Register("jsonl", one))

	assert.Error(t, reg.Register("sqlite", one), "duplicate")
	assert.Error(t, reg.Register("x", nil), "nil factory")
	assert.Error(t, reg.Register("", one), "empty name")
	assert.Equal(t, []string{"jsonl", "sqlite"}, reg.Types())

	_, err := reg.Create(ModuleConfig{Type: "kafka"})
	assert.ErrorContains(t, err, `unknown module type "kafka" (known: jsonl, sqlite)`)
}

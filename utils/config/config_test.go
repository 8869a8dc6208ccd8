package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/atsc-oss/utils/config"
	"gopkg.in/yaml.v2"
)

func validConfig() config.Config {
	return config.Config{
		Control: config.Control{
			Step:           config.ControlStep{Start: 0, Total: 100, Interval: 1},
			MinGreen:       5,
			MaxGreen:       30,
			MaxPreemptTime: 60,
			MaxHoldCycles:  2,
		},
	}
}

func TestValidateOk(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateTimingBounds(t *testing.T) {
	c := validConfig()
	c.Control.MinGreen = 0
	assert.Error(t, c.Validate())

	c = validConfig()
	c.Control.MaxGreen = c.Control.MinGreen
	assert.Error(t, c.Validate())

	c = validConfig()
	c.Control.Step.Interval = 0
	assert.Error(t, c.Validate())

	c = validConfig()
	c.Control.MaxPreemptTime = -1
	assert.Error(t, c.Validate())
}

func TestValidateOutput(t *testing.T) {
	c := validConfig()
	c.Output.Type = "csv"
	assert.Error(t, c.Validate())

	c = validConfig()
	c.Output.Type = "sqlite"
	assert.Error(t, c.Validate())
	c.Output.Path = "out.db"
	assert.NoError(t, c.Validate())

	c = validConfig()
	c.Output.Type = "mongo"
	assert.Error(t, c.Validate())
	c.Output.URI = "mongodb://localhost:27017"
	c.Output.DB = "atsc"
	c.Output.Col = "run0"
	assert.NoError(t, c.Validate())
}

func TestUnmarshalStrict(t *testing.T) {
	data := `
control:
  step:
    start: 0
    total: 3600
    interval: 1.0
  min_green: 5
  max_green: 30
  max_preempt_time: 60
  max_hold_cycles: 2
collector:
  seed: 42
  dropout: 0.01
`
	var c config.Config
	require.NoError(t, yaml.UnmarshalStrict([]byte(data), &c))
	assert.Equal(t, int32(3600), c.Control.Step.Total)
	assert.Equal(t, uint64(42), c.Collector.Seed)
	assert.NoError(t, c.Validate())

	// 未知字段应当报错
	var c2 config.Config
	assert.Error(t, yaml.UnmarshalStrict([]byte("controll: {}"), &c2))
}

func TestRuntimeConfigDefaults(t *testing.T) {
	rc := config.NewRuntimeConfig(validConfig())
	assert.Equal(t, int32(100), rc.All.Output.FlushInterval)
	assert.Equal(t, 0.2, rc.All.Collector.DefaultArrival)
	assert.Equal(t, 5.0, rc.C.MinGreen)
}

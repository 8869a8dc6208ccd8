package actuator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsinghua-fib-lab/atsc-oss/actuator"
	"github.com/tsinghua-fib-lab/atsc-oss/entity"
)

type sinkRecorder struct {
	commands []entity.PhaseCommand
}

func (s *sinkRecorder) ApplyCommand(cmd entity.PhaseCommand) {
	s.commands = append(s.commands, cmd)
}

func TestCommandPhase(t *testing.T) {
	sink := &sinkRecorder{}
	a := actuator.New(sink)

	require.NoError(t, a.CommandPhase(entity.PhaseCommand{
		JunctionID: 1, PhaseID: "NS", Kind: entity.CommandCommit, Step: 0,
	}))
	assert.Equal(t, "NS", a.ActivePhase(1))

	// 幂等重发：不报错，照常转发
	require.NoError(t, a.CommandPhase(entity.PhaseCommand{
		JunctionID: 1, PhaseID: "NS", Kind: entity.CommandCommit, Step: 1,
	}))
	assert.Equal(t, "NS", a.ActivePhase(1))
	assert.Len(t, sink.commands, 2)

	// 清空指令不改变已落实相位
	require.NoError(t, a.CommandPhase(entity.PhaseCommand{
		JunctionID: 1, PhaseID: "NS", Kind: entity.CommandClearance, Step: 2,
	}))
	assert.Equal(t, "NS", a.ActivePhase(1))

	assert.Error(t, a.CommandPhase(entity.PhaseCommand{JunctionID: 1, Kind: entity.CommandCommit}))
	assert.Empty(t, a.ActivePhase(99))
}

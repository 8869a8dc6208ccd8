package detector_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsinghua-fib-lab/atsc-oss/detector"
	"github.com/tsinghua-fib-lab/atsc-oss/entity"
	"github.com/tsinghua-fib-lab/atsc-oss/utils/config"
)

func TestScriptedDetector(t *testing.T) {
	d := detector.New([]config.EmergencyScript{
		{Junction: 1, Approach: "east", DetectStep: 3, ClearStep: 8},
		{Junction: 2, Approach: "north", DetectStep: 3},
	})

	assert.Empty(t, d.Poll(0, 0))

	sigs := d.Poll(3, 15)
	require.Len(t, sigs, 2)
	assert.Equal(t, entity.EmergencyDetected, sigs[0].Kind)
	assert.Equal(t, entity.ApproachID("east"), sigs[0].Approach)
	assert.Equal(t, int32(2), sigs[1].JunctionID)

	sigs = d.Poll(8, 40)
	require.Len(t, sigs, 1)
	assert.Equal(t, entity.EmergencyCleared, sigs[0].Kind)

	// 无clear_step的脚本不生成清除信号
	assert.Empty(t, d.Poll(9, 45))
}

package output_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/tsinghua-fib-lab/atsc-oss/entity"
	"github.com/tsinghua-fib-lab/atsc-oss/output"
	"github.com/tsinghua-fib-lab/atsc-oss/utils/config"
)

func cycleRec(step int32, wait float64) entity.CycleRecord {
	return entity.CycleRecord{
		Step:       step,
		Time:       float64(step) * 5,
		JunctionID: 1,
		PhaseID:    "NS",
		Command:    "hold",
		Mode:       "NORMAL",
		Overlay:    "IDLE",
		TotalWait:  wait,
	}
}

func TestNoneRecorder(t *testing.T) {
	r, err := output.New(config.Output{Type: "none"})
	require.NoError(t, err)
	r.RecordCycle(cycleRec(0, 1))
	require.NoError(t, r.Flush())
	require.NoError(t, r.Close())
}

func TestUnknownOutputType(t *testing.T) {
	_, err := output.New(config.Output{Type: "carrier-pigeon"})
	assert.ErrorContains(t, err, "unknown output type")
}

func TestSQLiteRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.db")
	r, err := output.New(config.Output{Type: "sqlite", Path: path, FlushInterval: 2})
	require.NoError(t, err)

	// 达到落盘间隔时自动写入
	r.RecordCycle(cycleRec(0, 3))
	r.RecordCycle(cycleRec(1, 5))
	r.RecordEmergency(entity.EmergencyRecord{
		EventID: "ev-1", JunctionID: 1, Approach: "east",
		DetectedTime: 5, ResolvedTime: 25,
	})
	r.RecordCycle(cycleRec(2, 4))
	require.NoError(t, r.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var cycles int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM cycles").Scan(&cycles))
	assert.Equal(t, 3, cycles)

	var approach string
	var timedOut bool
	require.NoError(t, db.QueryRow(
		"SELECT approach, timed_out FROM emergencies WHERE event_id = ?", "ev-1").Scan(&approach, &timedOut))
	assert.Equal(t, "east", approach)
	assert.False(t, timedOut)

	var maxWait float64
	require.NoError(t, db.QueryRow("SELECT MAX(total_wait) FROM cycles").Scan(&maxWait))
	assert.Equal(t, 5.0, maxWait)
}

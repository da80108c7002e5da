package coordinator

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tilepaint/internal/cluster"
)

func TestExecStarter(t *testing.T) {
	spec := WorkerSpec{ID: 1, Port: 3001, Partition: cluster.PartitionB, Dataset: "Tippecanoe", DatasetPath: "t.mbtiles"}

	t.Run("clean exit", func(t *testing.T) {
		bin, err := exec.LookPath("true")
		if err != nil {
			t.Skip("true not available")
		}
		p, err := ExecStarter(bin)(context.Background(), spec)
		require.NoError(t, err)
		assert.Positive(t, p.Pid())
		assert.NoError(t, p.Wait())
	})

	t.Run("exit code", func(t *testing.T) {
		bin, err := exec.LookPath("false")
		if err != nil {
			t.Skip("false not available")
		}
		p, err := ExecStarter(bin)(context.Background(), spec)
		require.NoError(t, err)
		assert.Equal(t, 1, exitCode(p.Wait()))
	})

	t.Run("missing binary", func(t *testing.T) {
		_, err := ExecStarter("/nonexistent/tilepaint-worker")(context.Background(), spec)
		assert.Error(t, err)
	})
}

package partition

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashPartitionerDeterministic(t *testing.T) {
	t.Parallel()

	p := HashPartitioner{}
	for n := 1; n <= 8; n++ {
		for i := 0; i < 100; i++ {
			jobID := fmt.Sprintf("job_1479206441898_%06d", i)
			first := p.Partition(jobID, n)
			require.GreaterOrEqual(t, first, 0)
			require.Less(t, first, n)
			// Same inputs, same partition, every time.
			for rep := 0; rep < 3; rep++ {
				require.Equal(t, first, p.Partition(jobID, n))
			}
		}
	}
}

func TestHashPartitionerSinglePartition(t *testing.T) {
	t.Parallel()

	p := HashPartitioner{}
	require.Equal(t, 0, p.Partition("job_1479206441898_508949", 1))
	require.Equal(t, 0, p.Partition("", 1))
}

func TestFiltersCoverEveryJobExactlyOnce(t *testing.T) {
	t.Parallel()

	const numPartitions = 4
	filters := make([]*Filter, numPartitions)
	for i := range filters {
		f, err := NewFilter(HashPartitioner{}, i, numPartitions)
		require.NoError(t, err)
		filters[i] = f
	}

	for i := 0; i < 500; i++ {
		jobID := fmt.Sprintf("job_1600000000000_%06d", i)
		owners := 0
		for _, f := range filters {
			if f.Owns(jobID) {
				owners++
			}
		}
		require.Equal(t, 1, owners, "job %s must have exactly one owner", jobID)
	}
}

func TestNewFilterRejectsInvalidAssignment(t *testing.T) {
	t.Parallel()

	_, err := NewFilter(HashPartitioner{}, 0, 0)
	require.Error(t, err)

	_, err = NewFilter(HashPartitioner{}, -1, 4)
	require.Error(t, err)

	_, err = NewFilter(HashPartitioner{}, 4, 4)
	require.Error(t, err)

	f, err := NewFilter(nil, 3, 4)
	require.NoError(t, err)
	require.Equal(t, 3, f.PartitionID())
	require.Equal(t, 4, f.NumPartitions())
}

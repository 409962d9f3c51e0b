package harness

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentityValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		id      Identity
		wantErr bool
	}{
		{"valid first", Identity{Site: "sandbox", PartitionID: 0, NumPartitions: 4}, false},
		{"valid last", Identity{Site: "sandbox", PartitionID: 3, NumPartitions: 4}, false},
		{"single partition", Identity{Site: "sandbox", PartitionID: 0, NumPartitions: 1}, false},
		{"missing site", Identity{PartitionID: 0, NumPartitions: 4}, true},
		{"negative partition", Identity{Site: "sandbox", PartitionID: -1, NumPartitions: 4}, true},
		{"partition out of range", Identity{Site: "sandbox", PartitionID: 4, NumPartitions: 4}, true},
		{"zero partitions", Identity{Site: "sandbox", PartitionID: 0, NumPartitions: 0}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.id.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestIdentityString(t *testing.T) {
	t.Parallel()

	id := Identity{Site: "sandbox", PartitionID: 2, NumPartitions: 4}
	require.Equal(t, "sandbox[2/4]", id.String())
}

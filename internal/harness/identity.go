// Package harness assembles the crawl pipeline into a worker
// lifecycle: roster join, spout open, round loop.
package harness

import "fmt"

// Identity fixes this worker's slot in the partition space. Every
// worker of a site must agree on NumPartitions; PartitionID selects
// which slice of the job id space this worker owns.
type Identity struct {
	Site          string
	PartitionID   int
	NumPartitions int
}

// Validate rejects identities that would corrupt partition assignment.
func (id Identity) Validate() error {
	if id.Site == "" {
		return fmt.Errorf("site is required")
	}
	if id.NumPartitions <= 0 {
		return fmt.Errorf("number of partitions must be positive, got %d", id.NumPartitions)
	}
	if id.PartitionID < 0 || id.PartitionID >= id.NumPartitions {
		return fmt.Errorf("partition %d out of range [0,%d)", id.PartitionID, id.NumPartitions)
	}
	return nil
}

func (id Identity) String() string {
	return fmt.Sprintf("%s[%d/%d]", id.Site, id.PartitionID, id.NumPartitions)
}

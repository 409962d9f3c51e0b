// Package partition assigns job IDs to workers deterministically.
package partition

import (
	"fmt"
	"hash/crc32"
)

// Partitioner maps a job ID onto one of numPartitions partitions. All
// workers of a deployment must use the same implementation so that every
// job belongs to exactly one worker.
type Partitioner interface {
	Partition(jobID string, numPartitions int) int
}

// HashPartitioner is the default Partitioner. It hashes the job ID with
// CRC-32 (IEEE) and takes the remainder, so assignment depends only on
// the ID and the partition count.
type HashPartitioner struct{}

// Partition returns the partition for jobID in [0, numPartitions).
func (HashPartitioner) Partition(jobID string, numPartitions int) int {
	if numPartitions <= 1 {
		return 0
	}
	return int(crc32.ChecksumIEEE([]byte(jobID)) % uint32(numPartitions))
}

// Filter answers whether this worker owns a given job ID.
type Filter struct {
	partitioner   Partitioner
	partitionID   int
	numPartitions int
}

// NewFilter validates the worker's assignment and returns a Filter.
// An assignment outside [0, numPartitions) is a wiring error and must
// abort startup.
func NewFilter(p Partitioner, partitionID, numPartitions int) (*Filter, error) {
	if numPartitions <= 0 {
		return nil, fmt.Errorf("num partitions must be positive, got %d", numPartitions)
	}
	if partitionID < 0 || partitionID >= numPartitions {
		return nil, fmt.Errorf("partition id %d out of range [0, %d)", partitionID, numPartitions)
	}
	if p == nil {
		p = HashPartitioner{}
	}
	return &Filter{partitioner: p, partitionID: partitionID, numPartitions: numPartitions}, nil
}

// Owns reports whether jobID belongs to this worker's partition.
func (f *Filter) Owns(jobID string) bool {
	return f.partitioner.Partition(jobID, f.numPartitions) == f.partitionID
}

// PartitionID returns the worker's partition index.
func (f *Filter) PartitionID() int { return f.partitionID }

// NumPartitions returns the deployment's partition count.
func (f *Filter) NumPartitions() int { return f.numPartitions }

package history

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

// BucketLayout is the UTC day layout used for processed-marker buckets.
const BucketLayout = "20060102"

var jobIDPattern = regexp.MustCompile(`job_[0-9]+_[0-9]+`)

// JobIDFromPath extracts the job ID from a history file path. History
// file names start with the job ID followed by metadata segments, e.g.
// job_1479206441898_508949-1484248756198-user-name.jhist. Returns the
// empty string when the path carries no job ID.
func JobIDFromPath(p string) string {
	return jobIDPattern.FindString(path.Base(p))
}

// AppIDForJob maps a job ID to its resource-manager application twin
// (job_X_Y to application_X_Y).
func AppIDForJob(jobID string) string {
	return strings.Replace(jobID, "job_", "application_", 1)
}

// JobIDForApp maps an application ID back to its job twin.
func JobIDForApp(appID string) string {
	return strings.Replace(appID, "application_", "job_", 1)
}

// Bucket returns the UTC day bucket for an epoch-millisecond timestamp.
func Bucket(modTime int64) string {
	return time.UnixMilli(modTime).UTC().Format(BucketLayout)
}

// BucketOf returns the UTC day bucket for a time value.
func BucketOf(t time.Time) string {
	return t.UTC().Format(BucketLayout)
}

// ParseBucket parses a day bucket back into its UTC midnight time.
func ParseBucket(bucket string) (time.Time, error) {
	t, err := time.ParseInLocation(BucketLayout, bucket, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse bucket %q: %w", bucket, err)
	}
	return t, nil
}

package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJobIDFromPath(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		path string
		want string
	}{
		{
			name: "history file with metadata segments",
			path: "/history/done/2016/12/09/000508/job_1479206441898_508949-1484248756198-hadoop-wordcount-1484252109033.jhist",
			want: "job_1479206441898_508949",
		},
		{
			name: "bare job id",
			path: "job_1479206441898_508949",
			want: "job_1479206441898_508949",
		},
		{
			name: "conf file",
			path: "/history/done/job_1479206441898_508949_conf.xml",
			want: "job_1479206441898_508949",
		},
		{
			name: "no job id",
			path: "/history/done/README",
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, JobIDFromPath(tc.path))
		})
	}
}

func TestJobAppTwinning(t *testing.T) {
	t.Parallel()

	require.Equal(t, "application_1479206441898_508949", AppIDForJob("job_1479206441898_508949"))
	require.Equal(t, "job_1479206441898_508949", JobIDForApp("application_1479206441898_508949"))

	// Round trip is stable.
	jobID := "job_1700000000000_1"
	require.Equal(t, jobID, JobIDForApp(AppIDForJob(jobID)))
}

func TestBuckets(t *testing.T) {
	t.Parallel()

	ts := time.Date(2016, 12, 9, 23, 59, 59, 0, time.UTC)
	require.Equal(t, "20161209", Bucket(ts.UnixMilli()))
	require.Equal(t, "20161209", BucketOf(ts))

	// A timestamp just past UTC midnight lands in the next bucket.
	require.Equal(t, "20161210", Bucket(ts.Add(time.Second).UnixMilli()))

	parsed, err := ParseBucket("20161209")
	require.NoError(t, err)
	require.Equal(t, time.Date(2016, 12, 9, 0, 0, 0, 0, time.UTC), parsed)

	_, err = ParseBucket("not-a-bucket")
	require.Error(t, err)
}

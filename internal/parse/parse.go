// Package parse turns archived job history summaries into job records.
//
// The summary format is a flat JSON document with the camelCase field
// names the history server emits. Configuration siblings are Hadoop
// configuration XML; full event-log parsing stays behind the
// history.Parser seam so deployments can plug their own.
package parse

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/clustermon/jobhistory-crawler/internal/history"
)

// Summary is the wire shape of one pre-extracted job summary.
type Summary struct {
	JobID        string `json:"jobId"`
	User         string `json:"user"`
	Queue        string `json:"queue"`
	JobName      string `json:"jobName"`
	State        string `json:"state"`
	SubmitTime   int64  `json:"submitTime"`
	LaunchTime   int64  `json:"launchTime"`
	FinishTime   int64  `json:"finishTime"`
	TotalMaps    int    `json:"totalMaps"`
	TotalReduces int    `json:"totalReduces"`
}

// JSONSummary parses summary artifacts and their configuration
// siblings. When confKeys is non-empty only those configuration
// properties are carried on the record.
type JSONSummary struct {
	confKeys map[string]struct{}
}

// NewJSONSummary returns a parser. confKeys optionally restricts which
// configuration properties are kept.
func NewJSONSummary(confKeys ...string) *JSONSummary {
	p := &JSONSummary{}
	if len(confKeys) > 0 {
		p.confKeys = make(map[string]struct{}, len(confKeys))
		for _, k := range confKeys {
			p.confKeys[k] = struct{}{}
		}
	}
	return p
}

// Parse decodes the summary and, when present, the configuration
// sibling.
func (p *JSONSummary) Parse(artifact history.Artifact, content []byte, conf []byte) (history.JobRecord, error) {
	var summary Summary
	if err := json.Unmarshal(content, &summary); err != nil {
		return history.JobRecord{}, fmt.Errorf("decode summary %s: %w", artifact.Path, err)
	}

	record := history.JobRecord{
		JobID:        summary.JobID,
		User:         summary.User,
		Queue:        summary.Queue,
		Name:         summary.JobName,
		State:        normalizeState(summary.State),
		SubmitTime:   summary.SubmitTime,
		LaunchTime:   summary.LaunchTime,
		FinishTime:   summary.FinishTime,
		TotalMaps:    summary.TotalMaps,
		TotalReduces: summary.TotalReduces,
	}
	if record.JobID != "" {
		record.AppID = history.AppIDForJob(record.JobID)
	}

	if len(conf) > 0 {
		props, err := parseConfiguration(conf)
		if err != nil {
			return history.JobRecord{}, fmt.Errorf("decode configuration %s: %w", artifact.ConfPath, err)
		}
		record.Configuration = p.filterConf(props)
	}
	return record, nil
}

func (p *JSONSummary) filterConf(props map[string]string) map[string]string {
	if p.confKeys == nil || len(props) == 0 {
		return props
	}
	out := make(map[string]string, len(p.confKeys))
	for k := range p.confKeys {
		if v, ok := props[k]; ok {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func normalizeState(raw string) history.JobState {
	switch history.JobState(strings.ToUpper(strings.TrimSpace(raw))) {
	case history.JobStateSucceeded:
		return history.JobStateSucceeded
	case history.JobStateFailed:
		return history.JobStateFailed
	case history.JobStateKilled:
		return history.JobStateKilled
	default:
		return history.JobStateUnknown
	}
}

type confFile struct {
	Properties []confProperty `xml:"property"`
}

type confProperty struct {
	Name  string `xml:"name"`
	Value string `xml:"value"`
}

func parseConfiguration(conf []byte) (map[string]string, error) {
	var file confFile
	if err := xml.Unmarshal(conf, &file); err != nil {
		return nil, err
	}
	if len(file.Properties) == 0 {
		return nil, nil
	}
	props := make(map[string]string, len(file.Properties))
	for _, p := range file.Properties {
		if p.Name == "" {
			continue
		}
		props[p.Name] = p.Value
	}
	return props, nil
}

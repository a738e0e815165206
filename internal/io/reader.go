package io

import (
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/williampepple1/scrapebot/pkg/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JobReader reads job definitions from the config directory
type JobReader struct {
	Dir string
}

// NewJobReader creates a new job reader rooted at dir
func NewJobReader(dir string) *JobReader {
	return &JobReader{
		Dir: dir,
	}
}

// Read loads the job of uid
func (r *JobReader) Read(uid string) (*models.Job, error) {
	return ReadJobFile(jobPath(r.Dir, uid))
}

// ReadJobFile parses a job definition file
func ReadJobFile(filename string) (*models.Job, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading job %s: %w", filename, err)
	}

	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parsing job %s: %w", filename, err)
	}
	if job.Steps == nil {
		job.Steps = []models.Step{}
	}
	return &job, nil
}

func jobPath(dir, uid string) string {
	return filepath.Join(dir, uid+".json")
}

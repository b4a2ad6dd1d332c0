package api

import "time"

const (
	RequestTimeout          = 10 * time.Second
	RequestRetryMinWaitTime = 1 * time.Second
	RequestRetryMaxWaitTime = 10 * time.Second
	MaxRetries              = 3

	// SnapshotUploadTimeout is generous because uploads ride on an LTE link
	SnapshotUploadTimeout = 90 * time.Second

	uploadProgressInterval = 1 * time.Second
)

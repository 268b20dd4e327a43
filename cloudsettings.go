// Copyright 2024 Nick White.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package fpsegment

// This file contains various cloud account specific stuff; change this if
// you want to use the cloud functionality on your own site.

// Spot instance details
const (
	spotProfile = "arn:aws:iam::557852942063:instance-profile/fpsegmenter"
	spotImage   = "ami-0bc6ef6900f6da5d3"
	spotType    = "m5.large"
	spotSg      = "sg-0be8a3ab89e7136b9"
)

// Queue names
const (
	queueExtract = "fpsegmentextract"
	queueReport  = "fpsegmentreport"
)

// Storage bucket names
const (
	storageWip = "fpsegmentinprogress"
)

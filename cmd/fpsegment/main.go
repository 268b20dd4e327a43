// Copyright 2019 Nick White.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"rescribe.xyz/fpsegment"
	"rescribe.xyz/fpsegment/internal/pipeline"
	"rescribe.xyz/fpsegment/segment"
)

const usage = `Usage: fpsegment [-c conn] [-v] [-ne] [-nr] [-hint n]

Watches the extract and report queues for batch names. When one is
found this general process is followed:

- The batch name is hidden from the queue, and a 'heartbeat' is
  started which keeps it hidden (this will time out after 2 minutes
  if the program is terminated)
- The card images for the batch are downloaded
- Each card is segmented, and its SegmentInfo plus cropped images
  are uploaded
- The heartbeat is stopped
- The batch name is removed from the extract queue, and added to the
  report queue for future processing

Batches received on the report queue have their per-card results
downloaded, and a PDF contact sheet plus yield graph built and
uploaded; the batch is then removed from the report queue.
`

const PauseBetweenChecks = 3 * time.Minute
const TimeBeforeShutdown = 5 * time.Minute
const HeartbeatTime = pipeline.HeartbeatSeconds

// null writer to enable non-verbose logging to be discarded
type NullWriter bool

func (w NullWriter) Write(p []byte) (n int, err error) {
	return len(p), nil
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		<-t.C
	}
}

func restartTimer(t *time.Timer) {
	t.Reset(TimeBeforeShutdown)
}

func main() {
	verbose := flag.Bool("v", false, "verbose")
	conntype := flag.String("c", "aws", "connection type ('aws' or 'local')")
	hint := flag.Int("hint", segment.DefaultWorkingSizeHint, "working-size hint passed to the segmenter (minimum working-resolution dimension, in pixels)")
	noextract := flag.Bool("ne", false, "disable extraction")
	noreport := flag.Bool("nr", false, "disable report generation")
	autoshutdown := flag.Bool("shutdown", true, "log a notice if no work has been available for 5 minutes (the machine is not shut down)")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	var verboselog *log.Logger
	if *verbose {
		verboselog = log.New(os.Stdout, "", 0)
	} else {
		var n NullWriter
		verboselog = log.New(n, "", 0)
	}

	var conn pipeline.Pipeliner
	switch *conntype {
	case "aws":
		conn = &fpsegment.AwsConn{Region: "eu-west-2", Logger: verboselog}
	case "local":
		conn = &fpsegment.LocalConn{Logger: verboselog}
	default:
		log.Fatalln("Unknown connection type")
	}

	verboselog.Println("Setting up cloud connection")
	err := conn.Init()
	if err != nil {
		log.Fatalln("Error setting up cloud connection:", err)
	}
	verboselog.Println("Finished setting up cloud connection")

	ctx := context.Background()

	var checkExtractQueue <-chan time.Time
	var checkReportQueue <-chan time.Time
	shutdownIfQuiet := time.NewTimer(TimeBeforeShutdown)
	if !*noextract {
		checkExtractQueue = time.After(0)
	}
	if !*noreport {
		checkReportQueue = time.After(0)
	}

	for {
		select {
		case <-checkExtractQueue:
			msg, err := conn.CheckQueue(conn.ExtractQueueId(), HeartbeatTime*2)
			checkExtractQueue = time.After(PauseBetweenChecks)
			if err != nil {
				log.Println("Error checking extract queue", err)
				continue
			}
			if msg.Handle == "" {
				verboselog.Println("No message received on extract queue, sleeping")
				continue
			}
			verboselog.Println("Message received on extract queue, processing", msg.Body)
			stopTimer(shutdownIfQuiet)
			err = pipeline.ProcessBatch(ctx, msg, conn, pipeline.Extract(*hint), conn.ExtractQueueId(), conn.ReportQueueId())
			restartTimer(shutdownIfQuiet)
			if err != nil {
				log.Println("Error during extraction", err)
			}
		case <-checkReportQueue:
			msg, err := conn.CheckQueue(conn.ReportQueueId(), HeartbeatTime*2)
			checkReportQueue = time.After(PauseBetweenChecks)
			if err != nil {
				log.Println("Error checking report queue", err)
				continue
			}
			if msg.Handle == "" {
				verboselog.Println("No message received on report queue, sleeping")
				continue
			}
			verboselog.Println("Message received on report queue, processing", msg.Body)
			stopTimer(shutdownIfQuiet)
			err = pipeline.Report(ctx, msg, conn)
			restartTimer(shutdownIfQuiet)
			if err != nil {
				log.Println("Error during report generation", err)
			}
		case <-shutdownIfQuiet.C:
			if *autoshutdown {
				log.Println("If I was sufficiently brave, now would be the time I would shut down")
			}
		}
	}
}

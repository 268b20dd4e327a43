// Copyright 2019 Nick White.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

// getresults downloads the pipeline results for a batch.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"rescribe.xyz/fpsegment"

	"rescribe.xyz/fpsegment/internal/pipeline"
)

const usage = `Usage: getresults [-c conn] [-a] [-v] batchname

Downloads the pipeline results for a batch.

By default this downloads each card's segment JSON and cropped
segment images, plus the report PDF and yield graph. Pass -a to
download every file uploaded for the batch instead.
`

// null writer to enable non-verbose logging to be discarded
type NullWriter bool

func (w NullWriter) Write(p []byte) (n int, err error) {
	return len(p), nil
}

type Pipeliner interface {
	pipeline.DownloadLister
	Init() error
}

func main() {
	all := flag.Bool("a", false, "Get all files for batch")
	verbose := flag.Bool("v", false, "Verbose")
	conntype := flag.String("c", "aws", "connection type ('aws' or 'local')")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		return
	}

	var verboselog *log.Logger
	if *verbose {
		verboselog = log.New(os.Stdout, "", log.LstdFlags)
	} else {
		var n NullWriter
		verboselog = log.New(n, "", log.LstdFlags)
	}

	var conn Pipeliner
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

	batchname := flag.Arg(0)

	err = os.MkdirAll(batchname, 0755)
	if err != nil {
		log.Fatalln("Failed to create directory", batchname, err)
	}

	if *all {
		verboselog.Println("Downloading all files for", batchname)
		err = pipeline.DownloadAll(batchname, batchname, conn)
		if err != nil {
			log.Fatalln("Failed to download all files for batch", batchname, err)
		}
		return
	}

	verboselog.Println("Downloading segment results for", batchname)
	err = pipeline.DownloadSegmentResults(batchname, batchname, conn)
	if err != nil {
		log.Fatalln("Failed to download segment results for batch", batchname, err)
	}

	verboselog.Println("Downloading report for", batchname)
	err = pipeline.DownloadReport(batchname, batchname, conn)
	if err != nil {
		log.Fatalln("Failed to download report for batch", batchname, err)
	}
}

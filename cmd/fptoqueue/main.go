// Copyright 2019 Nick White.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

// fptoqueue uploads a batch of card images to cloud storage and adds
// the name to a queue ready to be processed by the fpsegment tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"rescribe.xyz/fpsegment"

	"rescribe.xyz/fpsegment/internal/pipeline"
)

const usage = `Usage: fptoqueue [-c conn] [-v] batchdir [batchname]

Uploads the card images in batchdir to the WIP storage and adds the
batch to the extract queue for segmentation.

If batchname is omitted the last part of batchdir is used.
`

// null writer to enable non-verbose logging to be discarded
type NullWriter bool

func (w NullWriter) Write(p []byte) (n int, err error) {
	return len(p), nil
}

var verboselog *log.Logger

func main() {
	verbose := flag.Bool("v", false, "Verbose")
	conntype := flag.String("c", "aws", "connection type ('aws' or 'local')")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() < 1 || flag.NArg() > 2 {
		flag.Usage()
		return
	}

	batchdir := flag.Arg(0)
	var batchname string
	if flag.NArg() > 1 {
		batchname = flag.Arg(1)
	} else {
		batchname = filepath.Base(batchdir)
	}

	if *verbose {
		verboselog = log.New(os.Stdout, "", log.LstdFlags)
	} else {
		var n NullWriter
		verboselog = log.New(n, "", log.LstdFlags)
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
	err := conn.Init()
	if err != nil {
		log.Fatalln("Failed to set up cloud connection:", err)
	}

	ctx := context.Background()

	verboselog.Println("Checking that all images are valid in", batchdir)
	err = pipeline.CheckImages(ctx, batchdir)
	if err != nil {
		log.Fatalln(err)
	}

	verboselog.Println("Checking that a batch hasn't already been uploaded with that name")
	list, err := conn.ListObjects(conn.WIPStorageId(), batchname)
	if err != nil {
		log.Fatalln(err)
	}
	if len(list) > 0 {
		log.Fatalf("Error: There is already a batch in storage named %s", batchname)
	}

	verboselog.Println("Uploading all images in", batchdir)
	err = pipeline.UploadImages(ctx, batchdir, batchname, conn)
	if err != nil {
		log.Fatalln(err)
	}

	err = conn.AddToQueue(conn.ExtractQueueId(), batchname)
	if err != nil {
		log.Fatalln("Error adding batch to queue:", err)
	}

	fmt.Println("Uploaded batch to extract queue")
}

// Copyright 2024 Nick White.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

/*
The fpsegment package contains various tools and functions for locating
individual fingerprint impressions on a scanned tenprint card, with a
focus on distributed processing of large batches of cards using
short-lived virtual servers. The core geometric algorithm lives in the
segment package; this package is concerned with getting scanned card
images in and oriented-box results out, at scale.

Introduction

Digitizing a backlog of tenprint cards means running the same
segmentation pipeline over many thousands of scans. This package splits
that work into small jobs which can be processed whenever a computer is
ready for them. It is currently implemented with Amazon's AWS cloud
systems, and can scale from zero to many computers, with jobs being
processed faster when more servers are available.

Central to the pipeline in terms of software is the fpsegment command,
which is part of the rescribe.xyz/fpsegment package. Presuming you have
the go tools installed, you can install it, and the tools to control the
system, with this command:
  go get -u rescribe.xyz/fpsegment/...

All of the tools provided in this package will give information on what
they do and how they work with the '-h' flag, so for example to get
usage information on the fptoqueue tool simply run:
  fptoqueue -h

To get the pipeline tools to work for you, you'll need to change the
settings in cloudsettings.go, and set up your ~/.aws/credentials
appropriately.

Managing servers

Most of the time fpsegment is expected to be run from potentially
short-lived servers on Amazon's EC2 system, using "Spot Instances" for
which we have no guarantee of stability but which are cheap and, in
practice, reliable enough. fpsegment can handle a process or server
being suddenly destroyed without warning (more on this later), so Spot
Instances are perfect for us. A spot instance can be started with the
command:
  spotme

You can keep an eye on the servers (spot or otherwise) that are running,
and the jobs left to do and in progress, with the "lspipeline" tool. It's
recommended to use this with the ssh private key for the servers, so
that it can also report on what each server is currently doing, but it
can run successfully without it:
  lspipeline -i key.pem

Spot instances can be terminated with ssh, using their ip address which
can be found with lspipeline, like so:
  ssh -i key.pem admin@<ip-address> sudo poweroff

The fpsegment program is run as a service managed by systemd on the
servers. The system is resilient in the face of unexpected failures --
see "How the pipeline works" below.

Using the pipeline

Batches of card scans can be added to the pipeline using the
"fptoqueue" tool. This takes a directory of card images as input,
uploads them all to S3, and adds a job to the pipeline queue to start
processing them:
  fptoqueue -v ExampleBatch/

Getting results

Once a batch has finished, its results -- the SegmentInfo JSON for each
card, the per-segment crops, the per-card PDF report and the batch yield
graph -- can be downloaded with the "getresults" tool:
  getresults ExampleBatch

How the pipeline works

The central part of the pipeline is several SQS queues, which contain
jobs that need to be done by a server running fpsegment. Each queue is
checked at least once every couple of minutes on any server that isn't
currently processing a job.

When a job is taken from the queue by a process, it is hidden from the
queue for 2 minutes so that no other process can take it. Once per
minute when processing a job the process sends a "heartbeat" message
updating the queue, to tell it to keep the job hidden for two minutes.
If the process fails for any reason the heartbeat stops, and in 2
minutes the job reappears on the queue for another process to have a go
at. Once a job is completed successfully it is deleted from the queue.

Queues

Queue names are defined in cloudsettings.go.

queueExtract

Each message in the queueExtract queue is a batch name. Every card image
in the batch is decoded, reduced to working resolution, and run through
segment.SegmenterState.Extract. The resulting SegmentInfo list for each
card is uploaded to S3 as JSON, the per-card crops are rendered and
uploaded alongside it, and the batch name is added to the queueReport
queue.

  example message: DeptOfSafety-Intake-2026-07

queueReport

A message on the queueReport queue contains only a batch name. The
per-card PDF contact sheet and the batch's segmentation-yield graph are
generated from the SegmentInfo JSON already uploaded for each card.

  example message: DeptOfSafety-Intake-2026-07

Queue manipulation

The queues should generally only be messed with by the fpsegment and
fptoqueue tools, but if you're feeling ambitious you can take a look at
the addtoqueue tool.

Remember that messages in a queue are hidden for a few minutes when they
are read, so for example you couldn't straightforwardly delete a message
which was currently being processed by a server, as you wouldn't be able
to see it.

Local operation

While fpsegment was built with cloud based operation in mind, there is
also a local mode that can be used to run a batch from a single computer
with no AWS account at all, with all the benefits of the PDF report and
yield graph that the pipeline provides.

You can use this by passing the '-c local' flag to the core fpsegment
commands. Here is a simple example run:

  fptoqueue -c local ExampleBatch
  fpsegment -v -c local           # run until ExampleBatch has finished
  getresults -c local ExampleBatch

Note that the local mode is not as well tested as the core cloud modes;
please report any bugs you find with it.
*/
package fpsegment

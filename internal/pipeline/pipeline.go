// Copyright 2024 Nick White.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

// pipeline is a package used by the fpsegment command, which
// handles the core functionality, using channels heavily to
// coordinate jobs. Note that it is considered an "internal" package,
// not intended for external use, and no guarantee is made of the
// stability of any interfaces provided.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io/ioutil"
	"log"
	"net/smtp"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"rescribe.xyz/fpsegment"
	"rescribe.xyz/fpsegment/decode"
	"rescribe.xyz/fpsegment/segment"
)

const HeartbeatSeconds = 60

type Lister interface {
	ListObjects(bucket string, prefix string) ([]string, error)
	Log(v ...interface{})
	WIPStorageId() string
}

type Downloader interface {
	Download(bucket string, key string, fn string) error
	Log(v ...interface{})
	WIPStorageId() string
}

type DownloadLister interface {
	Download(bucket string, key string, fn string) error
	ListObjects(bucket string, prefix string) ([]string, error)
	Log(v ...interface{})
	WIPStorageId() string
}

type Uploader interface {
	Log(v ...interface{})
	Upload(bucket string, key string, path string) error
	WIPStorageId() string
}

type Queuer interface {
	AddToQueue(url string, msg string) error
	CheckQueue(url string, timeout int64) (fpsegment.Qmsg, error)
	DelFromQueue(url string, handle string) error
	ExtractQueueId() string
	Log(v ...interface{})
	QueueHeartbeat(msg fpsegment.Qmsg, qurl string, duration int64) (fpsegment.Qmsg, error)
	ReportQueueId() string
}

type UploadQueuer interface {
	AddToQueue(url string, msg string) error
	CheckQueue(url string, timeout int64) (fpsegment.Qmsg, error)
	DelFromQueue(url string, handle string) error
	ExtractQueueId() string
	Log(v ...interface{})
	QueueHeartbeat(msg fpsegment.Qmsg, qurl string, duration int64) (fpsegment.Qmsg, error)
	ReportQueueId() string
	Upload(bucket string, key string, path string) error
	WIPStorageId() string
}

type Pipeliner interface {
	AddToQueue(url string, msg string) error
	CheckQueue(url string, timeout int64) (fpsegment.Qmsg, error)
	DelFromQueue(url string, handle string) error
	Download(bucket string, key string, fn string) error
	ExtractQueueId() string
	GetLogger() *log.Logger
	Init() error
	ListObjects(bucket string, prefix string) ([]string, error)
	Log(v ...interface{})
	QueueHeartbeat(msg fpsegment.Qmsg, qurl string, duration int64) (fpsegment.Qmsg, error)
	ReportQueueId() string
	Upload(bucket string, key string, path string) error
	WIPStorageId() string
}

type MinPipeliner interface {
	Pipeliner
	MinimalInit() error
}

type mailSettings struct {
	server, port, user, pass, from, to string
}

func GetMailSettings() (mailSettings, error) {
	p := filepath.Join(os.Getenv("HOME"), ".config", "fpsegment", "mailsettings")
	b, err := ioutil.ReadFile(p)
	if err != nil {
		return mailSettings{}, fmt.Errorf("error reading mailsettings from %s: %w", p, err)
	}
	f := strings.Fields(string(b))
	if len(f) != 6 {
		return mailSettings{}, fmt.Errorf("error parsing mailsettings, need %d fields, got %d", 6, len(f))
	}
	return mailSettings{f[0], f[1], f[2], f[3], f[4], f[5]}, nil
}

// download reads file names from a channel and downloads them into
// dir, putting each successfully downloaded file name into the
// process channel. If an error occurs it is sent to the errc channel
// and the function returns early.
func download(ctx context.Context, dl chan string, process chan string, conn Downloader, dir string, errc chan error, logger *log.Logger) {
	for key := range dl {
		select {
		case <-ctx.Done():
			for range dl {
			} // consume the rest of the receiving channel so it isn't blocked
			errc <- ctx.Err()
			close(process)
			return
		default:
		}
		fn := filepath.Join(dir, filepath.Base(key))
		logger.Println("Downloading", key)
		err := conn.Download(conn.WIPStorageId(), key, fn)
		if err != nil {
			for range dl {
			} // consume the rest of the receiving channel so it isn't blocked
			errc <- err
			close(process)
			return
		}
		process <- fn
	}
	close(process)
}

// up reads file names from a channel and uploads them with
// the batchname/ prefix, removing the local copy of each file
// once it has been successfully uploaded. The done channel is
// then written to to signal completion. If an error occurs it
// is sent to the errc channel and the function returns early.
func up(ctx context.Context, c chan string, done chan bool, conn Uploader, batchname string, errc chan error, logger *log.Logger) {
	for path := range c {
		select {
		case <-ctx.Done():
			for range c {
			} // consume the rest of the receiving channel so it isn't blocked
			errc <- ctx.Err()
			return
		default:
		}
		name := filepath.Base(path)
		key := batchname + "/" + name
		logger.Println("Uploading", key)
		err := conn.Upload(conn.WIPStorageId(), key, path)
		if err != nil {
			for range c {
			} // consume the rest of the receiving channel so it isn't blocked
			errc <- err
			return
		}
		err = os.Remove(path)
		if err != nil {
			for range c {
			} // consume the rest of the receiving channel so it isn't blocked
			errc <- err
			return
		}
	}

	done <- true
}

// upAndQueue reads file names from a channel and uploads them with
// the batchname/ prefix, removing the local copy of each file
// once it has been successfully uploaded. Once every file has been
// uploaded, batchname is added to toQueue. The done channel is then
// written to to signal completion. If an error occurs it is sent to
// the errc channel and the function returns early.
func upAndQueue(ctx context.Context, c chan string, done chan bool, toQueue string, conn UploadQueuer, batchname string, errc chan error, logger *log.Logger) {
	any := false
	for path := range c {
		select {
		case <-ctx.Done():
			for range c {
			} // consume the rest of the receiving channel so it isn't blocked
			errc <- ctx.Err()
			return
		default:
		}
		name := filepath.Base(path)
		key := batchname + "/" + name
		logger.Println("Uploading", key)
		err := conn.Upload(conn.WIPStorageId(), key, path)
		if err != nil {
			for range c {
			} // consume the rest of the receiving channel so it isn't blocked
			errc <- err
			return
		}
		err = os.Remove(path)
		if err != nil {
			for range c {
			} // consume the rest of the receiving channel so it isn't blocked
			errc <- err
			return
		}
		any = true
	}

	if any {
		logger.Println("Adding", batchname, "to queue", toQueue)
		err := conn.AddToQueue(toQueue, batchname)
		if err != nil {
			errc <- err
			return
		}
	}

	done <- true
}

// segmentResult is the JSON shape uploaded alongside each card's crops:
// the card image's base name and the oriented boxes found in it.
type segmentResult struct {
	Card     string                `json:"card"`
	Segments []segment.SegmentInfo `json:"segments"`
}

// Extract decodes each card image it receives, reduces it to working
// resolution, runs segment.SegmenterState.Extract, and uploads the
// resulting SegmentInfo JSON plus a cropped, de-rotated image for each
// kept segment.
func Extract(hint int) func(context.Context, chan string, chan string, chan error, *log.Logger) {
	return func(ctx context.Context, toextract chan string, upc chan string, errc chan error, logger *log.Logger) {
		for path := range toextract {
			select {
			case <-ctx.Done():
				for range toextract {
				} // consume the rest of the receiving channel so it isn't blocked
				errc <- ctx.Err()
				return
			default:
			}

			logger.Println("Extracting", path)

			f, err := os.Open(path)
			if err != nil {
				for range toextract {
				}
				errc <- fmt.Errorf("error opening %s: %w", path, err)
				return
			}
			src, state, gray, err := decode.Decode(f, hint)
			_ = f.Close()
			if err != nil {
				for range toextract {
				}
				errc <- fmt.Errorf("error decoding %s: %w", path, err)
				return
			}

			ok, segs := state.Extract(gray)
			if !ok {
				logger.Println("Extraction failed (malformed input or too many components) for", path)
				segs = nil
			}

			base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			dir := filepath.Dir(path)

			resultPath := filepath.Join(dir, base+".segments.json")
			rf, err := os.Create(resultPath)
			if err != nil {
				for range toextract {
				}
				errc <- fmt.Errorf("error creating %s: %w", resultPath, err)
				return
			}
			err = json.NewEncoder(rf).Encode(segmentResult{Card: filepath.Base(path), Segments: segs})
			_ = rf.Close()
			if err != nil {
				for range toextract {
				}
				errc <- fmt.Errorf("error writing %s: %w", resultPath, err)
				return
			}
			upc <- resultPath

			for i, seg := range segs {
				cropped := decode.Crop(src, seg)
				cropPath := filepath.Join(dir, fmt.Sprintf("%s_seg%02d.png", base, i))
				err = savePNG(cropPath, cropped)
				if err != nil {
					for range toextract {
					}
					errc <- fmt.Errorf("error saving crop %s: %w", cropPath, err)
					return
				}
				upc <- cropPath
			}

			_ = os.Remove(path)
		}
		close(upc)
	}
}

func heartbeat(conn Queuer, t *time.Ticker, msg fpsegment.Qmsg, queue string, msgc chan fpsegment.Qmsg, errc chan error) {
	currentmsg := msg
	for range t.C {
		m, err := conn.QueueHeartbeat(currentmsg, queue, HeartbeatSeconds*2)
		if err != nil {
			conn.Log("Error with heartbeat", err)
			os.Exit(1)
			errc <- err
			t.Stop()
			return
		}
		if m.Id != "" {
			conn.Log("Replaced message handle as visibilitytimeout limit was reached")
			currentmsg = m
			for range msgc {
			} // throw away any old msgc
			msgc <- m
		}
	}
}

// ProcessBatch downloads every card image for a batch, runs process
// (typically Extract) over each, uploads the results, and forwards the
// batch name to toQueue on success.
func ProcessBatch(ctx context.Context, msg fpsegment.Qmsg, conn Pipeliner, process func(context.Context, chan string, chan string, chan error, *log.Logger), fromQueue string, toQueue string) error {
	dl := make(chan string)
	msgc := make(chan fpsegment.Qmsg)
	processc := make(chan string)
	upc := make(chan string)
	done := make(chan bool)
	errc := make(chan error)

	batchname := msg.Body

	d := filepath.Join(os.TempDir(), batchname)
	err := os.MkdirAll(d, 0755)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", d, err)
	}

	t := time.NewTicker(HeartbeatSeconds * time.Second)
	go heartbeat(conn, t, msg, fromQueue, msgc, errc)

	go download(ctx, dl, processc, conn, d, errc, conn.GetLogger())
	go process(ctx, processc, upc, errc, conn.GetLogger())
	if toQueue != "" {
		go upAndQueue(ctx, upc, done, toQueue, conn, batchname, errc, conn.GetLogger())
	} else {
		go up(ctx, upc, done, conn, batchname, errc, conn.GetLogger())
	}

	conn.Log("Getting list of objects to download")
	objs, err := conn.ListObjects(conn.WIPStorageId(), batchname)
	if err != nil {
		t.Stop()
		_ = os.RemoveAll(d)
		return fmt.Errorf("failed to get list of files for batch %s: %w", batchname, err)
	}
	for _, n := range objs {
		dl <- n
	}
	close(dl)

	select {
	case err = <-errc:
		t.Stop()
		_ = os.RemoveAll(d)
		conn.Log("Deleting message from queue due to a bad error", fromQueue)
		err2 := conn.DelFromQueue(fromQueue, msg.Handle)
		if err2 != nil {
			conn.Log("Error deleting message from queue", err2)
		}
		ms, err2 := GetMailSettings()
		if err2 == nil && ms.server != "" {
			logs, err2 := getLogs()
			if err2 != nil {
				conn.Log("Failed to get logs", err2)
				logs = ""
			}
			body := fmt.Sprintf("To: %s\r\nFrom: %s\r\n"+
				"Subject: [fpsegment] Error processing batch %s\r\n\r\n"+
				"Fail message: %s\r\nFull log:\r\n%s\r\n",
				ms.to, ms.from, batchname, err, logs)
			host := fmt.Sprintf("%s:%s", ms.server, ms.port)
			auth := smtp.PlainAuth("", ms.user, ms.pass, ms.server)
			err2 = smtp.SendMail(host, auth, ms.from, []string{ms.to}, []byte(body))
			if err2 != nil {
				conn.Log("Error sending email", err2)
			}
		}
		return err
	case <-ctx.Done():
		t.Stop()
		_ = os.RemoveAll(d)
		return ctx.Err()
	case <-done:
	}

	t.Stop()

	select {
	case m, ok := <-msgc:
		if ok {
			msg = m
			conn.Log("Using new message handle to delete message from queue")
		}
	default:
		conn.Log("Using original message handle to delete message from queue")
	}

	conn.Log("Deleting original message from queue", fromQueue)
	err = conn.DelFromQueue(fromQueue, msg.Handle)
	if err != nil {
		_ = os.RemoveAll(d)
		return fmt.Errorf("error deleting message from queue: %w", err)
	}

	err = os.RemoveAll(d)
	if err != nil {
		return fmt.Errorf("failed to remove directory %s: %w", d, err)
	}

	return nil
}

// Report downloads every card's SegmentInfo JSON and card image for a
// batch, builds the per-card PDF contact sheet and the batch's segmentation
// yield graph, and uploads both.
func Report(ctx context.Context, msg fpsegment.Qmsg, conn Pipeliner) error {
	batchname := msg.Body
	d := filepath.Join(os.TempDir(), batchname)
	err := os.MkdirAll(d, 0755)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", d, err)
	}
	defer os.RemoveAll(d)

	conn.Log("Getting list of objects to download")
	objs, err := conn.ListObjects(conn.WIPStorageId(), batchname)
	if err != nil {
		return fmt.Errorf("failed to get list of files for batch %s: %w", batchname, err)
	}

	var jsonKeys []string
	for _, n := range objs {
		if strings.HasSuffix(n, ".segments.json") {
			jsonKeys = append(jsonKeys, n)
		}
	}
	sort.Strings(jsonKeys)

	report := new(fpsegment.Fpdf)
	if err := report.Setup(); err != nil {
		return fmt.Errorf("failed to set up PDF: %w", err)
	}

	yields := make(map[string]*fpsegment.CardYield)

	for _, key := range jsonKeys {
		fn := filepath.Join(d, filepath.Base(key))
		if err := conn.Download(conn.WIPStorageId(), key, fn); err != nil {
			conn.Log("Failed to download", key, err)
			continue
		}
		f, err := os.Open(fn)
		if err != nil {
			conn.Log("Failed to open", fn, err)
			continue
		}
		var res segmentResult
		err = json.NewDecoder(f).Decode(&res)
		_ = f.Close()
		if err != nil {
			conn.Log("Failed to parse", fn, err)
			continue
		}

		cardKey := filepath.Join(filepath.Dir(key), res.Card)
		cardFn := filepath.Join(d, res.Card)
		if err := conn.Download(conn.WIPStorageId(), cardKey, cardFn); err != nil {
			conn.Log("Failed to download card image", cardKey, err)
			continue
		}

		if err := report.AddPage(cardFn, res.Segments); err != nil {
			conn.Log("Failed to add page for", cardFn, err)
			continue
		}

		var area float64
		for _, s := range res.Segments {
			area += float64(s.Size.Width * s.Size.Height)
		}
		cf, err := os.Open(cardFn)
		if err != nil {
			conn.Log("Failed to open card image", cardFn, err)
			continue
		}
		cfg, _, err := image.DecodeConfig(cf)
		_ = cf.Close()
		if err != nil || cfg.Width*cfg.Height == 0 {
			conn.Log("Failed to read card image size", cardFn, err)
			continue
		}
		yields[res.Card] = &fpsegment.CardYield{Path: res.Card, Yield: 100 * area / float64(cfg.Width*cfg.Height)}
	}

	reportPath := filepath.Join(d, batchname+".report.pdf")
	if err := report.Save(reportPath); err != nil {
		return fmt.Errorf("failed to save report pdf: %w", err)
	}
	if err := conn.Upload(conn.WIPStorageId(), batchname+"/"+batchname+".report.pdf", reportPath); err != nil {
		return fmt.Errorf("failed to upload report pdf: %w", err)
	}

	if len(yields) >= 2 {
		graphPath := filepath.Join(d, "graph.png")
		gf, err := os.Create(graphPath)
		if err == nil {
			err = fpsegment.Graph(yields, batchname, gf)
			_ = gf.Close()
			if err == nil {
				_ = conn.Upload(conn.WIPStorageId(), batchname+"/graph.png", graphPath)
			} else {
				conn.Log("Failed to render graph", err)
			}
		}
	}

	conn.Log("Deleting message from queue", conn.ReportQueueId())
	return conn.DelFromQueue(conn.ReportQueueId(), msg.Handle)
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

// TODO: rather than relying on journald, would be nicer to save the logs
//       ourselves maybe, so that we weren't relying on a particular systemd
//       setup.
func getLogs() (string, error) {
	cmd := exec.Command("journalctl", "-u", "fpsegment", "-n", "all")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), err
}

func SaveLogs(conn Uploader, starttime int64, hostname string) error {
	logs, err := getLogs()
	if err != nil {
		return fmt.Errorf("error getting logs: %w", err)
	}
	key := fmt.Sprintf("fpsegment.log.%d.%s", starttime, hostname)
	path := filepath.Join(os.TempDir(), key)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating log file: %w", err)
	}
	defer f.Close()
	_, err = f.WriteString(logs)
	if err != nil {
		return fmt.Errorf("error saving log file: %w", err)
	}
	_ = f.Close()
	err = conn.Upload(conn.WIPStorageId(), key, path)
	if err != nil {
		return fmt.Errorf("error uploading log: %w", err)
	}
	conn.Log("Log saved to", key)
	return nil
}

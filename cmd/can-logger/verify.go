package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/kstaniek/go-can-logger/internal/csvlog"
	"github.com/kstaniek/go-can-logger/internal/dblbuf"
)

// verifyReport summarizes a session file.
type verifyReport struct {
	Bytes     int64
	Headers   int
	Records   int
	Padded    int
	Malformed []int // 1-based line numbers
	Aligned   bool
	Timestamp bool
	FirstTick uint32
	LastTick  uint32
}

// runVerify implements "can-logger verify [-block-size N] <file.csv>". It
// returns the process exit code: 0 ok, 1 damaged file, 2 usage or I/O error.
func runVerify(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(out)
	blockSize := fs.Int("block-size", dblbuf.DefaultBlockSize, "Expected storage block size")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 || *blockSize <= 0 {
		fmt.Fprintln(out, "usage: can-logger verify [-block-size N] <file.csv>")
		return 2
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(out, "verify: %v\n", err)
		return 2
	}
	defer f.Close()
	rep, err := verifyStream(f, *blockSize)
	if err != nil {
		fmt.Fprintf(out, "verify: %v\n", err)
		return 2
	}
	fmt.Fprintf(out, "file=%s bytes=%d aligned=%t headers=%d records=%d padded=%d malformed=%d timestamp=%t",
		fs.Arg(0), rep.Bytes, rep.Aligned, rep.Headers, rep.Records, rep.Padded, len(rep.Malformed), rep.Timestamp)
	if rep.Timestamp && rep.Records > 0 {
		fmt.Fprintf(out, " first_tick=%d last_tick=%d", rep.FirstTick, rep.LastTick)
	}
	fmt.Fprintln(out)
	for _, n := range rep.Malformed {
		fmt.Fprintf(out, "malformed line %d\n", n)
	}
	if len(rep.Malformed) > 0 || !rep.Aligned || rep.Headers == 0 {
		return 1
	}
	return 0
}

// verifyStream checks every line of a session file. A header line switches
// the timestamp mode, so files a restarted session appended to verify too.
func verifyStream(r io.Reader, blockSize int) (verifyReport, error) {
	var rep verifyReport
	hdrTS := bytes.TrimSuffix(csvlog.Header(true), []byte("\r\n"))
	hdrNoTS := bytes.TrimSuffix(csvlog.Header(false), []byte("\r\n"))
	cr := &countingReader{r: r}
	sc := bufio.NewScanner(cr)
	sc.Buffer(make([]byte, 0, 4096), 64*1024) // padded lines stay below one block
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		content, padded := stripPadding(raw)
		switch {
		case bytes.Equal(content, hdrTS):
			rep.Headers++
			rep.Timestamp = true
			continue
		case bytes.Equal(content, hdrNoTS):
			rep.Headers++
			rep.Timestamp = false
			continue
		}
		rec, err := csvlog.ParseRecord(raw, rep.Timestamp)
		if err != nil || rep.Headers == 0 {
			rep.Malformed = append(rep.Malformed, line)
			continue
		}
		if padded {
			rep.Padded++
		}
		if rec.HasTick {
			if rep.Records == 0 {
				rep.FirstTick = rec.Tick
			}
			rep.LastTick = rec.Tick
		}
		rep.Records++
	}
	if err := sc.Err(); err != nil {
		return rep, err
	}
	rep.Bytes = cr.n
	rep.Aligned = rep.Bytes%int64(blockSize) == 0
	return rep, nil
}

// stripPadding removes the ",<spaces>" block padding from a line.
func stripPadding(l []byte) ([]byte, bool) {
	t := bytes.TrimRight(l, " ")
	if len(t) > 0 && t[len(t)-1] == ',' {
		return t[:len(t)-1], true
	}
	return l, false
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kstaniek/go-can-logger/internal/can"
	"github.com/kstaniek/go-can-logger/internal/csvlog"
	"github.com/kstaniek/go-can-logger/internal/dblbuf"
)

// sessionBytes renders a session the way the recorder lays it out: an
// aligned header block followed by aligned record blocks.
func sessionBytes(t *testing.T, withTimestamp bool, frames []can.Frame) []byte {
	t.Helper()
	b, err := dblbuf.New(dblbuf.Geometry{Capacity: 2048, Threshold: 1024, BlockSize: 512, MaxLine: csvlog.MaxLineLen}, dblbuf.Hooks{})
	if err != nil {
		t.Fatalf("dblbuf.New: %v", err)
	}
	var out bytes.Buffer
	flush := func() {
		b.RequestHandoff()
		data, ok := b.Pending()
		if !ok {
			t.Fatalf("no pending data")
		}
		out.Write(data)
		b.Release()
	}
	b.Append(csvlog.Header(withTimestamp))
	flush()
	for _, f := range frames {
		b.Append(csvlog.AppendRecord(nil, f, withTimestamp))
	}
	if b.Len() > 0 {
		flush()
	}
	return out.Bytes()
}

func testFrames() []can.Frame {
	return []can.Frame{
		{Kind: can.Standard, ID: 0x123, Len: 2, Data: [8]byte{0xAB, 0xCD}, Tick: 10},
		{Kind: can.Extended, ID: 0x1ABCDE, Len: 0, Tick: 20},
		{Kind: can.Standard, ID: 0, Len: 8, Data: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}, Tick: 30},
	}
}

func TestVerifyStream(t *testing.T) {
	data := sessionBytes(t, true, testFrames())
	rep, err := verifyStream(bytes.NewReader(data), 512)
	if err != nil {
		t.Fatalf("verifyStream: %v", err)
	}
	if rep.Bytes != 1024 || !rep.Aligned {
		t.Fatalf("bytes=%d aligned=%v", rep.Bytes, rep.Aligned)
	}
	if rep.Headers != 1 || rep.Records != 3 || rep.Padded != 1 || len(rep.Malformed) != 0 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if !rep.Timestamp || rep.FirstTick != 10 || rep.LastTick != 30 {
		t.Fatalf("tick range %+v", rep)
	}
}

func TestVerifyStreamHeaderOnly(t *testing.T) {
	rep, err := verifyStream(bytes.NewReader(sessionBytes(t, false, nil)), 512)
	if err != nil {
		t.Fatalf("verifyStream: %v", err)
	}
	if rep.Bytes != 512 || !rep.Aligned || rep.Headers != 1 || rep.Records != 0 || rep.Timestamp {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestVerifyStreamAppendedSessions(t *testing.T) {
	data := append(sessionBytes(t, true, testFrames()), sessionBytes(t, false, testFrames()[:1])...)
	rep, err := verifyStream(bytes.NewReader(data), 512)
	if err != nil {
		t.Fatalf("verifyStream: %v", err)
	}
	if rep.Headers != 2 || rep.Records != 4 || len(rep.Malformed) != 0 || !rep.Aligned {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestVerifyStreamMalformed(t *testing.T) {
	data := sessionBytes(t, false, testFrames())
	data = append(data, []byte("not,a,record\r\n")...)
	rep, err := verifyStream(bytes.NewReader(data), 512)
	if err != nil {
		t.Fatalf("verifyStream: %v", err)
	}
	if len(rep.Malformed) != 1 || rep.Malformed[0] != 5 || rep.Aligned {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestRunVerify(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.csv")
	if err := os.WriteFile(good, sessionBytes(t, true, testFrames()), 0o644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if code := runVerify([]string{good}, &out); code != 0 {
		t.Fatalf("exit %d: %s", code, out.String())
	}
	if !strings.Contains(out.String(), "records=3") || !strings.Contains(out.String(), "aligned=true") {
		t.Fatalf("unexpected output %q", out.String())
	}

	bad := filepath.Join(dir, "bad.csv")
	if err := os.WriteFile(bad, []byte("garbage\r\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if code := runVerify([]string{bad}, &out); code != 1 {
		t.Fatalf("expected exit 1, got %d: %s", code, out.String())
	}

	out.Reset()
	if code := runVerify(nil, &out); code != 2 {
		t.Fatalf("expected usage exit 2, got %d", code)
	}
	if code := runVerify([]string{filepath.Join(dir, "missing.csv")}, &out); code != 2 {
		t.Fatalf("expected I/O exit 2, got %d", code)
	}
}

// Command client streams a WAV file to the transcriber and prints the
// committed fragments.
package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/amanullahtanweer/windowed-transcriber/internal/audio"
)

func main() {
	var (
		addr     string
		file     string
		chunkSec float64
		realtime bool
	)
	flag.StringVar(&addr, "addr", "ws://127.0.0.1:8000/ws/audio", "Websocket endpoint")
	flag.StringVar(&file, "file", "sample_16k.wav", "WAV file to stream")
	flag.Float64Var(&chunkSec, "chunk", 2.0, "Seconds of audio per frame")
	flag.BoolVar(&realtime, "realtime", false, "Pace frames at real time")
	flag.Parse()

	if err := run(addr, file, chunkSec, realtime); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(addr, file string, chunkSec float64, realtime bool) error {
	clip, err := audio.LoadWAVFile(file)
	if err != nil {
		return err
	}

	u, err := url.Parse(addr)
	if err != nil {
		return fmt.Errorf("parse addr: %w", err)
	}
	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(clip.SampleRate))
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (HTTP %d)", u, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", u, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s (%.2fs of audio at %d Hz)\n", u, clip.Seconds(), clip.SampleRate)

	done := make(chan error, 1)
	go func() { done <- printFragments(conn) }()

	chunk := int(chunkSec * float64(clip.SampleRate))
	if chunk <= 0 {
		chunk = clip.SampleRate
	}
	for start := 0; start < len(clip.Samples); start += chunk {
		end := min(start+chunk, len(clip.Samples))
		if err := conn.WriteMessage(websocket.BinaryMessage, audio.EncodeFloat32LE(clip.Samples[start:end])); err != nil {
			return fmt.Errorf("send audio: %w", err)
		}
		fmt.Printf("Sent %d samples\n", end-start)
		if realtime {
			time.Sleep(time.Duration(float64(end-start) / float64(clip.SampleRate) * float64(time.Second)))
		}
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("EOS")); err != nil {
		return fmt.Errorf("send EOS: %w", err)
	}
	fmt.Println("Finished sending audio")

	return <-done
}

func printFragments(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		text := string(data)
		if text == "DONE" {
			fmt.Println("Transcription complete")
			continue
		}
		fmt.Println("Fragment:", text)
	}
}

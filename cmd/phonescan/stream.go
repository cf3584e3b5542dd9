package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/phonescan/internal/app"
	"github.com/MrWong99/phonescan/internal/scan"
)

// streamDrain is how long the client keeps listening after the last frame.
const streamDrain = time.Second

func runStream(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("stream", flag.ContinueOnError)
	fs.SetOutput(stderr)
	url := fs.String("url", "ws://localhost:8080/v1/scan", "websocket endpoint of a phonescan server")
	interval := fs.Duration("interval", 0, "delay between frames, e.g. 33ms to mimic a 30 fps camera")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "phonescan stream: exactly one recording is required")
		return 2
	}
	rec, err := scan.LoadRecording(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "phonescan stream: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := streamRecording(ctx, *url, rec, *interval, stdout); err != nil {
		fmt.Fprintf(stderr, "phonescan stream: %v\n", err)
		return 1
	}
	return 0
}

// streamRecording sends every frame of rec to the server at url and prints
// the server's messages to out. It returns after the first result, or once
// all frames are sent and the drain period has passed.
func streamRecording(ctx context.Context, url string, rec *scan.Recording, interval time.Duration, out io.Writer) error {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.CloseNow()

	var closing atomic.Bool
	done := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(done)
		for {
			_, data, err := conn.Read(gctx)
			if err != nil {
				if closing.Load() || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
					return nil
				}
				return err
			}
			var msg app.ServerMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				return fmt.Errorf("decode server message: %w", err)
			}
			printServerMessage(out, msg)
			if msg.Type == app.MsgResult && msg.Finished {
				return nil
			}
		}
	})

	g.Go(func() error {
		for _, texts := range rec.Frames {
			data, err := json.Marshal(app.ClientMessage{Type: app.MsgFrame, Texts: texts})
			if err != nil {
				return err
			}
			if err := conn.Write(gctx, websocket.MessageText, data); err != nil {
				select {
				case <-done:
					return nil
				default:
					return err
				}
			}
			if interval > 0 {
				select {
				case <-time.After(interval):
				case <-done:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
		select {
		case <-done:
		case <-time.After(streamDrain):
		case <-gctx.Done():
		}
		closing.Store(true)
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return nil
	})

	return g.Wait()
}

func printServerMessage(w io.Writer, msg app.ServerMessage) {
	switch msg.Type {
	case app.MsgSession:
		fmt.Fprintf(w, "session %s\n", msg.SessionID)
	case app.MsgProgress:
		if msg.Best == "" {
			fmt.Fprintf(w, "frame %d: no candidate\n", msg.Frame)
		} else {
			fmt.Fprintf(w, "frame %d: leading %s (%d)\n", msg.Frame, msg.Best, msg.BestCount)
		}
	case app.MsgResult:
		if r := msg.Result; r != nil {
			fmt.Fprintf(w, "frame %d: RESULT %s (%d sightings)\n", msg.Frame, r.National, r.Sightings)
		}
	case app.MsgError:
		fmt.Fprintf(w, "frame %d: error: %s\n", msg.Frame, msg.Error)
	}
}

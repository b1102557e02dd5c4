// Command gridview shows a running gridsim's occupancy as a live terminal heatmap.
// It reads the observer's /bootstrap and /ws endpoints. q or Esc quits.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gorilla/websocket"
	"github.com/l1jgo/gridsim/internal/grid"
	"github.com/l1jgo/gridsim/internal/observer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	addr := "127.0.0.1:7071"
	if a := os.Getenv("GRIDSIM_OBSERVER"); a != "" {
		addr = a
	}

	boot, err := fetchBootstrap(addr)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		return fmt.Errorf("dial observer: %w", err)
	}
	defer conn.Close()

	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()

	frames := make(chan grid.Frame, 1)
	readErr := make(chan error, 1)
	go readFrames(conn, frames, readErr)

	eventChan := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			eventChan <- ev
		}
	}()

	var last grid.Frame
	for {
		select {
		case ev := <-eventChan:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC ||
					(ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
					return nil
				}
			case *tcell.EventResize:
				screen.Sync()
				draw(screen, last, boot.Name)
			}
		case f := <-frames:
			last = f
			draw(screen, last, boot.Name)
		case err := <-readErr:
			return err
		}
	}
}

func fetchBootstrap(addr string) (observer.Bootstrap, error) {
	var boot observer.Bootstrap
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/bootstrap")
	if err != nil {
		return boot, fmt.Errorf("bootstrap: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return boot, fmt.Errorf("bootstrap: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&boot); err != nil {
		return boot, fmt.Errorf("bootstrap: %w", err)
	}
	return boot, nil
}

// readFrames keeps only the newest frame when the screen falls behind.
func readFrames(conn *websocket.Conn, out chan grid.Frame, errc chan<- error) {
	for {
		var f grid.Frame
		if err := conn.ReadJSON(&f); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = errors.New("observer closed the stream")
			}
			errc <- err
			return
		}
		select {
		case out <- f:
		default:
			select {
			case <-out:
			default:
			}
			out <- f
		}
	}
}

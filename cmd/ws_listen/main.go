package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// envelope mirrors the daemon's outbound websocket message.
type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func main() {
	var (
		wsURL       = flag.String("ws", "ws://127.0.0.1:3002/ws", "trackswipe websocket URL")
		raw         = flag.Bool("raw", false, "Print messages as received JSON")
		accumulator = flag.Bool("accumulator", false, "Print accumulator telemetry (daemon must run with -telemetry)")
		send        = flag.String("send", "", "Send one action envelope after connecting (e.g. '{\"type\":\"reset\"}')")
	)
	flag.Parse()

	// Parse websocket URL
	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	// Handle shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	// Connect to websocket
	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Mutex to protect concurrent writes to websocket
	var writeMu sync.Mutex

	// Set up ping/pong handlers for connection health
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// Start ping ticker to keep connection alive
	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	go func() {
		for range pingTicker.C {
			writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				log.Printf("ping failed: %v", err)
				return
			}
		}
	}()

	if *send != "" {
		if !json.Valid([]byte(*send)) {
			log.Fatalf("-send is not valid JSON")
		}
		writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, []byte(*send))
		writeMu.Unlock()
		if err != nil {
			log.Fatalf("failed to send action: %v", err)
		}
	}

	// Message reading loop
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			// Any traffic proves the connection is alive.
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			switch messageType {
			case websocket.TextMessage:
				if *raw {
					fmt.Printf("%s\n", message)
					continue
				}
				if line, ok := formatMessage(message, *accumulator); ok {
					fmt.Println(line)
				}
			case websocket.BinaryMessage:
				fmt.Printf("[BINARY] %d bytes\n", len(message))
			}
		}
	}()

	// Wait for shutdown signal or connection close
	select {
	case <-sigc:
		log.Printf("shutting down...")
		// Clean close
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// formatMessage renders one daemon message as a single line.
// It reports false for messages that should not be printed.
func formatMessage(message []byte, showAccumulator bool) (string, bool) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return fmt.Sprintf("[TEXT] %s", message), true
	}

	switch env.Type {
	case "gesture":
		var g struct {
			Device  string `json:"device"`
			Gesture string `json:"gesture"`
			Slot    *int   `json:"slot"`
		}
		if err := json.Unmarshal(env.Data, &g); err != nil {
			break
		}
		line := fmt.Sprintf("[GESTURE] %s", g.Gesture)
		if g.Slot != nil {
			line += fmt.Sprintf(" slot=%d", *g.Slot)
		}
		return line + " (" + g.Device + ")", true

	case "ui_phase_changed":
		var p struct {
			Active         bool `json:"active"`
			Slot           int  `json:"slot"`
			ReleaseConfirm bool `json:"release_confirm"`
		}
		if err := json.Unmarshal(env.Data, &p); err != nil {
			break
		}
		phase := "IDLE"
		if p.Active {
			phase = "ACTIVE"
		}
		return fmt.Sprintf("[UI] %s slot=%d release_confirm=%t", phase, p.Slot, p.ReleaseConfirm), true

	case "settings_changed":
		var s struct {
			Enabled         bool `json:"enabled"`
			RequiredFingers int  `json:"required_fingers"`
		}
		if err := json.Unmarshal(env.Data, &s); err != nil {
			break
		}
		return fmt.Sprintf("[SETTINGS] enabled=%t fingers=%d", s.Enabled, s.RequiredFingers), true

	case "device_changed":
		var dv struct {
			Device   string `json:"device"`
			Attached bool   `json:"attached"`
			Error    string `json:"error"`
		}
		if err := json.Unmarshal(env.Data, &dv); err != nil {
			break
		}
		if dv.Attached {
			return fmt.Sprintf("[DEVICE] %s attached", dv.Device), true
		}
		line := fmt.Sprintf("[DEVICE] %s lost", dv.Device)
		if dv.Error != "" {
			line += ": " + dv.Error
		}
		return line, true

	case "accumulator":
		if !showAccumulator {
			return "", false
		}
		var a struct {
			Device string  `json:"device"`
			X      float64 `json:"x"`
			Y      float64 `json:"y"`
		}
		if err := json.Unmarshal(env.Data, &a); err != nil {
			break
		}
		return fmt.Sprintf("[ACC] %s x=%.3f y=%.3f", a.Device, a.X, a.Y), true
	}

	// Pretty print everything else (state_init, error, unknown types)
	var pretty any
	if err := json.Unmarshal(message, &pretty); err != nil {
		return fmt.Sprintf("[TEXT] %s", message), true
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	return fmt.Sprintf("[%s]\n%s", env.Type, out), true
}

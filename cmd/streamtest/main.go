// Command streamtest opens many notification streams for one account and
// reports how many events each received.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// Metrics tracks stream outcomes.
type Metrics struct {
	ConnectionsAttempted int64
	ConnectionsSuccess   int64
	ConnectionsFailed    int64
	EventsReceived       int64
	Disconnects          int64
}

var metrics Metrics

type event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

func main() {
	host := flag.String("host", "localhost:8375", "API server host")
	email := flag.String("email", "", "Account email")
	password := flag.String("password", "password123", "Account password")
	streams := flag.Int("streams", 20, "Number of concurrent streams")
	duration := flag.Duration("duration", 30*time.Second, "Test duration")
	verbose := flag.Bool("v", false, "Log every received event")
	flag.Parse()

	if *email == "" {
		log.Fatal("-email is required")
	}

	token, err := login(*host, *email, *password)
	if err != nil {
		log.Fatalf("Login failed: %v", err)
	}
	log.Printf("Logged in, opening %d streams against %s for %v", *streams, *host, *duration)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < *streams; i++ {
		wg.Add(1)
		go runStream(*host, token, i, *verbose, stop, &wg)
	}

	select {
	case <-time.After(*duration):
		log.Println("Duration reached")
	case <-interrupt:
		log.Println("Interrupted")
	}

	close(stop)
	wg.Wait()
	printMetrics()
}

func login(host, email, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}

	resp, err := http.Post(fmt.Sprintf("http://%s/api/auth/login", host), "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Token, nil
}

func runStream(host, token string, id int, verbose bool, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	atomic.AddInt64(&metrics.ConnectionsAttempted, 1)

	u := url.URL{
		Scheme:   "ws",
		Host:     host,
		Path:     "/api/ws/notifications",
		RawQuery: url.Values{"token": {token}}.Encode(),
	}
	c, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		return
	}
	defer func() { _ = c.Close() }()
	atomic.AddInt64(&metrics.ConnectionsSuccess, 1)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			atomic.AddInt64(&metrics.EventsReceived, 1)
			if verbose {
				var ev event
				if err := json.Unmarshal(msg, &ev); err == nil {
					log.Printf("stream %d: %s %v", id, ev.Type, ev.Payload)
				}
			}
		}
	}()

	select {
	case <-stop:
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-closed:
		case <-time.After(2 * time.Second):
		}
	case <-closed:
		atomic.AddInt64(&metrics.Disconnects, 1)
	}
}

func printMetrics() {
	log.Println("Results")
	log.Printf("Connections attempted: %d", atomic.LoadInt64(&metrics.ConnectionsAttempted))
	log.Printf("Connections successful: %d", atomic.LoadInt64(&metrics.ConnectionsSuccess))
	log.Printf("Connections failed: %d", atomic.LoadInt64(&metrics.ConnectionsFailed))
	log.Printf("Events received: %d", atomic.LoadInt64(&metrics.EventsReceived))
	log.Printf("Server-side disconnects: %d", atomic.LoadInt64(&metrics.Disconnects))
}

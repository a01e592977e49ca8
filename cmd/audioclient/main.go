package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"interview-copilot-service/internal/audio"
)

// Stream audio in chunks to simulate real-time capture.
// At 16kHz 16-bit mono = 32000 bytes/second, 100ms chunks = 3200 bytes.
const chunkIntervalMs = 100

type hello struct {
	AudioTracks int    `json:"audioTracks"`
	SampleRate  int    `json:"sampleRate"`
	Format      string `json:"format"`
}

type reply struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Mode      string `json:"mode"`
	Error     string `json:"error"`
	ErrorKind string `json:"errorKind"`
}

func main() {
	audioFile := flag.String("audio", "testdata/interview-16khz.wav", "Path to WAV file (16-bit PCM)")
	serverURL := flag.String("server", "ws://localhost:8080/v1/audio", "Copilot audio websocket URL")
	flush := flag.Bool("flush", false, "Flush the pending turn after streaming")
	flag.Parse()

	data, err := os.ReadFile(*audioFile)
	if err != nil {
		log.Fatalf("Failed to read audio file: %v", err)
	}
	pcm, sampleRate, err := audio.DecodeWAV(data)
	if err != nil {
		log.Fatalf("Not a usable WAV file: %v", err)
	}
	log.Printf("WAV file: sampleRate=%d samples=%d duration=%v",
		sampleRate, len(pcm), time.Duration(len(pcm))*time.Second/time.Duration(sampleRate))

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	log.Printf("Connected to %s", *serverURL)

	if err := conn.WriteJSON(hello{AudioTracks: 1, SampleRate: sampleRate, Format: "s16"}); err != nil {
		log.Fatalf("Failed to send hello: %v", err)
	}
	var r reply
	if err := conn.ReadJSON(&r); err != nil {
		log.Fatalf("Failed to read reply: %v", err)
	}
	if r.Type != "started" {
		log.Fatalf("Session rejected: %s (%s)", r.Error, r.ErrorKind)
	}
	log.Printf("Session started: sessionId=%s mode=%s", r.SessionID, r.Mode)

	// Print anything the server sends while streaming
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("Connection closed: %v", err)
				}
				return
			}
			var r reply
			if json.Unmarshal(msg, &r) == nil && r.Type == "error" {
				log.Printf("Server error: %s (%s)", r.Error, r.ErrorKind)
			}
		}
	}()

	chunkSamples := sampleRate * chunkIntervalMs / 1000
	ticker := time.NewTicker(chunkIntervalMs * time.Millisecond)
	defer ticker.Stop()

	var chunkNum int
	startTime := time.Now()
	for off := 0; off < len(pcm); off += chunkSamples {
		end := off + chunkSamples
		if end > len(pcm) {
			end = len(pcm)
		}
		select {
		case <-closed:
			log.Fatal("Server ended the session while streaming")
		case <-ticker.C:
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, audio.PCM16Bytes(pcm[off:end])); err != nil {
			log.Fatalf("Failed to send chunk: %v", err)
		}
		chunkNum++
		if chunkNum%10 == 0 {
			log.Printf("Sent chunk %d (offset=%dms)", chunkNum, chunkNum*chunkIntervalMs)
		}
	}
	log.Printf("Finished streaming: %d chunks in %v", chunkNum, time.Since(startTime))

	if *flush {
		if err := conn.WriteJSON(map[string]string{"type": "flush"}); err != nil {
			log.Fatalf("Failed to flush: %v", err)
		}
	}

	log.Println("Ending track, waiting for the session to close...")
	if err := conn.WriteJSON(map[string]string{"type": "end"}); err != nil {
		log.Fatalf("Failed to end track: %v", err)
	}
	select {
	case <-closed:
		log.Printf("Session closed: sessionId=%s", r.SessionID)
	case <-time.After(30 * time.Second):
		log.Println("Timed out waiting for the session to close")
	}
}

// Package main runs a demo WebSocket client against a local walkerd: it files
// a pickup request, cancels it and prints every frame it receives.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"wastelink/internal/walker"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8888"
	}
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/ws"}
	hdr := http.Header{}
	hdr.Set("X-User-Id", "res_001")
	hdr.Set("X-Role", "resident")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	send := func(id, typ string, payload any) {
		pl, _ := json.Marshal(payload)
		if err := c.WriteJSON(walker.Frame{Type: typ, ID: id, Payload: pl}); err != nil {
			log.Fatal(err)
		}
	}
	recv := func() walker.Frame {
		var f walker.Frame
		if err := c.ReadJSON(&f); err != nil {
			log.Fatal("read:", err)
		}
		log.Printf("WS <- %s %s: %s", f.Type, f.ID, string(f.Payload))
		return f
	}

	send("1", "spawn", walker.SpawnPayload{Name: "create_waste_request", Ctx: map[string]any{"wasteType": "plastic", "volume": "medium"}})
	recv()

	send("2", "create_node", walker.NodePayload{Kind: "waste_request", Data: map[string]any{
		"wasteType": "plastic",
		"volume":    "medium",
		"status":    "pending",
		"createdAt": time.Now().UTC().Format(time.RFC3339Nano),
	}})
	var created struct {
		ID string `json:"id"`
	}
	if f := recv(); f.Type == "result" {
		_ = json.Unmarshal(f.Payload, &created)
	}
	if created.ID == "" {
		log.Fatal("no request created")
	}

	send("3", "spawn", walker.SpawnPayload{Name: "update_request_status", Ctx: map[string]any{
		"requestId": created.ID,
		"newStatus": "cancelled",
		"reason":    "demo",
	}})
	recv()

	send("4", "spawn", walker.SpawnPayload{Name: "get_waste_requests"})
	f := recv()
	fmt.Println(string(f.Payload))
}

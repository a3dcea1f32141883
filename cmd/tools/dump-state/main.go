package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
)

// dump-state fetches the running engine's /system/state snapshot and
// prints it to stdout, for operators who want the current in-memory
// picture without going through a websocket client.
func main() {
	adminURL := os.Getenv("BRIDGE_ADMIN_URL")
	if adminURL == "" {
		adminURL = "http://localhost:8080"
	}
	token := os.Getenv("BRIDGE_ADMIN_TOKEN")
	if token == "" {
		log.Fatal("BRIDGE_ADMIN_TOKEN is required")
	}

	req, err := http.NewRequest(http.MethodGet, adminURL+"/system/state", nil)
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("admin server returned %d: %s", resp.StatusCode, body)
	}

	fmt.Println(string(body))
}

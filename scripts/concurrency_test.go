//go:build ignore
// +build ignore

// Manual concurrency stress test for the checkout endpoint.
//
// Usage:
//
//	go run ./scripts/concurrency_test.go <isbn> <user1_id> [user2_id ...]
//
// Or via environment variables:
//
//	ISBN=<isbn> USER_IDS=<id1>,<id2>,... go run ./scripts/concurrency_test.go
//
// What it does:
//  1. Fires N goroutines (one per user) all attempting to check out the same
//     ISBN simultaneously.
//  2. Tallies successes vs. "book is not available" rejections.
//  3. Because there is exactly one copy per ISBN, the run is correct iff
//     exactly one request succeeded.
//
// Prerequisites: server running, the ISBN available, the user ids registered.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultServerAddr = "http://localhost:8080"

type checkoutResult struct {
	UserID     string
	StatusCode int
	Message    string
	Err        error
}

func main() {
	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}

	isbn := os.Getenv("ISBN")
	userIDsEnv := os.Getenv("USER_IDS")

	var userIDs []string
	if userIDsEnv != "" {
		userIDs = strings.Split(userIDsEnv, ",")
	}

	// Support positional args: script <isbn> [user_ids...]
	args := os.Args[1:]
	if len(args) >= 1 {
		isbn = args[0]
	}
	if len(args) >= 2 {
		userIDs = args[1:]
	}

	if isbn == "" {
		log.Fatal("Usage: ISBN=<isbn> USER_IDS=<id1,id2,...> go run ./scripts/concurrency_test.go\n" +
			"  or: go run ./scripts/concurrency_test.go <isbn> <user1_id> [user2_id ...]")
	}
	if len(userIDs) == 0 {
		log.Fatal("At least one user ID must be provided via USER_IDS env or positional args")
	}

	fmt.Printf("=== Library Checkout Concurrency Test ===\n")
	fmt.Printf("Server : %s\n", serverAddr)
	fmt.Printf("ISBN   : %s\n", isbn)
	fmt.Printf("Users  : %d\n\n", len(userIDs))

	results := make([]checkoutResult, len(userIDs))
	var wg sync.WaitGroup

	// Fire all goroutines simultaneously using a barrier.
	start := make(chan struct{})

	for i, uid := range userIDs {
		wg.Add(1)
		go func(idx int, userID string) {
			defer wg.Done()
			<-start
			results[idx] = attemptCheckout(serverAddr, isbn, strings.TrimSpace(userID))
		}(i, uid)
	}

	fmt.Println("Firing all requests simultaneously...")
	close(start)

	wg.Wait()
	fmt.Println("All requests completed.")
	fmt.Println()

	var succeeded, rejected, failures int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] user=%-10s err=%v\n", r.UserID, r.Err)
		case r.StatusCode == http.StatusOK:
			succeeded++
			fmt.Printf("  [OK  ] user=%-10s status=%d %s\n", r.UserID, r.StatusCode, r.Message)
		case r.StatusCode == http.StatusBadRequest:
			rejected++
			fmt.Printf("  [BUSY] user=%-10s status=%d %s\n", r.UserID, r.StatusCode, r.Message)
		default:
			failures++
			fmt.Printf("  [FAIL] user=%-10s status=%d unexpected response\n", r.UserID, r.StatusCode)
		}
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Succeeded : %d\n", succeeded)
	fmt.Printf("Rejected  : %d\n", rejected)
	fmt.Printf("Failures  : %d\n", failures)
	fmt.Printf("Total     : %d\n\n", len(userIDs))

	fmt.Println("--- Invariant Check ---")
	fmt.Println("One inventory slot per ISBN: the state-guarded availability update")
	fmt.Println("must let exactly one concurrent checkout through.")
	if succeeded != 1 {
		fmt.Printf("\n[FAIL] expected exactly 1 successful checkout, got %d\n", succeeded)
		os.Exit(1)
	}
	if failures > 0 {
		fmt.Printf("\n[WARNING] %d request(s) failed — check server logs for details.\n", failures)
		os.Exit(1)
	}
	fmt.Println("\n[PASS] exactly one checkout succeeded.")
}

// attemptCheckout sends POST /checkout for the given user/ISBN pair and
// parses the JSON response message.
func attemptCheckout(serverAddr, isbn, userID string) checkoutResult {
	url := serverAddr + "/checkout"
	body := fmt.Sprintf(`{"userId":%s,"isbn":%s}`, userID, isbn)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		return checkoutResult{UserID: userID, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return checkoutResult{UserID: userID, StatusCode: resp.StatusCode, Err: fmt.Errorf("bad JSON: %s", raw)}
	}

	msg, _ := parsed["message"].(string)
	if msg == "" {
		msg, _ = parsed["error"].(string)
	}
	return checkoutResult{
		UserID:     userID,
		StatusCode: resp.StatusCode,
		Message:    msg,
	}
}

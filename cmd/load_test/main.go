package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"phrasehunt/internal/logger"
)

type Config struct {
	BaseURL     string `env:"LOADTEST_BASE_URL" envDefault:"http://localhost:8080"`
	Buyers      int    `env:"LOADTEST_BUYERS" envDefault:"50"`
	Solvers     int    `env:"LOADTEST_SOLVERS" envDefault:"10"`
	Sentence    string `env:"LOADTEST_SENTENCE" envDefault:"a red fox jumps over the lazy dog"`
	PrizeAmount int    `env:"LOADTEST_PRIZE" envDefault:"0"`
}

type LoadTestResult struct {
	Phase              string
	TotalRequests      int64
	SuccessfulRequests int64
	RejectedRequests   int64
	FailedRequests     int64
	TotalDuration      time.Duration
	AverageResponse    time.Duration
	MaxResponse        time.Duration
	RequestsPerSecond  float64
	Violations         []string
}

type RequestResult struct {
	UserID     string
	StatusCode int
	Code       string
	Body       map[string]any
	Duration   time.Duration
	Err        error
}

var client = &http.Client{Timeout: 30 * time.Second}

func main() {
	log := logger.New("phrasehunt-loadtest", "info")

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.WithError(err).Fatal("Failed to parse configuration")
	}
	if len(os.Args) > 1 && os.Args[1] == "quick" {
		cfg.Buyers = 10
		cfg.Solvers = 3
		log.Info("Quick test mode")
	}

	run := uuid.NewString()[:8]
	creator := "loadtest_creator_" + run
	challengeID, err := createChallenge(cfg, creator)
	if err != nil {
		log.WithError(err).Fatal("Failed to create challenge")
	}
	log.WithFields(logrus.Fields{"challenge_id": challengeID, "buyers": cfg.Buyers}).Info("Challenge created")

	words := strings.Fields(cfg.Sentence)
	var results []LoadTestResult
	for i := range words {
		results = append(results, purchaseContention(cfg, run, challengeID, i))
	}
	results = append(results, solveContention(cfg, run, challengeID, words))

	failed := false
	for _, r := range results {
		printResults(r)
		if len(r.Violations) > 0 {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

// purchaseContention has every buyer race for one word. Exactly one must win.
func purchaseContention(cfg Config, run, challengeID string, wordIndex int) LoadTestResult {
	users := make([]string, cfg.Buyers)
	for i := range users {
		users[i] = fmt.Sprintf("loadtest_buyer_%s_%d", run, i+1)
	}

	result := fanOut(fmt.Sprintf("purchase word %d", wordIndex), users, func(userID string) RequestResult {
		return post(cfg.BaseURL+"/api/challenges/"+challengeID+"/purchase", userID, map[string]any{"wordIndex": wordIndex})
	}, "ALREADY_PURCHASED")

	if result.SuccessfulRequests != 1 {
		result.Violations = append(result.Violations,
			fmt.Sprintf("expected exactly one purchase of word %d, got %d", wordIndex, result.SuccessfulRequests))
	}
	return result
}

// solveContention has every solver submit the full sentence at once. Exactly
// one response may carry a reward.
func solveContention(cfg Config, run, challengeID string, words []string) LoadTestResult {
	users := make([]string, cfg.Solvers)
	for i := range users {
		users[i] = fmt.Sprintf("loadtest_solver_%s_%d", run, i+1)
	}

	var winners int64
	result := fanOut("solve", users, func(userID string) RequestResult {
		res := post(cfg.BaseURL+"/api/challenges/"+challengeID+"/guess", userID, map[string]any{
			"guess": strings.Join(words, " "),
		})
		if reward, ok := res.Body["reward"].(float64); ok && reward > 0 {
			atomic.AddInt64(&winners, 1)
		}
		return res
	}, "")

	if cfg.PrizeAmount > 0 && winners != 1 {
		result.Violations = append(result.Violations, fmt.Sprintf("expected exactly one paid solver, got %d", winners))
	}
	return result
}

func fanOut(phase string, users []string, call func(userID string) RequestResult, rejectCode string) LoadTestResult {
	var (
		successful, rejected, failed int64
		totalDuration, maxDuration   int64
		mu                           sync.Mutex
		wg                           sync.WaitGroup
	)

	start := make(chan struct{})
	startTime := time.Now()
	for _, userID := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			<-start
			res := call(userID)

			switch {
			case res.Err == nil && res.StatusCode >= 200 && res.StatusCode < 300:
				atomic.AddInt64(&successful, 1)
			case rejectCode != "" && res.Code == rejectCode:
				atomic.AddInt64(&rejected, 1)
			default:
				atomic.AddInt64(&failed, 1)
			}

			d := int64(res.Duration)
			atomic.AddInt64(&totalDuration, d)
			mu.Lock()
			if d > maxDuration {
				maxDuration = d
			}
			mu.Unlock()
		}(userID)
	}
	close(start)
	wg.Wait()
	elapsed := time.Since(startTime)

	total := int64(len(users))
	avg := time.Duration(0)
	if total > 0 {
		avg = time.Duration(totalDuration / total)
	}
	return LoadTestResult{
		Phase:              phase,
		TotalRequests:      total,
		SuccessfulRequests: successful,
		RejectedRequests:   rejected,
		FailedRequests:     failed,
		TotalDuration:      elapsed,
		AverageResponse:    avg,
		MaxResponse:        time.Duration(maxDuration),
		RequestsPerSecond:  float64(total) / elapsed.Seconds(),
	}
}

func createChallenge(cfg Config, creator string) (string, error) {
	res := post(cfg.BaseURL+"/api/challenges", creator, map[string]any{
		"sentence":    cfg.Sentence,
		"prizeAmount": cfg.PrizeAmount,
	})
	if res.Err != nil {
		return "", res.Err
	}
	if res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status %d: %v", res.StatusCode, res.Body)
	}
	id, _ := res.Body["id"].(string)
	if id == "" {
		return "", fmt.Errorf("response has no challenge id")
	}
	return id, nil
}

func post(url, userID string, payload any) RequestResult {
	startTime := time.Now()
	result := RequestResult{UserID: userID}

	body, err := json.Marshal(payload)
	if err != nil {
		result.Err = err
		return result
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		result.Err = err
		return result
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", userID)

	resp, err := client.Do(req)
	result.Duration = time.Since(startTime)
	if err != nil {
		result.Err = err
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	if err := json.NewDecoder(resp.Body).Decode(&result.Body); err != nil {
		result.Err = err
		return result
	}
	result.Code, _ = result.Body["code"].(string)
	return result
}

func printResults(result LoadTestResult) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Printf("LOAD TEST RESULTS: %s\n", result.Phase)
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Total Requests:        %d\n", result.TotalRequests)
	fmt.Printf("Successful Requests:   %d\n", result.SuccessfulRequests)
	fmt.Printf("Rejected Requests:     %d\n", result.RejectedRequests)
	fmt.Printf("Failed Requests:       %d\n", result.FailedRequests)
	fmt.Printf("Total Duration:        %v\n", result.TotalDuration)
	fmt.Printf("Requests Per Second:   %.2f\n", result.RequestsPerSecond)
	fmt.Printf("Average Response Time: %v\n", result.AverageResponse)
	fmt.Printf("Max Response Time:     %v\n", result.MaxResponse)
	for _, v := range result.Violations {
		fmt.Printf("VIOLATION:             %s\n", v)
	}
}

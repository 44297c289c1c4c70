// Command smoke probes a running API instance and reports per-endpoint
// status. Intended for post-deploy checks, not CI.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

type target struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Expect   int    `json:"expect"`
	Critical bool   `json:"critical"`
}

type config struct {
	Targets []target `json:"targets"`
}

func main() {
	var (
		baseURL     string
		targetsPath string
		timeout     time.Duration
	)

	flag.StringVar(&baseURL, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "smoke", "targets.json"), "Path to JSON targets file")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	criticalFailures := 0

	for _, t := range targets {
		req, err := http.NewRequest(t.Method, baseURL+t.Path, nil)
		if err != nil {
			log.Fatalf("bad target %s %s: %v", t.Method, t.Path, err)
		}

		start := time.Now()
		resp, err := client.Do(req)
		elapsed := time.Since(start)
		if err != nil {
			fmt.Printf("FAIL %-6s %-40s error=%v\n", t.Method, t.Path, err)
			if t.Critical {
				criticalFailures++
			}
			continue
		}
		resp.Body.Close()

		status := "OK  "
		if resp.StatusCode != t.Expect {
			status = "FAIL"
			if t.Critical {
				criticalFailures++
			}
		}
		fmt.Printf("%s %-6s %-40s got=%d want=%d in %s\n", status, t.Method, t.Path, resp.StatusCode, t.Expect, elapsed.Round(time.Millisecond))
	}

	if criticalFailures > 0 {
		fmt.Printf("%d critical endpoint(s) failing\n", criticalFailures)
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return cfg.Targets, nil
}

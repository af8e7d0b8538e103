// Command ingestctl triggers a folder ingestion against a running server
// and polls it to completion, printing the final task as JSON. Grounded on
// the teacher's cmd/embedctl/main.go: flag-parsed one-shot CLI, no config
// package dependency beyond what the flags need, one JSON value to stdout.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

type ingestFolderRequest struct {
	FolderPath string `json:"folder_path"`
	ProjectID  string `json:"project_id"`
}

type ingestTaskAccepted struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

func main() {
	log.SetFlags(0)
	var (
		server    = flag.String("server", "http://localhost:8080", "knowledgebase server base URL")
		folder    = flag.String("folder", "", "folder path to ingest, as seen by the server; it must lie under the server's configured ingest root")
		projectID = flag.String("project-id", "", "project id to stamp onto ingested documents")
		token     = flag.String("token", "", "bearer token, if the server requires auth")
		poll      = flag.Duration("poll-interval", 2*time.Second, "how often to poll task status")
		timeout   = flag.Duration("timeout", 10*time.Minute, "give up waiting for the task after this long")
	)
	flag.Parse()

	if *folder == "" {
		log.Fatal("-folder is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := &http.Client{Timeout: 30 * time.Second}

	task, err := startTask(ctx, client, *server, *token, *folder, *projectID)
	if err != nil {
		log.Fatalf("start ingestion: %v", err)
	}
	fmt.Fprintf(os.Stderr, "task %s accepted, status=%s\n", task.TaskID, task.Status)

	final, err := awaitTask(ctx, client, *server, *token, task.TaskID, *poll)
	if err != nil {
		log.Fatalf("await task: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(final); err != nil {
		log.Fatalf("encode result: %v", err)
	}
}

func startTask(ctx context.Context, client *http.Client, server, token, folder, projectID string) (ingestTaskAccepted, error) {
	body, _ := json.Marshal(ingestFolderRequest{FolderPath: folder, ProjectID: projectID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/ingest/folder", bytes.NewReader(body))
	if err != nil {
		return ingestTaskAccepted{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	setAuth(req, token)

	resp, err := client.Do(req)
	if err != nil {
		return ingestTaskAccepted{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(resp.Body)
		return ingestTaskAccepted{}, fmt.Errorf("%s: %s", resp.Status, string(b))
	}

	var accepted ingestTaskAccepted
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		return ingestTaskAccepted{}, err
	}
	return accepted, nil
}

// awaitTask polls GET /ingest/tasks/{id} until the task leaves pending/running,
// or ctx is cancelled.
func awaitTask(ctx context.Context, client *http.Client, server, token, taskID string, interval time.Duration) (map[string]any, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		task, err := fetchTask(ctx, client, server, token, taskID)
		if err != nil {
			return nil, err
		}
		switch task["status"] {
		case "completed", "failed":
			return task, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func fetchTask(ctx context.Context, client *http.Client, server, token, taskID string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server+"/ingest/tasks/"+taskID, nil)
	if err != nil {
		return nil, err
	}
	setAuth(req, token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s: %s", resp.Status, string(b))
	}

	var task map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, err
	}
	return task, nil
}

func setAuth(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

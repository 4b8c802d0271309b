// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/datatypes"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

func getJSON(path string, out any) error {
	resp, err := httpClient.Get(serverURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %s: %s", resp.Status, string(body))
	}
	return json.Unmarshal(body, out)
}

func postJSON(path string, payload any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := httpClient.Post(serverURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %s: %s", resp.Status, string(body))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func printJSON(v any) {
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Failed to render response: %v", err)
	}
	fmt.Println(string(pretty))
}

func runPipelines(cmd *cobra.Command, args []string) {
	if len(args) == 1 {
		var p map[string]any
		if err := getJSON("/v1/pipelines/"+args[0], &p); err != nil {
			log.Fatalf("Failed to fetch pipeline: %v", err)
		}
		printJSON(p)
		return
	}

	var listing map[string]any
	if err := getJSON("/v1/pipelines", &listing); err != nil {
		log.Fatalf("Failed to list pipelines: %v", err)
	}
	printJSON(listing)
}

func runApprovals(cmd *cobra.Command, args []string) {
	var pending map[string]any
	if err := getJSON("/v1/approvals", &pending); err != nil {
		log.Fatalf("Failed to list approvals: %v", err)
	}
	printJSON(pending)
}

func runReview(cmd *cobra.Command, args []string) {
	if approve == reject {
		log.Fatal("Specify exactly one of --approve or --reject")
	}

	decision := datatypes.ReviewDecision{
		Approved: approve,
		Reviewer: reviewer,
	}
	if comment != "" {
		decision.Comments = []string{comment}
	}

	var result map[string]any
	if err := postJSON("/v1/pipelines/"+args[0]+"/review", decision, &result); err != nil {
		log.Fatalf("Failed to submit review: %v", err)
	}
	if approve {
		fmt.Println("Approved; pipeline resuming.")
	} else {
		fmt.Println("Rejected; pipeline cancelled.")
	}
}

func runStatus(cmd *cobra.Command, args []string) {
	var stats map[string]any
	if err := getJSON("/v1/statistics", &stats); err != nil {
		log.Fatalf("Failed to fetch statistics: %v", err)
	}
	printJSON(stats)
}

func runHistory(cmd *cobra.Command, args []string) {
	var records map[string]any
	if err := getJSON(fmt.Sprintf("/v1/history?limit=%d", limit), &records); err != nil {
		log.Fatalf("Failed to fetch history: %v", err)
	}
	printJSON(records)
}

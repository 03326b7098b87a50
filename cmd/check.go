package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/fundamentos/dashboard-edge/internal/homepage"
)

var (
	checkURL     string
	checkTimeout time.Duration
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Fetch the homepage payload through a running edge server and validate it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runCheck(cmd.Context(), cmd, checkURL, checkTimeout)
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkURL, "url", "http://localhost:3000", "base URL of the edge server")
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 10*time.Second, "request timeout")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(ctx context.Context, cmd *cobra.Command, rawURL string, timeout time.Duration) error {
	base, err := url.Parse(rawURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("invalid --url %q", rawURL)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := homepage.Fetch(ctx, &http.Client{}, base)
	if err != nil {
		return err
	}

	cmd.Printf("ok: %d top cards, %d changes, generated at %s (stale=%t)\n",
		len(payload.TopCards), len(payload.WhatChangedToday), payload.Meta.GeneratedAt, payload.Meta.Stale)
	return nil
}

// Stubapi is a stand-in for the dashboard API used when running the edge
// server locally. It serves /health, a sample homepage payload and echoes
// every other /api path so forwarding can be checked by eye.
//
// Usage:
//
//	go run ./scripts/stubapi -port 8000
//	BACKEND_URL=localhost:8000 go run ./cmd
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/fundamentos/dashboard-edge/internal/homepage"
)

func ptr(v float64) *float64 { return &v }

func signal(key, label string, value float64, day string) homepage.SignalItem {
	return homepage.SignalItem{
		Key:        key,
		Label:      label,
		Value:      ptr(value),
		Unit:       "%",
		LastUpdate: day + "T00:00:00Z",
		Source:     "stub",
	}
}

func samplePayload(now time.Time) homepage.Payload {
	day := now.UTC().Format(time.DateOnly)
	return homepage.Payload{
		TopCards: []homepage.TopCard{
			{Key: "selic", Label: "Selic", Value: ptr(10.5), Unit: "%", Change1D: ptr(0), Change1DUnit: "p.p.", LastUpdate: day + "T00:00:00Z"},
			{Key: "usdbrl", Label: "Dólar", Value: ptr(5.12), Unit: "BRL", Change1D: ptr(-0.3), Change1DUnit: "%", LastUpdate: day + "T00:00:00Z"},
		},
		WhatChangedToday: []homepage.WhatChangedItem{
			{Key: "ibov", Label: "Ibovespa", Value: ptr(-0.4), Unit: "%", LastUpdate: day + "T00:00:00Z", PeriodLabel: "1d"},
		},
		Signals: homepage.Signals{
			RealRateApprox:           signal("real_rate_approx", "Juro real (aprox.)", 6.1, day),
			InflationExpectations12M: signal("inflation_expectations_12m", "Expectativa IPCA 12m", 3.8, day),
			IbovVol20DAnnualized:     signal("ibov_vol_20d_annualized", "Vol. Ibovespa 20d", 14.2, day),
			USDBRLVol20DAnnualized:   signal("usdbrl_vol_20d_annualized", "Vol. USD/BRL 20d", 11.0, day),
			UnemploymentLatest:       signal("unemployment_latest", "Desemprego", 7.9, day),
			GDPLatest:                signal("gdp_latest", "PIB", 0.8, day),
		},
		Meta: homepage.Meta{
			GeneratedAt: now.UTC().Format(time.RFC3339),
			Sources:     map[string]any{"stub": true},
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func main() {
	port := flag.Int("port", 8000, "port to listen on")
	delay := flag.Duration("delay", 0, "artificial latency added to every /api response")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	mux := http.NewServeMux()

	mux.HandleFunc("GET "+homepage.Path, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(*delay)
		writeJSON(w, http.StatusOK, samplePayload(time.Now()))
	})

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(*delay)
		writeJSON(w, http.StatusNotFound, map[string]any{
			"detail":     "not found",
			"path":       r.URL.RequestURI(),
			"host":       r.Host,
			"request_id": uuid.NewString(),
		})
	})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	logged := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Info("request", slog.String("method", r.Method), slog.String("path", r.URL.RequestURI()), slog.String("host", r.Host))
		mux.ServeHTTP(w, r)
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Info("starting stub api", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, logged); err != nil {
		log.Error("server failed", slog.Any("err", err))
		os.Exit(1)
	}
}

package homepage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Path is where the API serves the homepage payload.
const Path = "/api/homepage/v1"

var ErrUnexpectedStatus = errors.New("unexpected status")

type TopCard struct {
	Key          string   `json:"key"`
	Label        string   `json:"label"`
	Value        *float64 `json:"value"`
	Unit         string   `json:"unit"`
	Change1D     *float64 `json:"change_1d"`
	Change1DUnit string   `json:"change_1d_unit"`
	LastUpdate   string   `json:"last_update"`
}

type WhatChangedItem struct {
	Key         string         `json:"key"`
	Label       string         `json:"label"`
	Value       *float64       `json:"value"`
	Unit        string         `json:"unit"`
	Extra       map[string]any `json:"extra,omitempty"`
	LastUpdate  string         `json:"last_update"`
	PeriodLabel string         `json:"period_label"`
}

type SignalItem struct {
	Key        string         `json:"key"`
	Label      string         `json:"label"`
	Value      *float64       `json:"value"`
	Unit       string         `json:"unit"`
	LastUpdate string         `json:"last_update"`
	Source     string         `json:"source,omitempty"`
	Method     string         `json:"method,omitempty"`
	Components map[string]any `json:"components,omitempty"`
	Cache      map[string]any `json:"cache,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Signals has one entry per fixed indicator.
type Signals struct {
	RealRateApprox           SignalItem `json:"real_rate_approx"`
	InflationExpectations12M SignalItem `json:"inflation_expectations_12m"`
	IbovVol20DAnnualized     SignalItem `json:"ibov_vol_20d_annualized"`
	USDBRLVol20DAnnualized   SignalItem `json:"usdbrl_vol_20d_annualized"`
	UnemploymentLatest       SignalItem `json:"unemployment_latest"`
	GDPLatest                SignalItem `json:"gdp_latest"`
}

type Meta struct {
	GeneratedAt string         `json:"generated_at"`
	Stale       bool           `json:"stale"`
	Sources     map[string]any `json:"sources"`
}

// Payload is the homepage contract the dashboard UI parses. The edge server
// never decodes proxied bodies; this type backs the smoke check only.
type Payload struct {
	TopCards         []TopCard         `json:"top_cards"`
	WhatChangedToday []WhatChangedItem `json:"what_changed_today"`
	Signals          Signals           `json:"signals"`
	Meta             Meta              `json:"meta"`
}

func (p Payload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.TopCards, validation.NotNil),
		validation.Field(&p.WhatChangedToday, validation.NotNil),
		validation.Field(&p.Signals),
		validation.Field(&p.Meta),
	)
}

func (c TopCard) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Key, validation.Required),
	)
}

func (i WhatChangedItem) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.Key, validation.Required),
	)
}

func (s SignalItem) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Key, validation.Required),
	)
}

func (s Signals) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.RealRateApprox),
		validation.Field(&s.InflationExpectations12M),
		validation.Field(&s.IbovVol20DAnnualized),
		validation.Field(&s.USDBRLVol20DAnnualized),
		validation.Field(&s.UnemploymentLatest),
		validation.Field(&s.GDPLatest),
	)
}

// Key and generated_at stand in for presence: decoding cannot tell a missing
// field from an empty one, and every item the API emits carries both.
func (m Meta) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.GeneratedAt, validation.Required),
		validation.Field(&m.Sources, validation.NotNil),
	)
}

// Decode reads and validates a payload.
func Decode(r io.Reader) (*Payload, error) {
	var p Payload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode homepage payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid homepage payload: %w", err)
	}
	return &p, nil
}

// Fetch GETs the homepage payload from base, which may be the edge server or
// the API origin itself.
func Fetch(ctx context.Context, client *http.Client, base *url.URL) (*Payload, error) {
	target := base.ResolveReference(&url.URL{Path: Path})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %w: %d", target, ErrUnexpectedStatus, res.StatusCode)
	}

	return Decode(res.Body)
}

package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"alphapilot/internal/logger"
	"alphapilot/internal/pkg/circuit"
	"alphapilot/internal/types"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// ValidationError reports a malformed or out-of-range prediction field. It
// is raised at ingestion and never forwarded downstream.
type ValidationError struct {
	Symbol string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("prediction validation failed for %s: field %s %s", e.Symbol, e.Field, e.Reason)
}

// PredictionClient polls the external ML/sentiment pipeline for new
// prediction records. Payloads are tolerant-parsed with gjson and then
// range-checked; a record that fails validation is dropped and logged with
// the offending field, the rest of the batch survives.
type PredictionClient struct {
	http    *resty.Client
	breaker *circuit.Breaker
}

func NewPredictionClient(baseURL string, timeout time.Duration, breaker *circuit.Breaker) *PredictionClient {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	return &PredictionClient{http: client, breaker: breaker}
}

// Since fetches prediction records produced after the given time. Invalid
// records are skipped; the returned slice holds only validated records.
func (c *PredictionClient) Since(ctx context.Context, since time.Time) ([]types.PredictionRecord, error) {
	if c.breaker != nil && !c.breaker.Allow() {
		return nil, circuit.ErrOpen
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("since", since.UTC().Format(time.RFC3339)).
		Get("/predictions")
	if err != nil {
		c.recordOutcome(err)
		return nil, fmt.Errorf("prediction feed: %w", err)
	}
	if resp.StatusCode() != 200 {
		err := fmt.Errorf("prediction feed: unexpected status %d", resp.StatusCode())
		c.recordOutcome(err)
		return nil, err
	}
	c.recordOutcome(nil)
	return parseBatch(resp.String()), nil
}

func (c *PredictionClient) recordOutcome(err error) {
	if c.breaker == nil {
		return
	}
	if err != nil {
		c.breaker.RecordFailure()
	} else {
		c.breaker.RecordSuccess()
	}
}

func parseBatch(raw string) []types.PredictionRecord {
	if !gjson.Valid(raw) {
		logger.Warnf("prediction feed: payload is not valid JSON, dropping batch")
		return nil
	}
	parsed := gjson.Parse(raw)
	items := parsed
	if parsed.IsObject() {
		items = parsed.Get("predictions")
	}
	if !items.IsArray() {
		logger.Warnf("prediction feed: payload has no prediction array, dropping batch")
		return nil
	}

	var out []types.PredictionRecord
	items.ForEach(func(_, item gjson.Result) bool {
		rec, err := parseRecord(item)
		if err != nil {
			logger.Warnf("%v", err)
			return true
		}
		out = append(out, rec)
		return true
	})
	return out
}

func parseRecord(item gjson.Result) (types.PredictionRecord, error) {
	symbol := strings.ToUpper(strings.TrimSpace(item.Get("symbol").String()))
	if symbol == "" {
		return types.PredictionRecord{}, &ValidationError{Symbol: "?", Field: "symbol", Reason: "is empty"}
	}

	rec := types.PredictionRecord{
		Symbol:             symbol,
		RawConfidence:      item.Get("raw_confidence").Float(),
		SentimentScore:     item.Get("sentiment_score").Float(),
		TechnicalScore:     item.Get("technical_score").Float(),
		VolumeFactor:       item.Get("volume_factor").Float(),
		RiskAdjustment:     item.Get("risk_adjustment").Float(),
		CurrentPrice:       item.Get("current_price").Float(),
		DirectionByHorizon: make(map[types.Horizon]bool, len(types.Horizons)),
		MagnitudeByHorizon: make(map[types.Horizon]float64, len(types.Horizons)),
	}
	if ts := item.Get("timestamp"); ts.Exists() {
		if t, err := time.Parse(time.RFC3339, ts.String()); err == nil {
			rec.Timestamp = t
		}
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	for _, h := range types.Horizons {
		rec.DirectionByHorizon[h] = item.Get("direction." + string(h)).Bool()
		rec.MagnitudeByHorizon[h] = item.Get("magnitude." + string(h)).Float()
	}

	if err := ValidateRecord(rec); err != nil {
		return types.PredictionRecord{}, err
	}
	return rec, nil
}

// ValidateRecord enforces the ingestion ranges. Out-of-range values are
// rejected, never clamped.
func ValidateRecord(rec types.PredictionRecord) error {
	switch {
	case rec.RawConfidence < 0 || rec.RawConfidence > 1:
		return &ValidationError{Symbol: rec.Symbol, Field: "raw_confidence",
			Reason: fmt.Sprintf("%.4f outside [0, 1]", rec.RawConfidence)}
	case rec.SentimentScore < -1 || rec.SentimentScore > 1:
		return &ValidationError{Symbol: rec.Symbol, Field: "sentiment_score",
			Reason: fmt.Sprintf("%.4f outside [-1, 1]", rec.SentimentScore)}
	case rec.TechnicalScore < 0 || rec.TechnicalScore > 100:
		return &ValidationError{Symbol: rec.Symbol, Field: "technical_score",
			Reason: fmt.Sprintf("%.2f outside [0, 100]", rec.TechnicalScore)}
	case rec.VolumeFactor < 0 || rec.VolumeFactor > 1:
		return &ValidationError{Symbol: rec.Symbol, Field: "volume_factor",
			Reason: fmt.Sprintf("%.4f outside [0, 1]", rec.VolumeFactor)}
	case rec.RiskAdjustment < 0 || rec.RiskAdjustment > 1:
		return &ValidationError{Symbol: rec.Symbol, Field: "risk_adjustment",
			Reason: fmt.Sprintf("%.4f outside [0, 1]", rec.RiskAdjustment)}
	case rec.CurrentPrice <= 0:
		return &ValidationError{Symbol: rec.Symbol, Field: "current_price",
			Reason: fmt.Sprintf("%.4f is not positive", rec.CurrentPrice)}
	}
	return nil
}

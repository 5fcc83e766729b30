package json

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	"github.com/olusolaa/cloud-reconciler/internal/core/ports"
	apperrors "github.com/olusolaa/cloud-reconciler/internal/errors"
)

const ReporterTypeJSON = "json"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Config struct {
	Pretty bool `mapstructure:"pretty" yaml:"pretty"`
}

type Reporter struct {
	config Config
	writer io.Writer
	logger ports.Logger
}

func NewReporter(cfg Config, logger ports.Logger) (*Reporter, error) {
	return NewReporterTo(cfg, logger, os.Stdout), nil
}

func NewReporterTo(cfg Config, logger ports.Logger, w io.Writer) *Reporter {
	return &Reporter{
		config: cfg,
		writer: w,
		logger: logger,
	}
}

type jsonReport struct {
	Summary  jsonSummary       `json:"summary"`
	Outcomes []jsonOutcomeItem `json:"outcomes"`
}

type jsonSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	TimedOut  int `json:"timed_out"`
	Errors    int `json:"errors"`
}

type jsonOutcomeItem struct {
	ResourceKey  string `json:"resource_key"`
	Action       string `json:"action"`
	Desired      string `json:"desired"`
	State        string `json:"state"`
	Succeeded    bool   `json:"succeeded"`
	Attempts     int    `json:"attempts"`
	ElapsedMs    int64  `json:"elapsed_ms"`
	Observed     bool   `json:"observed,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func (r *Reporter) Report(ctx context.Context, outcomes []domain.Outcome) error {
	report := jsonReport{
		Summary:  jsonSummary{Total: len(outcomes)},
		Outcomes: make([]jsonOutcomeItem, 0, len(outcomes)),
	}

	for _, o := range outcomes {
		if ctx.Err() != nil {
			r.logger.Warnf(ctx, "JSON report generation cancelled.")
			return ctx.Err()
		}

		item := jsonOutcomeItem{
			ResourceKey: o.Request.Key.String(),
			Action:      string(o.Request.Action.Verb),
			Desired:     o.Request.Desired.String(),
			State:       o.State.String(),
			Succeeded:   o.Succeeded(),
			Attempts:    o.Attempts,
			ElapsedMs:   o.Elapsed.Milliseconds(),
			Observed:    o.Observed,
		}

		var rerr *domain.ReconcileError
		switch {
		case item.Succeeded:
			report.Summary.Succeeded++
		case errors.As(o.Err, &rerr) && rerr.Kind == domain.ErrTimeout:
			report.Summary.TimedOut++
		case errors.As(o.Err, &rerr) && rerr.Kind == domain.ErrResourceFailed, o.Err == nil:
			report.Summary.Failed++
		default:
			report.Summary.Errors++
		}

		if o.Err != nil {
			item.ErrorMessage = o.Err.Error()
			item.ErrorCode = string(errorCode(o.Err))
		}
		report.Outcomes = append(report.Outcomes, item)
	}

	encoder := json.NewEncoder(r.writer)
	if r.config.Pretty {
		encoder.SetIndent("", "  ")
	}

	if err := encoder.Encode(report); err != nil {
		r.logger.Errorf(ctx, err, "Failed to encode JSON report")
		return fmt.Errorf("failed to encode JSON report: %w", err)
	}

	r.logger.Debugf(ctx, "JSON report successfully generated.")
	return nil
}

func errorCode(err error) apperrors.Code {
	var coded interface{ Code() apperrors.Code }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return apperrors.GetCode(err)
}

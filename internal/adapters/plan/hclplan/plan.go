// Package hclplan reads reconciliation requests from HCL plan files:
//
//	request "web" {
//	  key           = "aws/instance/${var.instance_id}"
//	  action        = "start"
//	  timeout       = "5m"
//	  poll_interval = "5s"
//	}
//
// desired defaults to the state the action drives towards; an observe request
// must name it.
package hclplan

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	"github.com/olusolaa/cloud-reconciler/internal/core/ports"
	"github.com/olusolaa/cloud-reconciler/internal/errors"
)

// Defaults fill in timing a request block leaves out.
type Defaults struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

var planSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{{Type: "request", LabelNames: []string{"name"}}},
}

type requestBody struct {
	Key          string            `hcl:"key"`
	Desired      *string           `hcl:"desired,optional"`
	Action       *string           `hcl:"action,optional"`
	Args         map[string]string `hcl:"args,optional"`
	Timeout      *string           `hcl:"timeout,optional"`
	PollInterval *string           `hcl:"poll_interval,optional"`
}

var knownVerbs = map[domain.Verb]struct{}{
	domain.VerbObserve:   {},
	domain.VerbStart:     {},
	domain.VerbStop:      {},
	domain.VerbTerminate: {},
	domain.VerbAttach:    {},
	domain.VerbDetach:    {},
	domain.VerbCreate:    {},
	domain.VerbDelete:    {},
}

// ParseVars turns "name=value" pairs into plan variables.
func ParseVars(pairs []string) (map[string]string, error) {
	vars := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, errors.NewUserFacing(errors.CodeInvalidRequest,
				fmt.Sprintf("invalid variable %q", p), "Use --var name=value.")
		}
		vars[name] = value
	}
	return vars, nil
}

func ParseFile(ctx context.Context, path string, vars map[string]string, defaults Defaults, logger ports.Logger) ([]domain.ReconciliationRequest, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapUserFacing(err, errors.CodePlanParseError,
			fmt.Sprintf("failed to read plan file %s", path), "Check the path passed to -f.")
	}
	return Parse(ctx, src, path, vars, defaults, logger)
}

// Parse decodes src and returns its requests in file order. All problems are
// collected and reported together.
func Parse(ctx context.Context, src []byte, filename string, vars map[string]string, defaults Defaults, logger ports.Logger) ([]domain.ReconciliationRequest, error) {
	logger = logger.WithFields(map[string]any{"plan_file": filename})

	parser := hclparse.NewParser()
	var (
		file  *hcl.File
		diags hcl.Diagnostics
	)
	if strings.HasSuffix(filename, ".json") {
		file, diags = parser.ParseJSON(src, filename)
	} else {
		file, diags = parser.ParseHCL(src, filename)
	}
	if diags.HasErrors() {
		return nil, diagError(diags)
	}

	content, contentDiags := file.Body.Content(planSchema)
	diags = append(diags, contentDiags...)
	if diags.HasErrors() {
		return nil, diagError(diags)
	}

	evalCtx := evalContext(vars)
	seen := make(map[string]struct{}, len(content.Blocks))
	reqs := make([]domain.ReconciliationRequest, 0, len(content.Blocks))
	for _, block := range content.Blocks {
		name := block.Labels[0]
		if _, dup := seen[name]; dup {
			diags = diags.Append(&hcl.Diagnostic{Severity: hcl.DiagError, Summary: "Duplicate request",
				Detail: fmt.Sprintf("Request %q is defined more than once.", name), Subject: block.DefRange.Ptr()})
			continue
		}
		seen[name] = struct{}{}

		var body requestBody
		decodeDiags := gohcl.DecodeBody(block.Body, evalCtx, &body)
		diags = append(diags, decodeDiags...)
		if decodeDiags.HasErrors() {
			continue
		}
		req, reqDiags := body.toRequest(name, block.DefRange, defaults)
		diags = append(diags, reqDiags...)
		if !reqDiags.HasErrors() {
			reqs = append(reqs, req)
		}
	}
	if diags.HasErrors() {
		return nil, diagError(diags)
	}

	logger.Debugf(ctx, "Parsed %d requests", len(reqs))
	return reqs, nil
}

func evalContext(vars map[string]string) *hcl.EvalContext {
	ctx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"var": cty.EmptyObjectVal},
		Functions: planFunctions(),
	}
	if len(vars) == 0 {
		return ctx
	}
	values := make(map[string]cty.Value, len(vars))
	for name, v := range vars {
		values[name] = cty.StringVal(v)
	}
	ctx.Variables["var"] = cty.ObjectVal(values)
	return ctx
}

func (b requestBody) toRequest(name string, rng hcl.Range, defaults Defaults) (domain.ReconciliationRequest, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	invalid := func(summary, detail string) {
		diags = diags.Append(&hcl.Diagnostic{Severity: hcl.DiagError, Summary: summary,
			Detail: fmt.Sprintf("Request %q: %s", name, detail), Subject: rng.Ptr()})
	}

	key, err := domain.ParseResourceKey(b.Key)
	if err != nil {
		invalid("Invalid resource key", err.Error())
	}

	verb := domain.VerbObserve
	if b.Action != nil {
		verb = domain.Verb(strings.ToLower(strings.TrimSpace(*b.Action)))
		if _, ok := knownVerbs[verb]; !ok {
			invalid("Invalid action", fmt.Sprintf("unknown action %q; use one of %s", *b.Action, verbList()))
		}
	}

	var desired domain.ResourceState
	switch {
	case b.Desired != nil:
		desired, err = domain.ParseResourceState(*b.Desired)
		if err != nil {
			invalid("Invalid desired state", err.Error())
		}
	default:
		var ok bool
		if desired, ok = domain.DesiredStateFor(verb); !ok {
			invalid("Missing desired state", fmt.Sprintf("action %q needs an explicit desired state", verb))
		}
	}

	timeout := duration(b.Timeout, defaults.Timeout, "timeout", invalid)
	poll := duration(b.PollInterval, defaults.PollInterval, "poll_interval", invalid)

	if diags.HasErrors() {
		return domain.ReconciliationRequest{}, diags
	}
	req, err := domain.NewRequest(key, desired, domain.Action{Verb: verb, Args: b.Args}, timeout, poll)
	if err != nil {
		invalid("Invalid request", err.Error())
	}
	return req, diags
}

func duration(raw *string, fallback time.Duration, name string, invalid func(string, string)) time.Duration {
	if raw == nil {
		return fallback
	}
	d, err := time.ParseDuration(*raw)
	if err != nil {
		invalid("Invalid duration", fmt.Sprintf("%s %q: %v", name, *raw, err))
		return 0
	}
	return d
}

func verbList() string {
	names := make([]string, 0, len(knownVerbs))
	for v := range knownVerbs {
		names = append(names, string(v))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func diagError(diags hcl.Diagnostics) error {
	return errors.NewUserFacing(errors.CodePlanParseError,
		fmt.Sprintf("plan has errors:\n%s", diags.Error()), "Fix the reported request blocks and retry.")
}

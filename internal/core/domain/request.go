package domain

import (
	"fmt"
	"maps"
	"time"
)

// Verb is the provider-side action requested before polling starts.
type Verb string

const (
	VerbObserve   Verb = "observe"
	VerbStart     Verb = "start"
	VerbStop      Verb = "stop"
	VerbTerminate Verb = "terminate"
	VerbAttach    Verb = "attach"
	VerbDetach    Verb = "detach"
	VerbCreate    Verb = "create"
	VerbDelete    Verb = "delete"
)

// Args keys understood by the bundled gateways.
const (
	ArgInstanceID     = "instance_id"
	ArgDevice         = "device"
	ArgTemplateBody   = "template_body"
	ArgTemplateURL    = "template_url"
	ArgSubnets        = "subnets"
	ArgSecurityGroups = "security_groups"
	ArgRegion         = "region"
	ArgImageID        = "image_id"
	ArgOS             = "os"
	ArgInstanceType   = "instance_type"
)

// Action is what the gateway is asked to do for a key.
type Action struct {
	Verb Verb
	Args map[string]string
}

func (a Action) Arg(name string) string {
	return a.Args[name]
}

// DesiredStateFor returns the state a verb drives a resource towards.
func DesiredStateFor(v Verb) (ResourceState, bool) {
	switch v {
	case VerbStart, VerbAttach, VerbCreate:
		return StateActive, true
	case VerbStop, VerbTerminate, VerbDetach, VerbDelete:
		return StateTerminalSuccess, true
	}
	return StateUnknown, false
}

// ReconciliationRequest is immutable once built by NewRequest; Args are copied
// and must not be mutated through the returned value.
type ReconciliationRequest struct {
	Key          ResourceKey
	Desired      ResourceState
	Action       Action
	Timeout      time.Duration
	PollInterval time.Duration
}

func NewRequest(key ResourceKey, desired ResourceState, action Action, timeout, pollInterval time.Duration) (ReconciliationRequest, error) {
	if action.Verb == "" {
		action.Verb = VerbObserve
	}
	req := ReconciliationRequest{
		Key:          key,
		Desired:      desired,
		Action:       Action{Verb: action.Verb, Args: maps.Clone(action.Args)},
		Timeout:      timeout,
		PollInterval: pollInterval,
	}
	if err := req.Validate(); err != nil {
		return ReconciliationRequest{}, err
	}
	return req, nil
}

func (r ReconciliationRequest) Validate() error {
	if err := r.Key.Validate(); err != nil {
		return err
	}
	switch r.Desired {
	case StateActive, StateTerminalSuccess:
	default:
		return fmt.Errorf("request for %s: desired state must be %s or %s, got %s",
			r.Key, StateActive, StateTerminalSuccess, r.Desired)
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("request for %s: timeout must be positive, got %s", r.Key, r.Timeout)
	}
	if r.PollInterval <= 0 {
		return fmt.Errorf("request for %s: poll interval must be positive, got %s", r.Key, r.PollInterval)
	}
	if r.PollInterval > r.Timeout {
		return fmt.Errorf("request for %s: poll interval %s exceeds timeout %s", r.Key, r.PollInterval, r.Timeout)
	}
	return nil
}

func (r ReconciliationRequest) String() string {
	return fmt.Sprintf("%s %s -> %s", r.Action.Verb, r.Key, r.Desired)
}

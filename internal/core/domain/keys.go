package domain

import (
	"fmt"
	"strings"
)

const ProviderAWS = "aws"

// ResourceKey identifies one resource at one provider. It is a comparable value
// and is used directly as a map key.
type ResourceKey struct {
	Provider string
	Type     ResourceType
	ID       string
}

func NewResourceKey(provider string, rt ResourceType, id string) ResourceKey {
	return ResourceKey{Provider: provider, Type: rt, ID: id}
}

func (k ResourceKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Provider, k.Type, k.ID)
}

func (k ResourceKey) Validate() error {
	switch {
	case k.Provider == "":
		return fmt.Errorf("resource key %q: provider is empty", k)
	case k.Type == "":
		return fmt.Errorf("resource key %q: type is empty", k)
	case k.ID == "":
		return fmt.Errorf("resource key %q: id is empty", k)
	}
	return nil
}

// ParseResourceKey parses the "provider/type/id" form produced by String.
// The id may itself contain slashes (ARNs do).
func ParseResourceKey(s string) (ResourceKey, error) {
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 {
		return ResourceKey{}, fmt.Errorf("invalid resource key %q: expected provider/type/id", s)
	}
	k := ResourceKey{Provider: parts[0], Type: ResourceType(parts[1]), ID: parts[2]}
	if err := k.Validate(); err != nil {
		return ResourceKey{}, err
	}
	return k, nil
}

// TargetKey is the key of one instance registered in a target group. The ID
// is "<instance-id>@<target-group-arn>".
func TargetKey(instanceID, targetGroupARN string) ResourceKey {
	return NewResourceKey(ProviderAWS, TypeTarget, instanceID+"@"+targetGroupARN)
}

// ParseTargetID splits the ID of a TargetKey.
func ParseTargetID(id string) (instanceID, targetGroupARN string, err error) {
	instanceID, targetGroupARN, ok := strings.Cut(id, "@")
	if !ok || instanceID == "" || targetGroupARN == "" {
		return "", "", fmt.Errorf("invalid target %q: expected instance-id@target-group-arn", id)
	}
	return instanceID, targetGroupARN, nil
}

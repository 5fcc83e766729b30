package domain

// ResourceType names a class of cloud resource a gateway can drive.
// TypeTarget is the registration of one instance in a target group.
type ResourceType string

const (
	TypeInstance         ResourceType = "instance"
	TypeVolumeAttachment ResourceType = "volume-attachment"
	TypeStack            ResourceType = "stack"
	TypeLoadBalancer     ResourceType = "load-balancer"
	TypeBucket           ResourceType = "bucket"
	TypeTarget           ResourceType = "lb-target"
)

func (rt ResourceType) String() string {
	return string(rt)
}

// KnownTypes lists the resource types with a dedicated classification table.
func KnownTypes() []ResourceType {
	return []ResourceType{TypeInstance, TypeVolumeAttachment, TypeStack, TypeLoadBalancer, TypeBucket, TypeTarget}
}

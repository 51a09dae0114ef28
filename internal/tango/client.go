// Package tango is the remote-entity boundary: the interface the
// namespace core needs from the control-system database, and an HTTP
// implementation speaking to a Tango REST gateway.
package tango

import "context"

// Client performs the remote procedure calls the namespace layer
// mediates. It is a pure RPC boundary: implementations must not cache,
// retry, or reorder calls. Every method maps a transport failure to
// errors.KindRemoteUnavailable and a well-formed remote error to
// errors.KindRemoteRejected (errors.KindNotFound for absent entities).
type Client interface {
	// Physical tree enumerations.
	Servers(ctx context.Context) ([]string, error)
	Instances(ctx context.Context, server string) ([]string, error)
	Classes(ctx context.Context, server, instance string) ([]string, error)
	Devices(ctx context.Context, server, instance, class string) ([]string, error)

	// Logical tree enumerations.
	Domains(ctx context.Context) ([]string, error)
	Families(ctx context.Context, domain string) ([]string, error)
	Members(ctx context.Context, domain, family string) ([]string, error)

	// Device-level operations. device is the full "domain/family/member"
	// name.
	DeviceInfo(ctx context.Context, device string) (*DeviceInfo, error)
	Ping(ctx context.Context, device string) error

	Properties(ctx context.Context, device string) ([]string, error)
	Property(ctx context.Context, device, name string) ([]string, error)
	SetProperty(ctx context.Context, device, name string, lines []string) error
	DeleteProperty(ctx context.Context, device, name string) error

	Attributes(ctx context.Context, device string) ([]AttributeInfo, error)
	ReadAttribute(ctx context.Context, device, name string) (*AttributeValue, error)

	Commands(ctx context.Context, device string) ([]CommandInfo, error)
	// ExecuteCommand runs an argument-less command and returns the
	// textual rendering of its result, empty for void commands.
	ExecuteCommand(ctx context.Context, device, name string) (string, error)
}

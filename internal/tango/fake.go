package tango

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/tangofs/tangofs/pkg/errors"
)

// FakeDevice is one device's scripted state inside a FakeClient.
type FakeDevice struct {
	Info       DeviceInfo
	Alive      bool
	Properties map[string][]string
	Attributes []AttributeInfo
	Readings   map[string]AttributeValue // keyed by lowercased attribute name
	Commands   []CommandInfo
	CommandOut map[string]string // keyed by lowercased command name
}

// FakeClient is an in-memory Client for tests. State is mutated
// directly between calls to script remote-side changes; call counts
// and forced failures let tests assert traffic and error paths.
type FakeClient struct {
	mu sync.Mutex

	// Tree is the physical layout: server → instance → class → devices.
	Tree map[string]map[string]map[string][]string
	// Devs holds per-device state keyed by full device name.
	Devs map[string]*FakeDevice

	// Calls counts invocations per method name.
	Calls map[string]int
	// Fail forces a method to return the given error.
	Fail map[string]error
}

// NewFakeClient creates an empty fake.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Tree:  make(map[string]map[string]map[string][]string),
		Devs:  make(map[string]*FakeDevice),
		Calls: make(map[string]int),
		Fail:  make(map[string]error),
	}
}

// AddDevice registers a device in both views and returns its state for
// further scripting.
func (f *FakeClient) AddDevice(server, instance, class, device string) *FakeDevice {
	f.mu.Lock()
	defer f.mu.Unlock()

	instances, ok := f.Tree[server]
	if !ok {
		instances = make(map[string]map[string][]string)
		f.Tree[server] = instances
	}
	classes, ok := instances[instance]
	if !ok {
		classes = make(map[string][]string)
		instances[instance] = classes
	}
	classes[class] = append(classes[class], device)

	dev := &FakeDevice{
		Info: DeviceInfo{
			Name:      device,
			ClassName: class,
			Server:    server + "/" + instance,
			Exported:  true,
		},
		Alive:      true,
		Properties: make(map[string][]string),
		Readings:   make(map[string]AttributeValue),
		CommandOut: make(map[string]string),
	}
	f.Devs[device] = dev
	return dev
}

// CallCount returns how many times a method has been invoked.
func (f *FakeClient) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[method]
}

func (f *FakeClient) enter(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls[method]++
	return f.Fail[method]
}

func (f *FakeClient) device(op, name string) (*FakeDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dev, ok := f.Devs[name]
	if !ok {
		return nil, errors.E(errors.KindNotFound, op, name)
	}
	return dev, nil
}

func (f *FakeClient) Servers(ctx context.Context) ([]string, error) {
	if err := f.enter("Servers"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedKeys(f.Tree), nil
}

func (f *FakeClient) Instances(ctx context.Context, server string) ([]string, error) {
	if err := f.enter("Instances"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	instances, ok := f.Tree[server]
	if !ok {
		return nil, errors.E(errors.KindNotFound, "Instances", server)
	}
	return sortedKeys(instances), nil
}

func (f *FakeClient) Classes(ctx context.Context, server, instance string) ([]string, error) {
	if err := f.enter("Classes"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	classes, ok := f.Tree[server][instance]
	if !ok {
		return nil, errors.E(errors.KindNotFound, "Classes", server+"/"+instance)
	}
	return sortedKeys(classes), nil
}

func (f *FakeClient) Devices(ctx context.Context, server, instance, class string) ([]string, error) {
	if err := f.enter("Devices"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	devices, ok := f.Tree[server][instance][class]
	if !ok {
		return nil, errors.E(errors.KindNotFound, "Devices", class)
	}
	return append([]string(nil), devices...), nil
}

func (f *FakeClient) Domains(ctx context.Context) ([]string, error) {
	if err := f.enter("Domains"); err != nil {
		return nil, err
	}
	return f.deviceParts(0, "", ""), nil
}

func (f *FakeClient) Families(ctx context.Context, domain string) ([]string, error) {
	if err := f.enter("Families"); err != nil {
		return nil, err
	}
	return f.deviceParts(1, domain, ""), nil
}

func (f *FakeClient) Members(ctx context.Context, domain, family string) ([]string, error) {
	if err := f.enter("Members"); err != nil {
		return nil, err
	}
	return f.deviceParts(2, domain, family), nil
}

// deviceParts enumerates one level of the logical tree from the
// registered device names.
func (f *FakeClient) deviceParts(level int, domain, family string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for name := range f.Devs {
		parts := strings.SplitN(name, "/", 3)
		if len(parts) != 3 {
			continue
		}
		if level >= 1 && !strings.EqualFold(parts[0], domain) {
			continue
		}
		if level >= 2 && !strings.EqualFold(parts[1], family) {
			continue
		}
		if !seen[parts[level]] {
			seen[parts[level]] = true
			out = append(out, parts[level])
		}
	}
	sort.Strings(out)
	return out
}

func (f *FakeClient) DeviceInfo(ctx context.Context, device string) (*DeviceInfo, error) {
	if err := f.enter("DeviceInfo"); err != nil {
		return nil, err
	}
	dev, err := f.device("DeviceInfo", device)
	if err != nil {
		return nil, err
	}
	info := dev.Info
	return &info, nil
}

func (f *FakeClient) Ping(ctx context.Context, device string) error {
	if err := f.enter("Ping"); err != nil {
		return err
	}
	dev, err := f.device("Ping", device)
	if err != nil {
		return err
	}
	if !dev.Alive {
		return errors.E(errors.KindRemoteRejected, "Ping", device)
	}
	return nil
}

func (f *FakeClient) Properties(ctx context.Context, device string) ([]string, error) {
	if err := f.enter("Properties"); err != nil {
		return nil, err
	}
	dev, err := f.device("Properties", device)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedKeys(dev.Properties), nil
}

func (f *FakeClient) Property(ctx context.Context, device, name string) ([]string, error) {
	if err := f.enter("Property"); err != nil {
		return nil, err
	}
	dev, err := f.device("Property", device)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	lines, ok := dev.Properties[name]
	if !ok {
		return nil, errors.E(errors.KindNotFound, "Property", name)
	}
	return append([]string(nil), lines...), nil
}

func (f *FakeClient) SetProperty(ctx context.Context, device, name string, lines []string) error {
	if err := f.enter("SetProperty"); err != nil {
		return err
	}
	dev, err := f.device("SetProperty", device)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	dev.Properties[name] = append([]string(nil), lines...)
	return nil
}

func (f *FakeClient) DeleteProperty(ctx context.Context, device, name string) error {
	if err := f.enter("DeleteProperty"); err != nil {
		return err
	}
	dev, err := f.device("DeleteProperty", device)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := dev.Properties[name]; !ok {
		return errors.E(errors.KindNotFound, "DeleteProperty", name)
	}
	delete(dev.Properties, name)
	return nil
}

func (f *FakeClient) Attributes(ctx context.Context, device string) ([]AttributeInfo, error) {
	if err := f.enter("Attributes"); err != nil {
		return nil, err
	}
	dev, err := f.device("Attributes", device)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]AttributeInfo(nil), dev.Attributes...), nil
}

func (f *FakeClient) ReadAttribute(ctx context.Context, device, name string) (*AttributeValue, error) {
	if err := f.enter("ReadAttribute"); err != nil {
		return nil, err
	}
	dev, err := f.device("ReadAttribute", device)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := dev.Readings[strings.ToLower(name)]
	if !ok {
		return nil, errors.E(errors.KindNotFound, "ReadAttribute", name)
	}
	out := val
	return &out, nil
}

func (f *FakeClient) Commands(ctx context.Context, device string) ([]CommandInfo, error) {
	if err := f.enter("Commands"); err != nil {
		return nil, err
	}
	dev, err := f.device("Commands", device)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CommandInfo(nil), dev.Commands...), nil
}

func (f *FakeClient) ExecuteCommand(ctx context.Context, device, name string) (string, error) {
	if err := f.enter("ExecuteCommand"); err != nil {
		return "", err
	}
	dev, err := f.device("ExecuteCommand", device)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out, ok := dev.CommandOut[strings.ToLower(name)]
	if !ok {
		return "", errors.E(errors.KindNotFound, "ExecuteCommand", name)
	}
	return out, nil
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ Client = (*FakeClient)(nil)

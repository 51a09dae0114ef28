package tango

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tangofs/tangofs/pkg/errors"
)

// RESTClient implements Client against a Tango REST gateway. One
// instance is shared by all filesystem requests for the lifetime of the
// mount; the underlying http.Client pools connections.
type RESTClient struct {
	base   string
	http   *http.Client
	logger *zap.Logger
}

// RESTConfig configures the gateway connection.
type RESTConfig struct {
	// BaseURL is the gateway root including the database host selector,
	// e.g. "http://gateway:10001/tango/rest/v10/hosts/dbhost/10000".
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// NewRESTClient creates a gateway client. A nil logger disables call
// tracing.
func NewRESTClient(cfg RESTConfig, logger *zap.Logger) *RESTClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RESTClient{
		base: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:    32,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		logger: logger.Named("tango"),
	}
}

// gatewayError is the error body the gateway returns for remote-side
// failures (DevFailed and friends).
type gatewayError struct {
	Errors []struct {
		Reason      string `json:"reason"`
		Description string `json:"description"`
	} `json:"errors"`
}

func (g *gatewayError) message() string {
	if len(g.Errors) == 0 {
		return "remote error"
	}
	e := g.Errors[0]
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Description)
	}
	return e.Reason
}

func (c *RESTClient) call(ctx context.Context, op, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.E(errors.KindInternal, op, path, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return errors.E(errors.KindInternal, op, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("gateway call", zap.String("method", method), zap.String("path", path))

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.E(errors.KindRemoteUnavailable, op, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.E(errors.KindNotFound, op, path)
	case resp.StatusCode >= 500:
		return errors.E(errors.KindRemoteUnavailable, op, path,
			fmt.Errorf("gateway status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		var ge gatewayError
		if err := json.NewDecoder(resp.Body).Decode(&ge); err == nil && len(ge.Errors) > 0 {
			return errors.E(errors.KindRemoteRejected, op, path, fmt.Errorf("%s", ge.message()))
		}
		return errors.E(errors.KindRemoteRejected, op, path,
			fmt.Errorf("gateway status %d", resp.StatusCode))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.E(errors.KindRemoteUnavailable, op, path, err)
	}
	return nil
}

func (c *RESTClient) getNames(ctx context.Context, op, path string) ([]string, error) {
	var names []string
	if err := c.call(ctx, op, http.MethodGet, path, nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

func device(name string) string {
	return "/devices/" + url.PathEscape(name)
}

// Servers lists the registered device servers.
func (c *RESTClient) Servers(ctx context.Context) ([]string, error) {
	return c.getNames(ctx, "servers.list", "/servers")
}

// Instances lists the instances of one server.
func (c *RESTClient) Instances(ctx context.Context, server string) ([]string, error) {
	return c.getNames(ctx, "instances.list", "/servers/"+url.PathEscape(server)+"/instances")
}

// Classes lists the device classes hosted by one server instance.
func (c *RESTClient) Classes(ctx context.Context, server, instance string) ([]string, error) {
	return c.getNames(ctx, "classes.list",
		"/servers/"+url.PathEscape(server)+"/instances/"+url.PathEscape(instance)+"/classes")
}

// Devices lists the devices of one class inside a server instance.
func (c *RESTClient) Devices(ctx context.Context, server, instance, class string) ([]string, error) {
	return c.getNames(ctx, "devices.list",
		"/servers/"+url.PathEscape(server)+"/instances/"+url.PathEscape(instance)+
			"/classes/"+url.PathEscape(class)+"/devices")
}

// Domains lists the device name domains.
func (c *RESTClient) Domains(ctx context.Context) ([]string, error) {
	return c.getNames(ctx, "domains.list", "/devices/domains")
}

// Families lists the families below one domain.
func (c *RESTClient) Families(ctx context.Context, domain string) ([]string, error) {
	return c.getNames(ctx, "families.list", "/devices/domains/"+url.PathEscape(domain)+"/families")
}

// Members lists the members below one domain/family pair.
func (c *RESTClient) Members(ctx context.Context, domain, family string) ([]string, error) {
	return c.getNames(ctx, "members.list",
		"/devices/domains/"+url.PathEscape(domain)+"/families/"+url.PathEscape(family)+"/members")
}

type deviceInfoDoc struct {
	Name        string `json:"name"`
	ClassName   string `json:"class"`
	Server      string `json:"server"`
	Exported    bool   `json:"exported"`
	StartedDate string `json:"started_date"`
}

// DeviceInfo fetches the database registration record for one device.
func (c *RESTClient) DeviceInfo(ctx context.Context, dev string) (*DeviceInfo, error) {
	var doc deviceInfoDoc
	if err := c.call(ctx, "device.info", http.MethodGet, device(dev)+"/info", nil, &doc); err != nil {
		return nil, err
	}
	return &DeviceInfo{
		Name:        doc.Name,
		ClassName:   doc.ClassName,
		Server:      doc.Server,
		Exported:    doc.Exported,
		StartedDate: doc.StartedDate,
	}, nil
}

// Ping checks that the device server answers.
func (c *RESTClient) Ping(ctx context.Context, dev string) error {
	return c.call(ctx, "device.ping", http.MethodGet, device(dev)+"/ping", nil, nil)
}

// Properties lists the device's property names.
func (c *RESTClient) Properties(ctx context.Context, dev string) ([]string, error) {
	return c.getNames(ctx, "properties.list", device(dev)+"/properties")
}

type propertyDoc struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Property fetches one property's value lines.
func (c *RESTClient) Property(ctx context.Context, dev, name string) ([]string, error) {
	var doc propertyDoc
	path := device(dev) + "/properties/" + url.PathEscape(name)
	if err := c.call(ctx, "property.get", http.MethodGet, path, nil, &doc); err != nil {
		return nil, err
	}
	return doc.Values, nil
}

// SetProperty stores one property's value lines.
func (c *RESTClient) SetProperty(ctx context.Context, dev, name string, lines []string) error {
	path := device(dev) + "/properties/" + url.PathEscape(name)
	return c.call(ctx, "property.set", http.MethodPut, path, propertyDoc{Name: name, Values: lines}, nil)
}

// DeleteProperty removes one property.
func (c *RESTClient) DeleteProperty(ctx context.Context, dev, name string) error {
	path := device(dev) + "/properties/" + url.PathEscape(name)
	return c.call(ctx, "property.delete", http.MethodDelete, path, nil, nil)
}

type attributeDoc struct {
	Name         string `json:"name"`
	DataType     string `json:"data_type"`
	DataFormat   string `json:"data_format"`
	Writable     string `json:"writable"`
	DisplayLevel string `json:"display_level"`
	Label        string `json:"label"`
	Unit         string `json:"unit"`
	StandardUnit string `json:"standard_unit"`
	DisplayUnit  string `json:"display_unit"`
	Format       string `json:"format"`
	Description  string `json:"description"`
	MinValue     string `json:"min_value"`
	MaxValue     string `json:"max_value"`
	MinAlarm     string `json:"min_alarm"`
	MaxAlarm     string `json:"max_alarm"`
	MaxDimX      int    `json:"max_dim_x"`
	MaxDimY      int    `json:"max_dim_y"`
}

func parseWriteType(s string) WriteType {
	switch s {
	case "WRITE":
		return WriteTypeWrite
	case "READ_WRITE":
		return WriteTypeReadWrite
	case "READ_WITH_WRITE":
		return WriteTypeReadWithWrite
	default:
		return WriteTypeRead
	}
}

// Attributes fetches the attribute list with configuration. One call
// returns everything; the namespace layer caches the result so per-child
// config lookups do not fan out into per-attribute round trips.
func (c *RESTClient) Attributes(ctx context.Context, dev string) ([]AttributeInfo, error) {
	var docs []attributeDoc
	if err := c.call(ctx, "attributes.list", http.MethodGet, device(dev)+"/attributes", nil, &docs); err != nil {
		return nil, err
	}
	infos := make([]AttributeInfo, len(docs))
	for i, d := range docs {
		level := DisplayOperator
		if d.DisplayLevel == "EXPERT" {
			level = DisplayExpert
		}
		infos[i] = AttributeInfo{
			Name:         d.Name,
			DataType:     d.DataType,
			DataFormat:   ParseDataFormat(d.DataFormat),
			Writable:     parseWriteType(d.Writable),
			DisplayLevel: level,
			Label:        d.Label,
			Unit:         d.Unit,
			StandardUnit: d.StandardUnit,
			DisplayUnit:  d.DisplayUnit,
			Format:       d.Format,
			Description:  d.Description,
			MinValue:     d.MinValue,
			MaxValue:     d.MaxValue,
			MinAlarm:     d.MinAlarm,
			MaxAlarm:     d.MaxAlarm,
			MaxDimX:      d.MaxDimX,
			MaxDimY:      d.MaxDimY,
		}
	}
	return infos, nil
}

type attributeValueDoc struct {
	Name    string   `json:"name"`
	Format  string   `json:"data_format"`
	Values  []string `json:"values"`
	WValues []string `json:"w_values"`
	DimX    int      `json:"dim_x"`
	DimY    int      `json:"dim_y"`
}

// ReadAttribute fetches one live attribute reading.
func (c *RESTClient) ReadAttribute(ctx context.Context, dev, name string) (*AttributeValue, error) {
	var doc attributeValueDoc
	path := device(dev) + "/attributes/" + url.PathEscape(name) + "/value"
	if err := c.call(ctx, "attribute.read", http.MethodGet, path, nil, &doc); err != nil {
		return nil, err
	}
	return &AttributeValue{
		Name:    doc.Name,
		Format:  ParseDataFormat(doc.Format),
		Values:  doc.Values,
		WValues: doc.WValues,
		DimX:    doc.DimX,
		DimY:    doc.DimY,
	}, nil
}

type commandDoc struct {
	Name    string `json:"name"`
	InType  string `json:"in_type"`
	OutType string `json:"out_type"`
}

// Commands fetches the device's command list.
func (c *RESTClient) Commands(ctx context.Context, dev string) ([]CommandInfo, error) {
	var docs []commandDoc
	if err := c.call(ctx, "commands.list", http.MethodGet, device(dev)+"/commands", nil, &docs); err != nil {
		return nil, err
	}
	infos := make([]CommandInfo, len(docs))
	for i, d := range docs {
		infos[i] = CommandInfo{Name: d.Name, InType: d.InType, OutType: d.OutType}
	}
	return infos, nil
}

type commandResultDoc struct {
	Output string `json:"output"`
}

// ExecuteCommand invokes an argument-less command.
func (c *RESTClient) ExecuteCommand(ctx context.Context, dev, name string) (string, error) {
	var doc commandResultDoc
	path := device(dev) + "/commands/" + url.PathEscape(name)
	if err := c.call(ctx, "command.invoke", http.MethodPut, path, struct{}{}, &doc); err != nil {
		return "", err
	}
	return doc.Output, nil
}

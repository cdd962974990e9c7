// Package protomsg is a codec type plugin for protobuf messages. Messages
// travel as their full name plus a protojson payload. Schemas that the
// binary was not compiled with can be loaded from .proto source at runtime;
// their messages decode as dynamic messages.
package protomsg

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/chazu/knot/codec"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/tliron/commonlog"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/dynamicpb"
)

// TypeName is the descriptor name used in tables.
const TypeName = "Proto"

// Scalar keys.
const (
	keyType = "type"
	keyJSON = "json"
)

// ---------------------------------------------------------------------------
// Plugin
// ---------------------------------------------------------------------------

// Plugin resolves message types first from schemas it loaded, then from the
// types linked into the binary.
type Plugin struct {
	mu    sync.RWMutex
	local *protoregistry.Types
	log   commonlog.Logger
}

// New creates a plugin with no loaded schemas.
func New() *Plugin {
	return &Plugin{
		local: new(protoregistry.Types),
		log:   commonlog.GetLogger("knot.protomsg"),
	}
}

// LoadSchemas parses the named files out of sources (file name -> .proto
// text; imports are looked up in the same map) and registers every message
// they declare. It returns the full names registered, sorted.
func (p *Plugin) LoadSchemas(sources map[string]string, names ...string) ([]string, error) {
	parser := protoparse.Parser{
		Accessor:              protoparse.FileContentsFromMap(sources),
		IncludeSourceCodeInfo: false,
	}
	fds, err := parser.ParseFiles(names...)
	if err != nil {
		return nil, fmt.Errorf("protomsg: parse schemas: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var registered []string
	var register func(msgs protoreflect.MessageDescriptors) error
	register = func(msgs protoreflect.MessageDescriptors) error {
		for i := 0; i < msgs.Len(); i++ {
			md := msgs.Get(i)
			if md.IsMapEntry() {
				continue
			}
			if _, err := p.local.FindMessageByName(md.FullName()); err == nil {
				continue
			}
			if err := p.local.RegisterMessage(dynamicpb.NewMessageType(md)); err != nil {
				return fmt.Errorf("protomsg: register %s: %w", md.FullName(), err)
			}
			registered = append(registered, string(md.FullName()))
			if err := register(md.Messages()); err != nil {
				return err
			}
		}
		return nil
	}
	for _, fd := range fds {
		if err := register(fd.UnwrapFile().Messages()); err != nil {
			return nil, err
		}
	}
	sort.Strings(registered)
	p.log.Infof("loaded %d message types from %s", len(registered), strings.Join(names, ", "))
	return registered, nil
}

// FindMessageByName implements protoregistry.MessageTypeResolver.
func (p *Plugin) FindMessageByName(name protoreflect.FullName) (protoreflect.MessageType, error) {
	p.mu.RLock()
	mt, err := p.local.FindMessageByName(name)
	p.mu.RUnlock()
	if err == nil {
		return mt, nil
	}
	return protoregistry.GlobalTypes.FindMessageByName(name)
}

// FindMessageByURL implements protoregistry.MessageTypeResolver.
func (p *Plugin) FindMessageByURL(url string) (protoreflect.MessageType, error) {
	p.mu.RLock()
	mt, err := p.local.FindMessageByURL(url)
	p.mu.RUnlock()
	if err == nil {
		return mt, nil
	}
	return protoregistry.GlobalTypes.FindMessageByURL(url)
}

// FindExtensionByName implements protoregistry.ExtensionTypeResolver.
func (p *Plugin) FindExtensionByName(field protoreflect.FullName) (protoreflect.ExtensionType, error) {
	p.mu.RLock()
	xt, err := p.local.FindExtensionByName(field)
	p.mu.RUnlock()
	if err == nil {
		return xt, nil
	}
	return protoregistry.GlobalTypes.FindExtensionByName(field)
}

// FindExtensionByNumber implements protoregistry.ExtensionTypeResolver.
func (p *Plugin) FindExtensionByNumber(message protoreflect.FullName, field protoreflect.FieldNumber) (protoreflect.ExtensionType, error) {
	p.mu.RLock()
	xt, err := p.local.FindExtensionByNumber(message, field)
	p.mu.RUnlock()
	if err == nil {
		return xt, nil
	}
	return protoregistry.GlobalTypes.FindExtensionByNumber(message, field)
}

// ---------------------------------------------------------------------------
// Descriptor
// ---------------------------------------------------------------------------

// Descriptor returns the codec descriptor for proto.Message values. Messages
// are stored by reference, so one message shared by several parents decodes
// to one message.
func (p *Plugin) Descriptor() *codec.Descriptor {
	return &codec.Descriptor{
		Name:    TypeName,
		Storage: codec.ByReference,
		Identify: func(v any, _ string, _ any) bool {
			_, ok := v.(proto.Message)
			return ok
		},
		Extract: func(v any, _ string, _ any) (any, error) {
			return p.extract(v.(proto.Message))
		},
		Build: func(scalar any, _ string, _ any) (any, error) {
			return p.build(scalar)
		},
	}
}

func (p *Plugin) extract(msg proto.Message) (any, error) {
	name := msg.ProtoReflect().Descriptor().FullName()
	payload, err := protojson.MarshalOptions{Resolver: p}.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protomsg: marshal %s: %w", name, err)
	}
	// protojson varies its whitespace between builds; compact it so equal
	// messages always pack to the same scalar.
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return nil, fmt.Errorf("protomsg: compact %s: %w", name, err)
	}
	return map[string]any{
		keyType: string(name),
		keyJSON: buf.String(),
	}, nil
}

var errBadScalar = errors.New("protomsg: scalar must be {type, json}")

func (p *Plugin) build(scalar any) (any, error) {
	m, ok := scalar.(map[string]any)
	if !ok {
		return nil, errBadScalar
	}
	name, ok1 := m[keyType].(string)
	payload, ok2 := m[keyJSON].(string)
	if !ok1 || !ok2 {
		return nil, errBadScalar
	}

	mt, err := p.FindMessageByName(protoreflect.FullName(name))
	if err != nil {
		return nil, &codec.UnknownTypeError{Name: TypeName + ":" + name}
	}
	msg := mt.New().Interface()
	if err := (protojson.UnmarshalOptions{Resolver: p}).Unmarshal([]byte(payload), msg); err != nil {
		return nil, fmt.Errorf("protomsg: unmarshal %s: %w", name, err)
	}
	return msg, nil
}

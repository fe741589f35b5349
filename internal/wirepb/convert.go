package wirepb

import (
	"maps"
	"slices"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/hanpama/docdb/internal/wire"
)

// NewRequest converts req into an ExecuteRequest message.
func NewRequest(req *wire.Request) *dynamicpb.Message {
	md := Method().Input()
	m := dynamicpb.NewMessage(md)
	fs := md.Fields()
	setString(m, fs.ByName("database"), req.Database)
	setString(m, fs.ByName("method"), string(req.Method))
	setString(m, fs.ByName("path"), req.Path)
	setPairs(m, fs.ByName("params"), req.Params)
	setPairs(m, fs.ByName("header"), req.Header)
	if len(req.Body) > 0 {
		m.Set(fs.ByName("body"), protoreflect.ValueOfBytes(req.Body))
	}
	return m
}

// RequestFrom converts an ExecuteRequest message back into a wire request.
func RequestFrom(m protoreflect.Message) *wire.Request {
	fs := m.Descriptor().Fields()
	return &wire.Request{
		Database: m.Get(fs.ByName("database")).String(),
		Method:   wire.Method(m.Get(fs.ByName("method")).String()),
		Path:     m.Get(fs.ByName("path")).String(),
		Params:   getPairs(m, fs.ByName("params")),
		Header:   getPairs(m, fs.ByName("header")),
		Body:     bytesOf(m, fs.ByName("body")),
	}
}

// NewResponse converts resp into an ExecuteResponse message.
func NewResponse(resp *wire.Response) *dynamicpb.Message {
	md := Method().Output()
	m := dynamicpb.NewMessage(md)
	fs := md.Fields()
	m.Set(fs.ByName("status"), protoreflect.ValueOfInt32(int32(resp.Status)))
	setPairs(m, fs.ByName("header"), resp.Header)
	if len(resp.Body) > 0 {
		m.Set(fs.ByName("body"), protoreflect.ValueOfBytes(resp.Body))
	}
	return m
}

// ResponseFrom converts an ExecuteResponse message back into a wire response.
func ResponseFrom(m protoreflect.Message) *wire.Response {
	fs := m.Descriptor().Fields()
	return &wire.Response{
		Status: int(m.Get(fs.ByName("status")).Int()),
		Header: getPairs(m, fs.ByName("header")),
		Body:   bytesOf(m, fs.ByName("body")),
	}
}

func setString(m *dynamicpb.Message, fd protoreflect.FieldDescriptor, v string) {
	if v != "" {
		m.Set(fd, protoreflect.ValueOfString(v))
	}
}

func setPairs(m *dynamicpb.Message, fd protoreflect.FieldDescriptor, kv map[string]string) {
	if len(kv) == 0 {
		return
	}
	pd := fd.Message()
	lst := m.Mutable(fd).List()
	for _, k := range slices.Sorted(maps.Keys(kv)) {
		p := dynamicpb.NewMessage(pd)
		p.Set(pd.Fields().ByName("key"), protoreflect.ValueOfString(k))
		p.Set(pd.Fields().ByName("value"), protoreflect.ValueOfString(kv[k]))
		lst.Append(protoreflect.ValueOfMessage(p))
	}
}

func getPairs(m protoreflect.Message, fd protoreflect.FieldDescriptor) map[string]string {
	if !m.Has(fd) {
		return nil
	}
	lst := m.Get(fd).List()
	out := make(map[string]string, lst.Len())
	for i := 0; i < lst.Len(); i++ {
		p := lst.Get(i).Message()
		pf := p.Descriptor().Fields()
		out[p.Get(pf.ByName("key")).String()] = p.Get(pf.ByName("value")).String()
	}
	return out
}

func bytesOf(m protoreflect.Message, fd protoreflect.FieldDescriptor) []byte {
	if !m.Has(fd) {
		return nil
	}
	return append([]byte(nil), m.Get(fd).Bytes()...)
}

// Package wirepb defines the gRPC gateway schema that carries wire requests
// and responses, built at runtime with protobuilder.
package wirepb

import (
	"fmt"
	"sync"

	"github.com/jhump/protoreflect/v2/protobuilder"
	"google.golang.org/protobuf/reflect/protoreflect"
)

const (
	FilePath    = "docdb/gateway/v1/gateway.proto"
	PackageName = "docdb.gateway.v1"
	ServiceName = PackageName + ".Gateway"
	MethodName  = "Execute"
	// FullMethod is the gRPC method path of Execute.
	FullMethod = "/" + ServiceName + "/" + MethodName
)

var (
	buildOnce sync.Once
	built     protoreflect.FileDescriptor
	buildErr  error
)

// File returns the gateway file descriptor.
func File() (protoreflect.FileDescriptor, error) {
	buildOnce.Do(func() { built, buildErr = build() })
	return built, buildErr
}

// Method returns the Execute method descriptor. The schema is static, so a
// build failure is a programming error and panics.
func Method() protoreflect.MethodDescriptor {
	fd, err := File()
	if err != nil {
		panic(fmt.Sprintf("wirepb: build gateway descriptors: %v", err))
	}
	return fd.Services().ByName(protoreflect.Name("Gateway")).Methods().ByName(MethodName)
}

func build() (protoreflect.FileDescriptor, error) {
	fb := protobuilder.NewFile(FilePath)
	fb.SetPackageName(PackageName)
	fb.SetSyntax(protoreflect.Proto3)
	fb.SetComments(comment("Gateway forwards document database REST calls over gRPC."))

	pair := protobuilder.NewMessage("Pair")
	pair.AddField(scalar("key", 1, protoreflect.StringKind))
	pair.AddField(scalar("value", 2, protoreflect.StringKind))

	req := protobuilder.NewMessage("ExecuteRequest")
	req.SetComments(comment("One REST call. path is relative to the database."))
	req.AddField(scalar("database", 1, protoreflect.StringKind))
	req.AddField(scalar("method", 2, protoreflect.StringKind))
	req.AddField(scalar("path", 3, protoreflect.StringKind))
	req.AddField(pairs("params", 4, pair))
	req.AddField(pairs("header", 5, pair))
	req.AddField(scalar("body", 6, protoreflect.BytesKind))

	resp := protobuilder.NewMessage("ExecuteResponse")
	resp.SetComments(comment("The server's answer, error statuses included."))
	resp.AddField(scalar("status", 1, protoreflect.Int32Kind))
	resp.AddField(pairs("header", 2, pair))
	resp.AddField(scalar("body", 3, protoreflect.BytesKind))

	fb.AddMessage(pair)
	fb.AddMessage(req)
	fb.AddMessage(resp)

	svc := protobuilder.NewService("Gateway")
	mb := protobuilder.NewMethod(
		MethodName,
		protobuilder.RpcTypeMessage(req, false),
		protobuilder.RpcTypeMessage(resp, false),
	)
	svc.AddMethod(mb)
	fb.AddService(svc)

	return fb.Build()
}

func scalar(name protoreflect.Name, num protoreflect.FieldNumber, kind protoreflect.Kind) *protobuilder.FieldBuilder {
	f := protobuilder.NewField(name, protobuilder.FieldTypeScalar(kind))
	f.SetNumber(num)
	return f
}

func pairs(name protoreflect.Name, num protoreflect.FieldNumber, pair *protobuilder.MessageBuilder) *protobuilder.FieldBuilder {
	f := protobuilder.NewField(name, protobuilder.FieldTypeMessage(pair))
	f.SetNumber(num)
	f.SetRepeated()
	return f
}

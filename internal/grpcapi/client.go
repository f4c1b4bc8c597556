package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls a remote Authorizer.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Check reports whether userID may perform permission, and whether the user
// is root.
func (c *Client) Check(ctx context.Context, userID, permission string, opts ...grpc.CallOption) (allowed, root bool, err error) {
	in, err := structpb.NewStruct(map[string]any{"user_id": userID, "permission": permission})
	if err != nil {
		return false, false, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Check", in, out, opts...); err != nil {
		return false, false, err
	}
	fields := out.GetFields()
	return fields["allowed"].GetBoolValue(), fields["root"].GetBoolValue(), nil
}

// Navigation returns the raw section list for userID.
func (c *Client) Navigation(ctx context.Context, userID string, opts ...grpc.CallOption) ([]any, error) {
	in, err := structpb.NewStruct(map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Navigation", in, out, opts...); err != nil {
		return nil, err
	}
	return out.GetFields()["sections"].GetListValue().AsSlice(), nil
}

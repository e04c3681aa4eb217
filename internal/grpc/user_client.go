package grpc

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"social-chat/internal/domain"
	"social-chat/internal/models"
)

const userDirectoryService = "/users.v1.UserDirectory/"

// UserClient talks to the external user directory. Requests and replies are
// google.protobuf.Struct values.
type UserClient struct {
	conn grpc.ClientConnInterface
}

// Dial opens a plaintext connection to the user directory.
func Dial(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
}

// NewUserClient constructs the wrapper.
func NewUserClient(conn grpc.ClientConnInterface) *UserClient {
	return &UserClient{conn: conn}
}

func (u *UserClient) call(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := u.conn.Invoke(ctx, userDirectoryService+method, in, out); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%s: %w", method, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}

// GetUser retrieves user details.
func (u *UserClient) GetUser(ctx context.Context, userID int) (models.User, error) {
	resp, err := u.call(ctx, "GetUser", map[string]any{"user_id": userID})
	if err != nil {
		return models.User{}, err
	}
	user := userFromStruct(resp)
	if user.ID == 0 {
		return models.User{}, fmt.Errorf("GetUser: %w", domain.ErrNotFound)
	}
	return user, nil
}

// BulkUsers fetches multiple users in one call. Unknown ids are omitted.
func (u *UserClient) BulkUsers(ctx context.Context, ids []int) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	list := make([]any, 0, len(ids))
	for _, id := range ids {
		list = append(list, id)
	}

	resp, err := u.call(ctx, "BulkUsers", map[string]any{"ids": list})
	if err != nil {
		return nil, err
	}
	return usersFromReply(resp), nil
}

// SearchUsers matches usernames by prefix on the directory.
func (u *UserClient) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	resp, err := u.call(ctx, "SearchUsers", map[string]any{"query": query, "limit": limit})
	if err != nil {
		return nil, err
	}
	return usersFromReply(resp), nil
}

// SetProfilePicture stores the avatar URL on the directory.
func (u *UserClient) SetProfilePicture(ctx context.Context, userID int, url string) error {
	_, err := u.call(ctx, "SetProfilePicture", map[string]any{"user_id": userID, "profile_picture": url})
	return err
}

func usersFromReply(resp *structpb.Struct) []models.User {
	values := resp.GetFields()["users"].GetListValue().GetValues()
	users := make([]models.User, 0, len(values))
	for _, v := range values {
		if s := v.GetStructValue(); s != nil {
			if user := userFromStruct(s); user.ID != 0 {
				users = append(users, user)
			}
		}
	}
	return users
}

func userFromStruct(s *structpb.Struct) models.User {
	f := s.GetFields()
	return models.User{
		ID:             int(f["id"].GetNumberValue()),
		Username:       f["username"].GetStringValue(),
		FullName:       f["full_name"].GetStringValue(),
		ProfilePicture: f["profile_picture"].GetStringValue(),
	}
}

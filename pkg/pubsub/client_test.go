package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/eventrentals-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	require.Equal(t, "projects/p1/topics/rentals", TopicResourceName("p1", "rentals"))
	require.Equal(t, "projects/other/topics/x", TopicResourceName("p1", "projects/other/topics/x"))
	require.Empty(t, TopicResourceName("", "rentals"))
	require.Empty(t, TopicResourceName("p1", "  "))
}

func TestClientOptionsPrefersInlineCredentials(t *testing.T) {
	require.Empty(t, ClientOptions(config.GCPConfig{}))
	require.Len(t, ClientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/key.json"}), 1)
	require.Len(t, ClientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/key.json"}), 1)
}

func TestIsPermanent(t *testing.T) {
	require.True(t, IsPermanent(status.Error(codes.NotFound, "topic gone")))
	require.True(t, IsPermanent(status.Error(codes.PermissionDenied, "nope")))
	require.False(t, IsPermanent(status.Error(codes.Unavailable, "try later")))
	require.False(t, IsPermanent(errors.New("plain")))
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	require.Nil(t, c.Publisher("rentals"))
	require.NoError(t, c.Close())
	require.Error(t, c.Ping(context.Background()))
}

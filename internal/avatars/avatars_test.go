package avatars

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObjectKeyKeepsExtension(t *testing.T) {
	key := objectKey("Portrait.PNG")
	require.True(t, strings.HasSuffix(key, ".png"))
	require.Greater(t, len(key), len(".png"))
}

func TestObjectKeyNoExtension(t *testing.T) {
	key := objectKey("portrait")
	require.NotContains(t, key, ".")
	require.NotEmpty(t, key)
}

func TestObjectKeyUnique(t *testing.T) {
	require.NotEqual(t, objectKey("a.png"), objectKey("a.png"))
}

func TestObjectURLFromEndpoint(t *testing.T) {
	s := &Storage{cfg: Config{Endpoint: "minio.local:9000", Bucket: "avatars"}}
	require.Equal(t, "http://minio.local:9000/avatars/key.png", s.objectURL("key.png"))
}

func TestObjectURLWithSSL(t *testing.T) {
	s := &Storage{cfg: Config{Endpoint: "minio.local:9000", UseSSL: true, Bucket: "avatars"}}
	require.Equal(t, "https://minio.local:9000/avatars/key.png", s.objectURL("key.png"))
}

func TestObjectURLPublicBase(t *testing.T) {
	s := &Storage{cfg: Config{
		Endpoint:      "minio.local:9000",
		Bucket:        "avatars",
		PublicBaseURL: "https://cdn.example.com/",
	}}
	require.Equal(t, "https://cdn.example.com/avatars/key.png", s.objectURL("key.png"))
}

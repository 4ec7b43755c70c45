package session

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWebSocketURL(t *testing.T) {
	s := &Session{URL: "https://smc.example.com:8082/ignored/path", APIVersion: "6.4", ID: "abc"}
	require.Equal(t, "wss://smc.example.com:8082/6.4", s.WebSocketURL())
	require.True(t, s.IsSSL())
	require.Equal(t, "smc.example.com:8082", s.Host())

	s = &Session{URL: "http://127.0.0.1:8082", ID: "abc"}
	require.Equal(t, "ws://127.0.0.1:8082", s.WebSocketURL())
	require.False(t, s.IsSSL())
}

func TestEstablished(t *testing.T) {
	var s *Session
	require.False(t, s.Established())
	require.False(t, (&Session{URL: "http://smc"}).Established())
	require.True(t, (&Session{URL: "http://smc", ID: "x"}).Established())
}

func TestCookie(t *testing.T) {
	s := &Session{URL: "http://smc", ID: "0123ABCD"}
	require.Equal(t, "JSESSIONID=0123ABCD", s.Cookie())
	require.Equal(t, http.Header{"Cookie": {"JSESSIONID=0123ABCD"}}, s.Header())
}

func TestTLSConfig(t *testing.T) {
	config, err := (&Session{URL: "http://smc"}).TLSConfig()
	require.NoError(t, err)
	require.Nil(t, config)

	config, err = (&Session{URL: "https://smc", VerifySSL: false}).TLSConfig()
	require.NoError(t, err)
	require.True(t, config.InsecureSkipVerify)

	config, err = (&Session{URL: "https://smc", VerifySSL: true}).TLSConfig()
	require.NoError(t, err)
	require.False(t, config.InsecureSkipVerify)

	_, err = (&Session{URL: "https://smc", VerifySSL: true, CAFile: filepath.Join(t.TempDir(), "missing.pem")}).TLSConfig()
	require.Error(t, err)

	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a certificate"), 0o600))
	_, err = (&Session{URL: "https://smc", VerifySSL: true, CAFile: garbage}).TLSConfig()
	require.Error(t, err)
}

func TestParse(t *testing.T) {
	t.Setenv("SMC_SESSION_ID", "from-env")

	s, err := Parse([]byte(`
url: https://smc:8082
api_version: "6.4"
session_id: ${SMC_SESSION_ID}
`))
	require.NoError(t, err)
	require.Equal(t, &Session{URL: "https://smc:8082", APIVersion: "6.4", ID: "from-env", VerifySSL: true}, s)

	s, err = Parse([]byte("url: https://smc:8082\nsession_id: x\nverify_ssl: false\n"))
	require.NoError(t, err)
	require.False(t, s.VerifySSL)

	_, err = Parse([]byte("url: smc:8082\n"))
	require.ErrorIs(t, err, ErrInvalid)

	_, err = Parse([]byte("url: [\n"))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: http://localhost:8082\nsession_id: s1\n"), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:8082", s.WebSocketURL())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

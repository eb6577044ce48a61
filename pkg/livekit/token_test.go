package livekit

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewTokenMinterRequiresCredentials(t *testing.T) {
	t.Parallel()

	if _, err := NewTokenMinter(Config{APIKey: "key"}); err == nil {
		t.Fatal("expected error without api secret")
	}
	if _, err := NewTokenMinter(Config{APISecret: "secret"}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestMintProducesVerifiableGrant(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m, err := NewTokenMinter(
		Config{APIKey: "api_key", APISecret: "api_secret", AgentName: "voice-agent", TokenTTL: 30 * time.Minute},
		WithClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewTokenMinter() error = %v", err)
	}

	signed, err := m.Mint("session-room", "caller-1")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	parsed, err := jwt.Parse(signed, func(tok *jwt.Token) (any, error) {
		return []byte("api_secret"), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	claims := parsed.Claims.(jwt.MapClaims)
	if claims["iss"] != "api_key" || claims["sub"] != "caller-1" {
		t.Fatalf("claims = %+v", claims)
	}
	video, ok := claims["video"].(map[string]any)
	if !ok || video["room"] != "session-room" || video["roomJoin"] != true {
		t.Fatalf("video grant = %+v", claims["video"])
	}
	exp, _ := claims.GetExpirationTime()
	if !exp.Time.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("exp = %v", exp.Time)
	}
}

func TestMintAttachesAgentDispatch(t *testing.T) {
	t.Parallel()

	m, err := NewTokenMinter(Config{APIKey: "k", APISecret: "secret", AgentName: "voice-agent"})
	if err != nil {
		t.Fatalf("NewTokenMinter() error = %v", err)
	}
	signed, err := m.Mint("room-1", "caller-1")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	parsed, err := jwt.Parse(signed, func(*jwt.Token) (any, error) {
		return []byte("secret"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)

	roomConfig, ok := claims["roomConfig"].(map[string]any)
	if !ok {
		t.Fatalf("roomConfig claim = %+v", claims["roomConfig"])
	}
	agents, ok := roomConfig["agents"].([]any)
	if !ok || len(agents) != 1 {
		t.Fatalf("agents = %+v", roomConfig["agents"])
	}
	agent, ok := agents[0].(map[string]any)
	if !ok || agent["agentName"] != "voice-agent" {
		t.Fatalf("agent dispatch = %+v", agents[0])
	}
}

func TestMintWithoutAgentNameOmitsDispatch(t *testing.T) {
	t.Parallel()

	m, err := NewTokenMinter(Config{APIKey: "k", APISecret: "secret"})
	if err != nil {
		t.Fatalf("NewTokenMinter() error = %v", err)
	}
	signed, err := m.Mint("room-1", "caller-1")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	parsed, err := jwt.Parse(signed, func(*jwt.Token) (any, error) {
		return []byte("secret"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if _, present := parsed.Claims.(jwt.MapClaims)["roomConfig"]; present {
		t.Fatal("roomConfig claim present without an agent name")
	}
}

func TestMintRejectsEmptyRoomOrIdentity(t *testing.T) {
	t.Parallel()

	m, err := NewTokenMinter(Config{APIKey: "k", APISecret: "s"})
	if err != nil {
		t.Fatalf("NewTokenMinter() error = %v", err)
	}
	if _, err := m.Mint("", "caller"); err == nil {
		t.Fatal("expected error for empty room")
	}
	if _, err := m.Mint("room", " "); err == nil {
		t.Fatal("expected error for empty identity")
	}
}

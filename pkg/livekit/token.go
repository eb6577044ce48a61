package livekit

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Config struct {
	APIKey    string        `envconfig:"API_KEY" split_words:"true"`
	APISecret string        `envconfig:"API_SECRET" split_words:"true"`
	AgentName string        `envconfig:"AGENT_NAME" split_words:"true" default:"voice-agent"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" split_words:"true" default:"1h"`
}

// TokenMinter issues LiveKit room-join access tokens, signed HS256 with the
// project API secret as LiveKit's server SDKs do.
type TokenMinter struct {
	apiKey    string
	apiSecret []byte
	agentName string
	ttl       time.Duration
	clock     func() time.Time
}

type Option func(*TokenMinter)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(m *TokenMinter) {
		if clock != nil {
			m.clock = clock
		}
	}
}

func NewTokenMinter(cfg Config, opts ...Option) (*TokenMinter, error) {
	key := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.APISecret)
	if key == "" || secret == "" {
		return nil, errors.New("livekit api key and secret are required")
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	m := &TokenMinter{
		apiKey:    key,
		apiSecret: []byte(secret),
		agentName: strings.TrimSpace(cfg.AgentName),
		ttl:       ttl,
		clock:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Mint returns a signed join token for identity in room.
func (m *TokenMinter) Mint(room, identity string) (string, error) {
	room = strings.TrimSpace(room)
	identity = strings.TrimSpace(identity)
	if room == "" || identity == "" {
		return "", errors.New("room and identity are required")
	}

	now := m.clock()
	claims := jwt.MapClaims{
		"iss": m.apiKey,
		"sub": identity,
		"nbf": now.Unix(),
		"exp": now.Add(m.ttl).Unix(),
		"video": map[string]any{
			"room":     room,
			"roomJoin": true,
		},
	}
	// Room agent dispatch: the server auto-invites the named agent into
	// the room when the caller joins.
	if m.agentName != "" {
		claims["roomConfig"] = map[string]any{
			"agents": []map[string]any{
				{"agentName": m.agentName},
			},
		}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.apiSecret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

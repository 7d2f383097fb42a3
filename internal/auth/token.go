// ABOUTME: JWT verification for agent connections, HS256 with configurable secret
// ABOUTME: Tokens carry the agent id (sub) and the workspace ids the agent may join

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// AgentClaims is the verified identity carried by an agent token.
type AgentClaims struct {
	// AgentID is the token subject.
	AgentID string
	// Workspaces lists the workspace ids this agent may join. Empty means
	// the token grants no workspace scoping and joins fall back to the
	// open (trust-the-client) behavior.
	Workspaces []string
}

// AllowsWorkspace reports whether the claims permit joining a workspace.
// A token without a workspaces claim allows everything.
func (c *AgentClaims) AllowsWorkspace(workspaceID string) bool {
	if len(c.Workspaces) == 0 {
		return true
	}
	for _, ws := range c.Workspaces {
		if ws == workspaceID {
			return true
		}
	}
	return false
}

// JWTVerifier verifies and mints HS256 signed agent tokens.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier with the given secret.
func NewJWTVerifier(secret []byte) (*JWTVerifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret must not be empty")
	}
	return &JWTVerifier{secret: secret}, nil
}

// Verify validates the token and extracts the agent claims.
func (v *JWTVerifier) Verify(tokenString string) (*AgentClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	out := &AgentClaims{AgentID: sub}
	if raw, ok := claims["workspaces"].([]any); ok {
		for _, w := range raw {
			if ws, ok := w.(string); ok && ws != "" {
				out.Workspaces = append(out.Workspaces, ws)
			}
		}
	}
	return out, nil
}

// Generate mints a token for the given agent, scoped to the given
// workspaces, expiring after expiresIn.
func (v *JWTVerifier) Generate(agentID string, workspaces []string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": agentID,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}
	if len(workspaces) > 0 {
		claims["workspaces"] = workspaces
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

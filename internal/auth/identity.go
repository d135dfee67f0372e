// Package auth adapts the authentication collaborator: it turns a
// signed identity token (or plain configuration) into the {id, name}
// pair the session presents to the relay. The relay remains free to
// assign its own participant id on join.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated local user.
type Identity struct {
	ID   string
	Name string
}

var ErrNoIdentity = errors.New("token carries no identity claims")

// FromToken verifies an HS256 identity token and extracts the user id
// and display name from its claims.
func FromToken(token, secret string) (Identity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("parse identity token: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrNoIdentity
	}

	id, _ := claims["sub"].(string)
	name, _ := claims["name"].(string)
	if id == "" && name == "" {
		return Identity{}, ErrNoIdentity
	}
	return Identity{ID: id, Name: name}, nil
}

// RoomGrant reads the room name out of a managed-voice access token
// without verifying it. Verification belongs to the media relay that
// minted the token; the client only needs the grant for sanity checks
// and logging.
func RoomGrant(token string) (string, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse access token: %w", err)
	}

	if video, ok := claims["video"].(map[string]any); ok {
		if room, ok := video["room"].(string); ok {
			return room, nil
		}
	}
	return "", errors.New("access token carries no room grant")
}

package routeros

import (
	"context"
	"crypto/md5" //nolint:gosec // required by the legacy challenge login
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/micro-ha/mikrotik-router/internal/routeros/proto"
)

// LoginMethod selects the authentication handshake.
type LoginMethod string

const (
	// LoginPlain sends name and password in one /login (RouterOS >= 6.43).
	LoginPlain LoginMethod = "plain"
	// LoginToken answers an MD5 challenge (RouterOS < 6.43).
	LoginToken LoginMethod = "token"
)

// Login authenticates s using method.
func Login(ctx context.Context, s Session, username, password string, method LoginMethod) error {
	switch method {
	case LoginToken:
		return loginToken(ctx, s, username, password)
	case LoginPlain, "":
		return loginPlain(ctx, s, username, password)
	default:
		return &ValidationError{Field: "login_method", Reason: fmt.Sprintf("unsupported value %q", method)}
	}
}

func loginPlain(ctx context.Context, s Session, username, password string) error {
	reply, err := s.Run(ctx, "/login",
		proto.ComposeAttribute("name", username),
		proto.ComposeAttribute("password", password),
	)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	// Pre-6.43 devices ignore the password and answer with a challenge.
	if challenge := reply.Ret(); challenge != "" {
		return respondToChallenge(ctx, s, username, password, challenge)
	}
	return nil
}

func loginToken(ctx context.Context, s Session, username, password string) error {
	reply, err := s.Run(ctx, "/login")
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	challenge := reply.Ret()
	if challenge == "" {
		return fmt.Errorf("login: device sent no challenge token")
	}
	return respondToChallenge(ctx, s, username, password, challenge)
}

func respondToChallenge(ctx context.Context, s Session, username, password, challenge string) error {
	response, err := encodePassword(challenge, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if _, err := s.Run(ctx, "/login",
		proto.ComposeAttribute("name", username),
		proto.ComposeAttribute("response", response),
	); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return nil
}

// encodePassword computes "00" + hex(MD5(0x00 || password || unhex(token))).
func encodePassword(token, password string) (string, error) {
	challenge, err := hex.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return "", fmt.Errorf("decode challenge token: %w", err)
	}
	hasher := md5.New() //nolint:gosec
	hasher.Write([]byte{0x00})
	hasher.Write([]byte(password))
	hasher.Write(challenge)
	return "00" + hex.EncodeToString(hasher.Sum(nil)), nil
}

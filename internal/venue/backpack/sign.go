package backpack

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
)

// signer produces Backpack's instruction-based request signatures: an
// ed25519 signature over the instruction name, the alphabetically
// sorted request parameters, and the timestamp/window pair.
type signer struct {
	publicKey string
	key       ed25519.PrivateKey
}

func newSigner(publicKey, secretKey string) (*signer, error) {
	seed, err := base64.StdEncoding.DecodeString(secretKey)
	if err != nil {
		return nil, fmt.Errorf("decode backpack secret key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, errors.New("backpack secret key must be a base64 ed25519 seed")
	}
	return &signer{
		publicKey: publicKey,
		key:       ed25519.NewKeyFromSeed(seed),
	}, nil
}

func (s *signer) sign(instruction string, params url.Values, timestampMS, windowMS int64) string {
	message := "instruction=" + instruction
	if encoded := params.Encode(); encoded != "" {
		message += "&" + encoded
	}
	message += fmt.Sprintf("&timestamp=%d&window=%d", timestampMS, windowMS)
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.key, []byte(message)))
}

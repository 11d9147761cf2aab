// Package custody resolves which signing backend an agent uses and provides
// the two Signer implementations: a remote threshold signer that never sees
// key material, and a direct secp256k1 key signer.
package custody

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/helix-markets/agentfleet/src/webclient"
)

// Signer signs venue action payloads for one agent address. Exactly two
// implementations exist; callers stay signer-agnostic beyond Method().
type Signer interface {
	// Address is the venue account address the signatures authenticate.
	Address() string
	// Method identifies the signing backend ("pkp" or "direct").
	Method() string
	// SignPayload signs the canonical action digest.
	SignPayload(ctx context.Context, payload []byte) ([]byte, error)
}

// DirectKeySigner signs locally with a held secp256k1 key.
type DirectKeySigner struct {
	key     *ecdsa.PrivateKey
	address string
}

// NewDirectKeySigner parses a hex-encoded private key.
func NewDirectKeySigner(hexKey string) (*DirectKeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("custody: parse direct key: %w", err)
	}
	return &DirectKeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}, nil
}

func (s *DirectKeySigner) Address() string { return s.address }
func (s *DirectKeySigner) Method() string  { return "direct" }

func (s *DirectKeySigner) SignPayload(_ context.Context, payload []byte) ([]byte, error) {
	digest := crypto.Keccak256(payload)
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("custody: direct sign: %w", err)
	}
	return sig, nil
}

// ThresholdSigner delegates signing to a remote threshold-signature service
// (a "PKP" wallet). The raw private key never exists on this side.
type ThresholdSigner struct {
	endpoint string
	walletID string
	address  string
	http     *http.Client
	attempts int
}

// NewThresholdSigner builds a remote signer for one wallet.
func NewThresholdSigner(endpoint, walletID, address string) *ThresholdSigner {
	return &ThresholdSigner{
		endpoint: strings.TrimRight(endpoint, "/"),
		walletID: walletID,
		address:  address,
		http:     webclient.NewDefault(20 * time.Second),
		attempts: 3,
	}
}

func (s *ThresholdSigner) Address() string { return s.address }
func (s *ThresholdSigner) Method() string  { return "pkp" }

type signRequest struct {
	WalletID string `json:"wallet_id"`
	Address  string `json:"address"`
	Payload  string `json:"payload"` // hex keccak input
}

type signResponse struct {
	Signature string `json:"signature"`
	Error     string `json:"error,omitempty"`
}

func (s *ThresholdSigner) SignPayload(ctx context.Context, payload []byte) ([]byte, error) {
	reqBody, err := json.Marshal(signRequest{
		WalletID: s.walletID,
		Address:  s.address,
		Payload:  hex.EncodeToString(payload),
	})
	if err != nil {
		return nil, fmt.Errorf("custody: encode sign request: %w", err)
	}

	status, body, err := webclient.DoWithRetry(ctx, s.attempts, time.Second, 10*time.Second, func() (int, []byte, error) {
		return s.post(ctx, reqBody)
	})
	if err != nil {
		return nil, fmt.Errorf("custody: threshold signer unreachable: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("custody: threshold signer status %d: %s", status, strings.TrimSpace(string(body)))
	}

	var resp signResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("custody: decode sign response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("custody: threshold signer: %s", resp.Error)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(resp.Signature, "0x"))
	if err != nil {
		return nil, fmt.Errorf("custody: decode signature: %w", err)
	}
	return sig, nil
}

func (s *ThresholdSigner) post(ctx context.Context, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/sign", strings.NewReader(string(body)))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, buf, nil
}

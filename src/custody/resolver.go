package custody

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/helix-markets/agentfleet/src/types"
)

// ErrNoBinding is returned when an agent has no custody binding on record.
var ErrNoBinding = errors.New("custody: no binding for agent")

// Resolver answers which signing backend an agent uses and hands out the
// matching Signer. Exactly one scheme is true per agent.
type Resolver interface {
	IsThresholdSigner(agentID string) (bool, error)
	Address(agentID string) (string, error)
	SignerFor(agentID string) (Signer, error)
}

// StaticResolver serves bindings loaded from storage at startup. Signers are
// built lazily and cached; direct keys are read from the environment variable
// named by the binding's KeyRef, so key material never touches the database.
type StaticResolver struct {
	mu        sync.Mutex
	bindings  map[string]types.CustodyBinding
	signers   map[string]Signer
	signerURL string
}

// NewStaticResolver indexes the bindings. signerURL is the threshold-signing
// service endpoint used for pkp-bound agents.
func NewStaticResolver(bindings []types.CustodyBinding, signerURL string) *StaticResolver {
	idx := make(map[string]types.CustodyBinding, len(bindings))
	for _, b := range bindings {
		idx[b.AgentID] = b
	}
	return &StaticResolver{
		bindings:  idx,
		signers:   make(map[string]Signer),
		signerURL: signerURL,
	}
}

func (r *StaticResolver) binding(agentID string) (types.CustodyBinding, error) {
	b, ok := r.bindings[agentID]
	if !ok {
		return types.CustodyBinding{}, fmt.Errorf("%w: %s", ErrNoBinding, agentID)
	}
	return b, nil
}

func (r *StaticResolver) IsThresholdSigner(agentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.binding(agentID)
	if err != nil {
		return false, err
	}
	return b.Scheme == types.CustodyThreshold, nil
}

func (r *StaticResolver) Address(agentID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.binding(agentID)
	if err != nil {
		return "", err
	}
	return b.Address, nil
}

func (r *StaticResolver) SignerFor(agentID string) (Signer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.signers[agentID]; ok {
		return s, nil
	}
	b, err := r.binding(agentID)
	if err != nil {
		return nil, err
	}

	var signer Signer
	switch b.Scheme {
	case types.CustodyThreshold:
		if r.signerURL == "" {
			return nil, fmt.Errorf("custody: agent %s bound to threshold signer but no signer endpoint configured", agentID)
		}
		signer = NewThresholdSigner(r.signerURL, b.KeyRef, b.Address)
	case types.CustodyDirectKey:
		hexKey := os.Getenv(b.KeyRef)
		if hexKey == "" {
			return nil, fmt.Errorf("custody: agent %s direct key env %s not set", agentID, b.KeyRef)
		}
		ds, err := NewDirectKeySigner(hexKey)
		if err != nil {
			return nil, err
		}
		signer = ds
	default:
		return nil, fmt.Errorf("custody: agent %s has unknown scheme %q", agentID, b.Scheme)
	}

	r.signers[agentID] = signer
	return signer, nil
}

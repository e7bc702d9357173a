package identity

import (
	"errors"
	"fmt"
	"sync"

	"docregistry/go-backend/internal/crypto"
	"docregistry/go-backend/pkg/models"

	"github.com/ethereum/go-ethereum/common"
)

var ErrIdentityIndex = errors.New("identity index out of range")

const noActiveIdentity = -1

// Session holds the derived identities and which one, if any, is selected
// for signing. Selection is process-local and never persisted.
type Session struct {
	mu         sync.RWMutex
	identities []Identity
	active     int
}

func NewSession(identities []Identity) *Session {
	return &Session{
		identities: append([]Identity(nil), identities...),
		active:     noActiveIdentity,
	}
}

// NewSessionFromMnemonic derives count identities and wraps them in a session
// with nothing active.
func NewSessionFromMnemonic(mnemonic, template string, count int) (*Session, error) {
	if template == "" {
		template = PathTemplate
	}
	ids, err := DeriveIdentitiesWithTemplate(mnemonic, template, count)
	if err != nil {
		return nil, err
	}
	return NewSession(ids), nil
}

func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.identities)
}

// Identities lists the public view of every identity in derivation order.
func (s *Session) Identities() []models.IdentityInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.IdentityInfo, 0, len(s.identities))
	for i, id := range s.identities {
		info := id.Info()
		info.Active = i == s.active
		out = append(out, info)
	}
	return out
}

// Identity returns the identity at index without changing the selection.
func (s *Session) Identity(index int) (Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.identities) {
		return Identity{}, fmt.Errorf("%w: %d (have %d)", ErrIdentityIndex, index, len(s.identities))
	}
	return s.identities[index], nil
}

// Activate selects index for signing, replacing any previous selection.
func (s *Session) Activate(index int) (models.IdentityInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.identities) {
		return models.IdentityInfo{}, fmt.Errorf("%w: %d (have %d)", ErrIdentityIndex, index, len(s.identities))
	}
	s.active = index
	info := s.identities[index].Info()
	info.Active = true
	return info, nil
}

func (s *Session) Deactivate() {
	s.mu.Lock()
	s.active = noActiveIdentity
	s.mu.Unlock()
}

func (s *Session) Active() (models.IdentityInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == noActiveIdentity {
		return models.IdentityInfo{}, false
	}
	info := s.identities[s.active].Info()
	info.Active = true
	return info, true
}

// Sign signs hash with the active identity and returns the signer address.
func (s *Session) Sign(hash common.Hash) ([]byte, common.Address, error) {
	s.mu.RLock()
	if s.active == noActiveIdentity {
		s.mu.RUnlock()
		return nil, common.Address{}, crypto.ErrSigningUnavailable
	}
	id := s.identities[s.active]
	s.mu.RUnlock()

	sig, err := crypto.Sign(id.PrivateKey, hash)
	if err != nil {
		return nil, common.Address{}, err
	}
	return sig, id.Address, nil
}

package signaling

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// Sealer is the opaque sealed-envelope collaborator: the negotiation
// channel's own transport and authentication are treated as external (a
// rendezvous service, an SSH tunnel, whatever carries the bytes), but every
// offer/answer/candidate blob is sealed before being handed to it. Seal/Open
// also bind an associated-data tag (e.g. the handshake_id) so a blob replayed
// against a different handshake is rejected rather than silently accepted.
type Sealer interface {
	Seal(plaintext, aad []byte) ([]byte, error)
	Open(ciphertext, aad []byte) ([]byte, error)
}

// BoxSealer is the default Sealer, built on NaCl box (curve25519 + xsalsa20 +
// poly1305). It seals to a known peer public key using a fresh ephemeral
// keypair per message, the same construction as libsodium's sealed boxes,
// since golang.org/x/crypto/nacl/box does not expose one directly.
type BoxSealer struct {
	priv *[32]byte
	pub  *[32]byte
	peer *[32]byte
}

// NewBoxSealer generates a fresh keypair. PublicKey must be exchanged with
// the remote party (e.g. embedded alongside the SDP offer) before Seal/Open
// can be used; call SetPeerPublicKey once it's known.
func NewBoxSealer() (*BoxSealer, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("signaling: generate box key: %w", err)
	}
	return &BoxSealer{priv: priv, pub: pub}, nil
}

func (s *BoxSealer) PublicKey() [32]byte { return *s.pub }

func (s *BoxSealer) SetPeerPublicKey(pub [32]byte) { s.peer = &pub }

func (s *BoxSealer) Seal(plaintext, aad []byte) ([]byte, error) {
	if s.peer == nil {
		return nil, errors.New("signaling: peer public key not set")
	}
	epub, epriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	msg := make([]byte, 4+len(aad)+len(plaintext))
	binary.BigEndian.PutUint32(msg, uint32(len(aad)))
	copy(msg[4:], aad)
	copy(msg[4+len(aad):], plaintext)

	sealed := box.Seal(nil, msg, &nonce, s.peer, epriv)
	out := make([]byte, 0, 32+24+len(sealed))
	out = append(out, epub[:]...)
	out = append(out, nonce[:]...)
	out = append(out, sealed...)
	return out, nil
}

func (s *BoxSealer) Open(ciphertext, aad []byte) ([]byte, error) {
	if len(ciphertext) < 32+24 {
		return nil, errors.New("signaling: sealed envelope too short")
	}
	var epub, nonce [32]byte
	copy(epub[:], ciphertext[:32])
	copy(nonce[:24], ciphertext[32:56])
	var nonce24 [24]byte
	copy(nonce24[:], nonce[:24])

	msg, ok := box.Open(nil, ciphertext[56:], &nonce24, &epub, s.priv)
	if !ok {
		return nil, errors.New("signaling: envelope authentication failed")
	}
	if len(msg) < 4 {
		return nil, errors.New("signaling: malformed envelope payload")
	}
	aadLen := binary.BigEndian.Uint32(msg)
	if uint32(len(msg)-4) < aadLen {
		return nil, errors.New("signaling: malformed envelope aad length")
	}
	gotAAD := msg[4 : 4+aadLen]
	if string(gotAAD) != string(aad) {
		return nil, errors.New("signaling: envelope aad mismatch")
	}
	return msg[4+aadLen:], nil
}

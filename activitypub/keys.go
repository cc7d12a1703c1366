package activitypub

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/binary"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/deemkeen/microblog/db"
	"github.com/deemkeen/microblog/domain"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/multiformats/go-multibase"
)

const rsaKeyBits = 2048

// multicodec identifiers prefixed to Multikey public keys
const (
	multicodecEd25519Pub = 0xed
	multicodecRSAPub     = 0x1205
)

// KeyPair is a decoded key of one algorithm family.
type KeyPair struct {
	Type       domain.KeyType
	PrivateKey crypto.Signer
	PublicKey  crypto.PublicKey
}

// PublicKeyPEM encodes the public key as a PKIX PEM block.
func (kp KeyPair) PublicKeyPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(kp.PublicKey)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// PublicKeyMultibase encodes the public key as a base58btc Multikey value.
func (kp KeyPair) PublicKeyMultibase() (string, error) {
	var buf []byte
	switch pub := kp.PublicKey.(type) {
	case ed25519.PublicKey:
		buf = binary.AppendUvarint(buf, multicodecEd25519Pub)
		buf = append(buf, pub...)
	case *rsa.PublicKey:
		buf = binary.AppendUvarint(buf, multicodecRSAPub)
		buf = append(buf, x509.MarshalPKCS1PublicKey(pub)...)
	default:
		return "", fmt.Errorf("unsupported public key %T", kp.PublicKey)
	}
	return multibase.Encode(multibase.Base58BTC, buf)
}

// KeyManager owns the per-account key pairs. It is the only writer of the
// keys table.
type KeyManager struct {
	db *db.DB
}

func NewKeyManager(database *db.DB) *KeyManager {
	return &KeyManager{db: database}
}

// GetOrCreateKeyPairs returns one key pair per family in domain.KeyTypes
// order, generating and storing any that are missing. Concurrent callers
// race on the (account, type) primary key; the stored row always wins and
// is what every caller returns. An unknown account yields an empty list.
func (km *KeyManager) GetOrCreateKeyPairs(ctx context.Context, accountID int64) ([]KeyPair, error) {
	if _, err := km.db.ReadAccountById(ctx, accountID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	stored, err := km.db.ReadKeysByAccountId(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("reading keys: %w", err)
	}

	pairs := make([]KeyPair, 0, len(domain.KeyTypes))
	for _, kt := range domain.KeyTypes {
		row, ok := stored[kt]
		if !ok {
			created, err := km.create(ctx, accountID, kt)
			if err != nil {
				return nil, err
			}
			row = *created
		}
		kp, err := decodeKeyPair(row)
		if err != nil {
			return nil, fmt.Errorf("decoding %s key of account %d: %w", kt, accountID, err)
		}
		pairs = append(pairs, kp)
	}
	return pairs, nil
}

// SigningKey returns the account's RSA private key used for HTTP signatures.
func (km *KeyManager) SigningKey(ctx context.Context, accountID int64) (*rsa.PrivateKey, error) {
	pairs, err := km.GetOrCreateKeyPairs(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for _, kp := range pairs {
		if priv, ok := kp.PrivateKey.(*rsa.PrivateKey); ok {
			return priv, nil
		}
	}
	return nil, fmt.Errorf("no RSA key for account %d", accountID)
}

func (km *KeyManager) create(ctx context.Context, accountID int64, kt domain.KeyType) (*domain.Key, error) {
	priv, pub, err := generateKey(kt)
	if err != nil {
		return nil, fmt.Errorf("generating %s key: %w", kt, err)
	}
	privJWK, err := encodeJWK(priv)
	if err != nil {
		return nil, err
	}
	pubJWK, err := encodeJWK(pub)
	if err != nil {
		return nil, err
	}

	if _, err := km.db.InsertKeyIfAbsent(ctx, &domain.Key{
		AccountId:  accountID,
		Type:       kt,
		PrivateKey: privJWK,
		PublicKey:  pubJWK,
	}); err != nil {
		return nil, fmt.Errorf("storing %s key: %w", kt, err)
	}

	// re-read so a concurrent winner is returned instead of our candidate
	return km.db.ReadKey(ctx, accountID, kt)
}

func generateKey(kt domain.KeyType) (crypto.Signer, crypto.PublicKey, error) {
	switch kt {
	case domain.KeyTypeRSA:
		priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
		if err != nil {
			return nil, nil, err
		}
		return priv, &priv.PublicKey, nil
	case domain.KeyTypeEd25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, err
		}
		return priv, pub, nil
	}
	return nil, nil, fmt.Errorf("unsupported key type %q", kt)
}

func encodeJWK(raw any) (string, error) {
	key, err := jwk.FromRaw(raw)
	if err != nil {
		return "", fmt.Errorf("converting key to JWK: %w", err)
	}
	buf, err := json.Marshal(key)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func decodeKeyPair(row domain.Key) (KeyPair, error) {
	privKey, err := jwk.ParseKey([]byte(row.PrivateKey))
	if err != nil {
		return KeyPair{}, err
	}
	pubKey, err := jwk.ParseKey([]byte(row.PublicKey))
	if err != nil {
		return KeyPair{}, err
	}

	switch row.Type {
	case domain.KeyTypeRSA:
		var priv *rsa.PrivateKey
		if err := privKey.Raw(&priv); err != nil {
			return KeyPair{}, err
		}
		var pub *rsa.PublicKey
		if err := pubKey.Raw(&pub); err != nil {
			return KeyPair{}, err
		}
		return KeyPair{Type: row.Type, PrivateKey: priv, PublicKey: pub}, nil
	case domain.KeyTypeEd25519:
		var priv ed25519.PrivateKey
		if err := privKey.Raw(&priv); err != nil {
			return KeyPair{}, err
		}
		var pub ed25519.PublicKey
		if err := pubKey.Raw(&pub); err != nil {
			return KeyPair{}, err
		}
		return KeyPair{Type: row.Type, PrivateKey: priv, PublicKey: pub}, nil
	}
	return KeyPair{}, fmt.Errorf("unsupported key type %q", row.Type)
}

package keystore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

const (
	KDFScrypt = "scrypt"
	KDFPBKDF2 = "pbkdf2"

	// PRFHmacSHA256 is the only pbkdf2 PRF in the V3 format
	PRFHmacSHA256 = "hmac-sha256"

	// derivedKeyLen is what the format needs: 16 bytes of AES key followed
	// by 16 bytes of MAC key.
	derivedKeyLen = 32

	// Upper bounds applied to parameters read from untrusted files.
	maxScryptN      = 1 << 20
	maxScryptR      = 32
	maxScryptMemory = 256 << 20 // 128*n*r*p bytes
	maxPBKDF2Iters  = 10_000_000
)

// KDFParams is implemented by ScryptParams and PBKDF2Params only
type KDFParams interface {
	// Name is the value of the crypto.kdf field
	Name() string
	deriveKey(password []byte) ([]byte, error)
	validate() error
	wire() interface{}
}

// ScryptParams are the parameters of the scrypt variant
type ScryptParams struct {
	N     int
	R     int
	P     int
	DKLen int
	Salt  []byte
}

// PBKDF2Params are the parameters of the pbkdf2 variant
type PBKDF2Params struct {
	C     int
	DKLen int
	PRF   string
	Salt  []byte
}

func (ScryptParams) Name() string { return KDFScrypt }
func (PBKDF2Params) Name() string { return KDFPBKDF2 }

func (s ScryptParams) validate() error {
	if s.N <= 1 || s.N&(s.N-1) != 0 || s.N > maxScryptN {
		return fmt.Errorf("%w: scrypt n=%d", ErrMalformedKeystore, s.N)
	}
	if s.R <= 0 || s.R > maxScryptR || s.P <= 0 || s.R*s.P >= 1<<30 {
		return fmt.Errorf("%w: scrypt r=%d p=%d", ErrMalformedKeystore, s.R, s.P)
	}
	if cost := 128 * uint64(s.N) * uint64(s.R) * uint64(s.P); cost > maxScryptMemory {
		return fmt.Errorf("%w: scrypt n=%d r=%d p=%d exceeds cost limit", ErrMalformedKeystore, s.N, s.R, s.P)
	}
	if s.DKLen < derivedKeyLen {
		return fmt.Errorf("%w: dklen %d below %d", ErrMalformedKeystore, s.DKLen, derivedKeyLen)
	}
	if len(s.Salt) == 0 {
		return fmt.Errorf("%w: empty salt", ErrMalformedKeystore)
	}
	return nil
}

func (p PBKDF2Params) validate() error {
	if p.PRF != PRFHmacSHA256 {
		return fmt.Errorf("%w: prf %q", ErrUnsupportedKDF, p.PRF)
	}
	if p.C <= 0 || p.C > maxPBKDF2Iters {
		return fmt.Errorf("%w: pbkdf2 c=%d", ErrMalformedKeystore, p.C)
	}
	if p.DKLen < derivedKeyLen {
		return fmt.Errorf("%w: dklen %d below %d", ErrMalformedKeystore, p.DKLen, derivedKeyLen)
	}
	if len(p.Salt) == 0 {
		return fmt.Errorf("%w: empty salt", ErrMalformedKeystore)
	}
	return nil
}

func (s ScryptParams) deriveKey(password []byte) ([]byte, error) {
	key, err := scrypt.Key(password, s.Salt, s.N, s.R, s.P, s.DKLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

func (p PBKDF2Params) deriveKey(password []byte) ([]byte, error) {
	return pbkdf2.Key(password, p.Salt, p.C, p.DKLen, sha256.New), nil
}

type scryptWire struct {
	N     int    `json:"n"`
	R     int    `json:"r"`
	P     int    `json:"p"`
	DKLen int    `json:"dklen"`
	Salt  string `json:"salt"`
}

type pbkdf2Wire struct {
	C     int    `json:"c"`
	DKLen int    `json:"dklen"`
	PRF   string `json:"prf"`
	Salt  string `json:"salt"`
}

func (s ScryptParams) wire() interface{} {
	return scryptWire{N: s.N, R: s.R, P: s.P, DKLen: s.DKLen, Salt: hex.EncodeToString(s.Salt)}
}

func (p PBKDF2Params) wire() interface{} {
	return pbkdf2Wire{C: p.C, DKLen: p.DKLen, PRF: p.PRF, Salt: hex.EncodeToString(p.Salt)}
}

// parseKDFParams picks the variant from field presence. The crypto.kdf
// name must agree with the shape when it is present.
func parseKDFParams(kdf string, raw json.RawMessage) (KDFParams, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: kdfparams must be an object", ErrMalformedKeystore)
	}

	_, hasN := fields["n"]
	_, hasC := fields["c"]

	var params KDFParams
	switch {
	case hasN:
		var w scryptWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("%w: scrypt params: %v", ErrMalformedKeystore, err)
		}
		salt, err := decodeHex("kdfparams.salt", w.Salt)
		if err != nil {
			return nil, err
		}
		params = ScryptParams{N: w.N, R: w.R, P: w.P, DKLen: w.DKLen, Salt: salt}
	case hasC:
		var w pbkdf2Wire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("%w: pbkdf2 params: %v", ErrMalformedKeystore, err)
		}
		salt, err := decodeHex("kdfparams.salt", w.Salt)
		if err != nil {
			return nil, err
		}
		params = PBKDF2Params{C: w.C, DKLen: w.DKLen, PRF: w.PRF, Salt: salt}
	default:
		return nil, fmt.Errorf("%w: kdfparams has neither n nor c", ErrUnsupportedKDF)
	}

	if kdf != "" && kdf != params.Name() {
		return nil, fmt.Errorf("%w: kdf %q does not match %s parameters", ErrMalformedKeystore, kdf, params.Name())
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	return params, nil
}

func decodeHex(field, s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not hex", ErrMalformedKeystore, field)
	}
	return b, nil
}

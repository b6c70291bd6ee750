package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

const (
	Version     = 3
	CipherAES   = "aes-128-ctr"
	saltLen     = 32
	ivLen       = aes.BlockSize
	scryptR     = 8
	scryptP     = 1
	scryptNStd  = 1 << 14
	scryptNLite = 1 << 12
)

var (
	// ErrInvalidPassword means the MAC did not verify
	ErrInvalidPassword = errors.New("invalid password")
	// ErrMalformedKeystore covers every structural problem with a wallet file
	ErrMalformedKeystore = errors.New("malformed keystore")
	ErrUnsupportedCipher = fmt.Errorf("%w: unsupported cipher", ErrMalformedKeystore)
	ErrUnsupportedKDF    = fmt.Errorf("%w: unsupported kdf", ErrMalformedKeystore)
	ErrInvalidPrivateKey = errors.New("invalid private key")
)

// Strength selects the scrypt cost used for new files
type Strength int

const (
	// StrengthStandard uses N=16384
	StrengthStandard Strength = iota
	// StrengthLight uses N=4096 for constrained devices and tests
	StrengthLight
)

// ScryptN returns the scrypt cost parameter for the strength
func (s Strength) ScryptN() int {
	if s == StrengthLight {
		return scryptNLite
	}
	return scryptNStd
}

// String returns the config name of the strength
func (s Strength) String() string {
	if s == StrengthLight {
		return "light"
	}
	return "standard"
}

// File is a V3 wallet file
type File struct {
	Address string
	ID      string
	Version int
	Crypto  Crypto
}

// Crypto is the crypto section of a wallet file
type Crypto struct {
	Cipher     string
	CipherText []byte
	IV         []byte
	KDF        KDFParams
	MAC        []byte
}

// Account is the plaintext released by a successful decryption
type Account struct {
	Address       string `json:"address"`
	PrivateKeyHex string `json:"privateKey"`
}

type fileWire struct {
	Address string     `json:"address"`
	ID      string     `json:"id"`
	Version int        `json:"version"`
	Crypto  cryptoWire `json:"crypto"`
}

type cryptoWire struct {
	Cipher       string           `json:"cipher"`
	CipherText   string           `json:"ciphertext"`
	CipherParams cipherParamsWire `json:"cipherparams"`
	KDF          string           `json:"kdf"`
	KDFParams    json.RawMessage  `json:"kdfparams"`
	MAC          string           `json:"mac"`
}

type cipherParamsWire struct {
	IV string `json:"iv"`
}

// MarshalJSON emits the V3 wire format
func (f *File) MarshalJSON() ([]byte, error) {
	if f.Crypto.KDF == nil {
		return nil, fmt.Errorf("%w: missing kdf parameters", ErrMalformedKeystore)
	}
	params, err := json.Marshal(f.Crypto.KDF.wire())
	if err != nil {
		return nil, err
	}
	return json.Marshal(fileWire{
		Address: f.Address,
		ID:      f.ID,
		Version: f.Version,
		Crypto: cryptoWire{
			Cipher:       f.Crypto.Cipher,
			CipherText:   hex.EncodeToString(f.Crypto.CipherText),
			CipherParams: cipherParamsWire{IV: hex.EncodeToString(f.Crypto.IV)},
			KDF:          f.Crypto.KDF.Name(),
			KDFParams:    params,
			MAC:          hex.EncodeToString(f.Crypto.MAC),
		},
	})
}

// UnmarshalJSON parses the V3 wire format
func (f *File) UnmarshalJSON(data []byte) error {
	var w fileWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedKeystore, err)
	}
	if w.Version != Version {
		return fmt.Errorf("%w: version %d", ErrMalformedKeystore, w.Version)
	}
	if w.Crypto.Cipher != CipherAES {
		return fmt.Errorf("%w %q", ErrUnsupportedCipher, w.Crypto.Cipher)
	}

	params, err := parseKDFParams(w.Crypto.KDF, w.Crypto.KDFParams)
	if err != nil {
		return err
	}
	ciphertext, err := decodeHex("ciphertext", w.Crypto.CipherText)
	if err != nil {
		return err
	}
	iv, err := decodeHex("cipherparams.iv", w.Crypto.CipherParams.IV)
	if err != nil {
		return err
	}
	if len(iv) != ivLen {
		return fmt.Errorf("%w: iv must be %d bytes", ErrMalformedKeystore, ivLen)
	}
	mac, err := decodeHex("mac", w.Crypto.MAC)
	if err != nil {
		return err
	}

	*f = File{
		Address: w.Address,
		ID:      w.ID,
		Version: w.Version,
		Crypto: Crypto{
			Cipher:     w.Crypto.Cipher,
			CipherText: ciphertext,
			IV:         iv,
			KDF:        params,
			MAC:        mac,
		},
	}
	return nil
}

// Generate encrypts privateKeyHex under password into a new wallet file.
// password must be []byte for security (caller should zero it after use)
func Generate(password []byte, address, privateKeyHex string, strength Strength) (*File, error) {
	privateKey, err := decodePrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	defer clear(privateKey)

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	iv := make([]byte, ivLen)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	params := ScryptParams{
		N:     strength.ScryptN(),
		R:     scryptR,
		P:     scryptP,
		DKLen: derivedKeyLen,
		Salt:  salt,
	}
	c, err := seal(password, privateKey, iv, params)
	if err != nil {
		return nil, err
	}

	return &File{
		Address: address,
		ID:      uuid.New().String(),
		Version: Version,
		Crypto:  *c,
	}, nil
}

// GenerateJSON is Generate followed by the V3 encoding
func GenerateJSON(password []byte, address, privateKeyHex string, strength Strength) ([]byte, error) {
	f, err := Generate(password, address, privateKeyHex, strength)
	if err != nil {
		return nil, err
	}
	return json.Marshal(f)
}

// Decrypt verifies the MAC and releases the private key
func Decrypt(password []byte, data []byte) (*Account, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		if errors.Is(err, ErrMalformedKeystore) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedKeystore, err)
	}
	return f.Decrypt(password)
}

// Decrypt verifies the MAC and releases the private key
func (f *File) Decrypt(password []byte) (*Account, error) {
	if f.Crypto.KDF == nil {
		return nil, fmt.Errorf("%w: missing kdf parameters", ErrMalformedKeystore)
	}

	derivedKey, err := f.Crypto.KDF.deriveKey(password)
	if err != nil {
		return nil, err
	}
	defer clear(derivedKey)

	mac := computeMAC(derivedKey, f.Crypto.CipherText)
	if subtle.ConstantTimeCompare(mac, f.Crypto.MAC) != 1 {
		return nil, ErrInvalidPassword
	}

	plaintext, err := aesCTR(derivedKey[:16], f.Crypto.IV, f.Crypto.CipherText)
	if err != nil {
		return nil, err
	}
	defer clear(plaintext)

	return &Account{
		Address:       f.Address,
		PrivateKeyHex: hex.EncodeToString(plaintext),
	}, nil
}

// seal runs the deterministic half of generation
func seal(password, privateKey, iv []byte, params KDFParams) (*Crypto, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	derivedKey, err := params.deriveKey(password)
	if err != nil {
		return nil, err
	}
	defer clear(derivedKey)

	ciphertext, err := aesCTR(derivedKey[:16], iv, privateKey)
	if err != nil {
		return nil, err
	}

	return &Crypto{
		Cipher:     CipherAES,
		CipherText: ciphertext,
		IV:         append([]byte(nil), iv...),
		KDF:        params,
		MAC:        computeMAC(derivedKey, ciphertext),
	}, nil
}

func computeMAC(derivedKey, ciphertext []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(derivedKey[16:32])
	h.Write(ciphertext)
	return h.Sum(nil)
}

func aesCTR(key, iv, in []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	out := make([]byte, len(in))
	cipher.NewCTR(block, iv).XORKeyStream(out, in)
	return out, nil
}

func decodePrivateKey(privateKeyHex string) ([]byte, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"), "0X")
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPrivateKey)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: not hex", ErrInvalidPrivateKey)
	}
	return b, nil
}

// Package keystore implements the password-based wallet-file format.
//
// Wallet files follow the Web3 Secret Storage (V3) layout so they are
// interchangeable with other wallets:
//
//	derivedKey = scrypt(password, salt, N, r, p, 32)   or pbkdf2-hmac-sha256
//	ciphertext = AES-128-CTR(derivedKey[0:16], iv, privateKey)
//	mac        = Keccak256(derivedKey[16:32] || ciphertext)
//
// Decryption recomputes the MAC and compares it in constant time before the
// ciphertext is touched. A mismatch is reported as ErrInvalidPassword, which
// callers use to prompt for re-entry; every other failure wraps
// ErrMalformedKeystore.
//
// KDF parameters are a closed sum type (ScryptParams | PBKDF2Params). The
// wire format carries no explicit tag inside kdfparams, so the decoder picks
// the variant from field presence: "n" means scrypt, "c" means pbkdf2.
//
// The package also derives the app-unlock secret, a scrypt hash of the
// user's password stored instead of the password itself.
package keystore

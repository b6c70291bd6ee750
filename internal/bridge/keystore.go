package bridge

import (
	"errors"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/walletbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/walletbridge/internal/keystore"
	"github.com/GriffinCanCode/walletbridge/internal/session"
	"github.com/GriffinCanCode/walletbridge/internal/shared/types"
	"github.com/GriffinCanCode/walletbridge/internal/shared/utils"
)

// CreateKeystore encrypts privateKeyHex under the session password and
// delivers the V3 wallet file JSON to cb
func (r *Router) CreateKeystore(privateKeyHex, address string, cb types.Callback) {
	r.spawn(cb, "create_keystore", func() {
		timer := monitoring.NewTimer(r.metrics, "keystore", "create")

		password, code, msg := r.password()
		if code != "" {
			timer.Stop(string(code))
			r.fail(cb, code, msg, "")
			return
		}
		defer clear(password)

		data, err := keystore.GenerateJSON(password, address, privateKeyHex, r.strength)
		if err != nil {
			code := keystoreCode(err)
			timer.Stop(string(code))
			r.logger.Warn("Keystore generation failed", zap.Error(err))
			r.fail(cb, code, err.Error(), "")
			return
		}
		timer.Stop("success")
		r.succeed(cb, string(data))
	})
}

// DecryptKeystore opens a V3 wallet file with the session password and
// delivers {"address","privateKey"} to cb
func (r *Router) DecryptKeystore(keystoreJSON string, cb types.Callback) {
	r.spawn(cb, "decrypt_keystore", func() {
		timer := monitoring.NewTimer(r.metrics, "keystore", "decrypt")

		if len(keystoreJSON) > utils.MaxKeystoreSize {
			timer.Stop(string(types.CodeInvalidKeystore))
			r.fail(cb, types.CodeInvalidKeystore, "keystore exceeds size limit", "")
			return
		}

		password, code, msg := r.password()
		if code != "" {
			timer.Stop(string(code))
			r.fail(cb, code, msg, "")
			return
		}
		defer clear(password)

		account, err := keystore.Decrypt(password, []byte(keystoreJSON))
		if err != nil {
			code := keystoreCode(err)
			timer.Stop(string(code))
			r.logger.Info("Keystore decryption failed", zap.String("code", string(code)))
			r.fail(cb, code, err.Error(), "")
			return
		}

		out, err := sonic.MarshalString(account)
		account.PrivateKeyHex = ""
		if err != nil {
			timer.Stop(string(types.CodeProcessingError))
			r.fail(cb, types.CodeProcessingError, err.Error(), "")
			return
		}
		timer.Stop("success")
		r.succeed(cb, out)
	})
}

func (r *Router) password() ([]byte, types.ErrorCode, string) {
	if r.session == nil {
		return nil, types.CodeNotAuthenticated, "wallet is locked"
	}
	password, err := r.session.Password()
	if err != nil {
		if errors.Is(err, session.ErrNotAuthenticated) {
			return nil, types.CodeNotAuthenticated, "wallet is locked"
		}
		return nil, types.CodeProcessingError, err.Error()
	}
	return password, "", ""
}

// keystoreCode keeps a wrong password distinct from a damaged file
func keystoreCode(err error) types.ErrorCode {
	switch {
	case errors.Is(err, keystore.ErrInvalidPassword):
		return types.CodeInvalidPassword
	case errors.Is(err, keystore.ErrMalformedKeystore):
		return types.CodeInvalidKeystore
	default:
		return types.CodeProcessingError
	}
}

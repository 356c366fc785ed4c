package signature

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	pgperrors "github.com/ProtonMail/go-crypto/openpgp/errors"
)

// KeyringVerifier checks detached OpenPGP signatures in process. The keyring
// is read on every call so that key rotation in Home takes effect at once.
type KeyringVerifier struct {
	Home   string
	logger *slog.Logger
}

// NewKeyringVerifier creates a KeyringVerifier reading Home/pubring.gpg.
func NewKeyringVerifier(home string, logger *slog.Logger) *KeyringVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyringVerifier{Home: home, logger: logger}
}

// Verify never returns an error: a missing keyring or malformed signature is
// TrustUnknown, a signature that does not match is TrustNo.
func (v *KeyringVerifier) Verify(_ context.Context, payload, sig []byte) (Trust, error) {
	keyring, err := v.readKeyring()
	if err != nil {
		v.logger.Warn("failed to read keyring", "home", v.Home, "error", err)
		return TrustUnknown, nil
	}

	if isArmored(sig) {
		_, err = openpgp.CheckArmoredDetachedSignature(keyring, bytes.NewReader(payload), bytes.NewReader(sig), nil)
	} else {
		_, err = openpgp.CheckDetachedSignature(keyring, bytes.NewReader(payload), bytes.NewReader(sig), nil)
	}
	if err == nil {
		return TrustYes, nil
	}

	var sigErr pgperrors.SignatureError
	if errors.As(err, &sigErr) {
		return TrustNo, nil
	}
	v.logger.Warn("signature could not be checked", "error", err)
	return TrustUnknown, nil
}

func (v *KeyringVerifier) readKeyring() (openpgp.EntityList, error) {
	raw, err := os.ReadFile(filepath.Join(v.Home, "pubring.gpg"))
	if err != nil {
		return nil, err
	}
	if isArmored(raw) {
		return openpgp.ReadArmoredKeyRing(bytes.NewReader(raw))
	}
	return openpgp.ReadKeyRing(bytes.NewReader(raw))
}

func isArmored(b []byte) bool {
	_, err := armor.Decode(bytes.NewReader(b))
	return err == nil
}

package auth

import (
	"strings"

	"kis-trader/internal/types"
)

// PaperKeyPrefix marks app keys issued for the paper-trading environment.
const PaperKeyPrefix = "PS"

// ValidateCredentials checks that the app key matches the requested trading
// mode before any network call is made. Live keys must not carry the paper
// prefix; paper keys must. A violation is fatal and the caller must refuse
// to authenticate.
func ValidateCredentials(appKey string, mode types.Mode) error {
	isPaperKey := strings.HasPrefix(appKey, PaperKeyPrefix)

	switch mode {
	case types.ModeLive:
		if isPaperKey {
			return &CredentialMismatchError{
				Mode:   string(mode),
				Reason: "app key has the paper-trading prefix '" + PaperKeyPrefix + "'; set mode to 'paper' or supply a live app key",
			}
		}
	case types.ModePaper:
		if !isPaperKey {
			return &CredentialMismatchError{
				Mode:   string(mode),
				Reason: "app key lacks the paper-trading prefix '" + PaperKeyPrefix + "'; set mode to 'live' or supply a paper app key",
			}
		}
	default:
		return &CredentialMismatchError{Mode: string(mode), Reason: "unknown trading mode"}
	}
	return nil
}

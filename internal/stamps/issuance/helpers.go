package issuance

import (
	"errors"

	"visitproof/internal/stamps/ledger"
	"visitproof/internal/stamps/models"
	dErrors "visitproof/pkg/domain-errors"
)

func alreadyCollected() *Rejection {
	return &Rejection{Reason: ReasonAlreadyCollected, Message: "You have already collected this stamp"}
}

func alreadyCollectedOnLedger() *Rejection {
	return &Rejection{Reason: ReasonAlreadyCollectedOnLedger, Message: "This stamp has already been issued to your wallet"}
}

func storeError(err error, msg string) error {
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func outcomeOf(res *Result, err error) string {
	if err == nil {
		return string(res.Outcome())
	}
	var rej *Rejection
	if errors.As(err, &rej) {
		return string(rej.Reason)
	}
	var ce *ledger.ChainError
	if errors.As(err, &ce) {
		if ce.Pending() {
			return string(OutcomeChainPending)
		}
		return string(OutcomeChainError)
	}
	if dErrors.HasCode(err, dErrors.CodeTimeout) {
		return string(OutcomeAbandoned)
	}
	return string(OutcomeStoreError)
}

func observedLatitude(c models.PresenceClaim) *float64 {
	if c.Observed == nil {
		return nil
	}
	v := c.Observed.Latitude
	return &v
}

func observedLongitude(c models.PresenceClaim) *float64 {
	if c.Observed == nil {
		return nil
	}
	v := c.Observed.Longitude
	return &v
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

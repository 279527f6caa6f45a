package command

import (
	"strings"

	"github.com/goliatone/go-tokenpool/core"
)

const (
	TypeObtain         = "tokenpool.command.obtain"
	TypeRefresh        = "tokenpool.command.refresh"
	TypeAssemble       = "tokenpool.command.assemble"
	TypeImportAccounts = "tokenpool.command.accounts.import"
)

type ObtainMessage struct {
	Request core.ObtainRequest
}

func (ObtainMessage) Type() string { return TypeObtain }

func (m ObtainMessage) Validate() error {
	if err := validateTrack(m.Request.Track); err != nil {
		return err
	}
	return validateLimit(m.Request.Limit)
}

type RefreshMessage struct {
	Request core.RefreshRequest
}

func (RefreshMessage) Type() string { return TypeRefresh }

func (m RefreshMessage) Validate() error {
	if err := validateTrack(m.Request.Track); err != nil {
		return err
	}
	if err := validateLimit(m.Request.Limit); err != nil {
		return err
	}
	if m.Request.NearExpiryWindow < 0 {
		return commandValidationError("near_expiry_window", "must be >= 0")
	}
	return nil
}

type AssembleMessage struct {
	Request core.AssembleRequest
}

func (AssembleMessage) Type() string { return TypeAssemble }

func (m AssembleMessage) Validate() error {
	if m.Request.Count <= 0 {
		return commandValidationError("count", "must be positive")
	}
	return nil
}

type ImportAccountsMessage struct {
	Accounts []core.NewAccountInput
}

func (ImportAccountsMessage) Type() string { return TypeImportAccounts }

func (m ImportAccountsMessage) Validate() error {
	if len(m.Accounts) == 0 {
		return commandValidationError("accounts", "at least one account is required")
	}
	for _, account := range m.Accounts {
		if strings.TrimSpace(account.Email) == "" {
			return commandValidationError("email", "is required")
		}
	}
	return nil
}

func validateTrack(track core.Track) error {
	if !track.Valid() {
		return commandValidationError("track", "must be session or platform")
	}
	return nil
}

func validateLimit(limit int) error {
	if limit == 0 || limit < core.UnboundedBatch {
		return commandValidationError("limit", "must be positive or -1 for all")
	}
	return nil
}

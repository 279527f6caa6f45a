package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-tokenpool/core"
)

type LifecycleService interface {
	Obtain(ctx context.Context, req core.ObtainRequest) (core.RunReport, error)
	Refresh(ctx context.Context, req core.RefreshRequest) (core.RunReport, error)
}

type PoolService interface {
	Assemble(ctx context.Context, req core.AssembleRequest) (core.AssembleReport, error)
}

type AccountImporter interface {
	ImportAccounts(ctx context.Context, inputs []core.NewAccountInput) (core.ImportReport, error)
}

type ObtainCommand struct {
	service LifecycleService
}

func NewObtainCommand(service LifecycleService) *ObtainCommand {
	return &ObtainCommand{service: service}
}

func (c *ObtainCommand) Execute(ctx context.Context, msg ObtainMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: obtain service is required")
	}
	out, err := c.service.Obtain(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RefreshCommand struct {
	service LifecycleService
}

func NewRefreshCommand(service LifecycleService) *RefreshCommand {
	return &RefreshCommand{service: service}
}

func (c *RefreshCommand) Execute(ctx context.Context, msg RefreshMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: refresh service is required")
	}
	out, err := c.service.Refresh(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type AssembleCommand struct {
	service PoolService
}

func NewAssembleCommand(service PoolService) *AssembleCommand {
	return &AssembleCommand{service: service}
}

func (c *AssembleCommand) Execute(ctx context.Context, msg AssembleMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: pool service is required")
	}
	out, err := c.service.Assemble(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ImportAccountsCommand struct {
	importer AccountImporter
}

func NewImportAccountsCommand(importer AccountImporter) *ImportAccountsCommand {
	return &ImportAccountsCommand{importer: importer}
}

func (c *ImportAccountsCommand) Execute(ctx context.Context, msg ImportAccountsMessage) error {
	if c == nil || c.importer == nil {
		return commandDependencyError("command: account importer is required")
	}
	out, err := c.importer.ImportAccounts(ctx, msg.Accounts)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}

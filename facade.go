package tokenpool

import (
	"fmt"

	poolcommand "github.com/goliatone/go-tokenpool/command"
	poolquery "github.com/goliatone/go-tokenpool/query"
)

type CommandQueryService interface {
	poolcommand.LifecycleService
	poolcommand.PoolService
	poolcommand.AccountImporter
	poolquery.AccountStatsReader
	poolquery.PoolReader
}

type Commands struct {
	Obtain         *poolcommand.ObtainCommand
	Refresh        *poolcommand.RefreshCommand
	Assemble       *poolcommand.AssembleCommand
	ImportAccounts *poolcommand.ImportAccountsCommand
}

type Queries struct {
	AccountStats *poolquery.AccountStatsQuery
	GetPool      *poolquery.GetPoolQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("tokenpool: command/query service is required")
	}
	facade := &Facade{service: service}
	facade.commands = Commands{
		Obtain:         poolcommand.NewObtainCommand(service),
		Refresh:        poolcommand.NewRefreshCommand(service),
		Assemble:       poolcommand.NewAssembleCommand(service),
		ImportAccounts: poolcommand.NewImportAccountsCommand(service),
	}
	facade.queries = Queries{
		AccountStats: poolquery.NewAccountStatsQuery(service),
		GetPool:      poolquery.NewGetPoolQuery(service),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
